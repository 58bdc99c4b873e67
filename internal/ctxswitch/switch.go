// Package ctxswitch implements the context-switch primitive (C6).
//
// spec §6 describes C6 as opaque to the kernel core: given the outgoing
// TCB, save its callee-saved registers and user stack pointer, switch to
// the incoming TCB's kernel stack, restore its registers and user SP,
// and return to its saved link register -- performing no scheduling
// decision itself. On the target hardware that is a handful of PUSH/POP
// and MRS/MSR instructions (see spec §1's explicitly-out-of-scope SVC
// trampoline). A Go process has no user-mode register file to bank, so
// the physical handoff this package performs is a goroutine park/resume
// rendezvous: each task is a goroutine blocked on its own Slot channel,
// and Switch is the only operation allowed to unblock one task while
// parking another, mirroring the assembly routine's "exactly one
// transfer, no decision" contract.
package ctxswitch

// Slot is one task's context-switch handle: the channel its goroutine
// parks on between being switched out and switched back in.
type Slot struct {
	resume chan struct{}
}

// NewSlot returns a slot in the parked state.
func NewSlot() *Slot {
	return &Slot{resume: make(chan struct{})}
}

// Park blocks the calling goroutine until another goroutine calls
// Resume on this slot. It is the Go analogue of a task's kernel stack
// being saved and control returning to whichever task resumes next.
func (s *Slot) Park() {
	<-s.resume
}

// Resume unblocks a goroutine parked on this slot. It is the Go
// analogue of restoring a task's saved registers and kernel SP.
func (s *Slot) Resume() {
	s.resume <- struct{}{}
}

// Switch performs the physical handoff: resume `in`, then park the
// caller (representing `out`) until it is switched back in. Switch
// makes no scheduling decision; the caller has already chosen `in`.
func Switch(out, in *Slot) {
	in.Resume()
	out.Park()
}

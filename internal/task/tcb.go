// Package task owns the TCB table (C3) and task bring-up (C7): the
// fixed-size array of task records keyed by tid, and the logic that
// allocates a fresh task's user stack, wires its kernel stack, and gives
// it a context-switch slot so it can be handed to the scheduler like any
// preempted task. No register frame is written to either stack.
package task

import (
	"github.com/rtxlab/kernel/internal/ctxswitch"
	"github.com/rtxlab/kernel/internal/rtxtypes"
)

// KernelStackSize is the fixed size, in bytes, of each task's
// statically reserved kernel stack (spec §4.2).
const KernelStackSize = 1024

// MinUserStackSize is the smallest user stack a task is ever given,
// the Go analogue of the original's PROC_STACK_SIZE.
const MinUserStackSize = 4096

// TCB is one task's control block, spec §3.
type TCB struct {
	TID        rtxtypes.TaskID
	State      rtxtypes.State
	Prio       rtxtypes.Priority
	Privileged bool

	Entry func()

	UserSP          uintptr
	UserSPBase      uintptr
	UserStackSize   uintptr
	KernelSP        uintptr
	KernelStackBase uintptr
	KernelStackSize uintptr

	// slot is the context-switch handle (C6) this task's goroutine parks
	// on between being switched out and back in; it is the Go stand-in
	// for the fabricated kernel stack frame of spec §4.2 step 5.
	slot *ctxswitch.Slot
}

// Table is the fixed-size TCB table (C3), indexed by tid. Every slot
// starts UNINITIALIZED.
type Table struct {
	tcbs        [rtxtypes.MaxTasks]TCB
	activeCount int

	// kstacks are the statically reserved per-tid kernel stacks of spec
	// §4.2: "Kernel stacks are statically reserved as a 2-D array of
	// fixed size (one slot per possible tid)." They are never allocated
	// from a buddy pool and never released.
	kstacks [rtxtypes.MaxTasks][KernelStackSize]byte
}

// NewTable returns a table with every slot UNINITIALIZED.
func NewTable() *Table {
	t := &Table{}
	for i := range t.tcbs {
		t.tcbs[i].TID = rtxtypes.TaskID(i)
		t.tcbs[i].State = rtxtypes.Uninitialized
	}
	return t
}

// Get returns the TCB for tid. The caller must have validated tid is in
// range; Get does not.
func (t *Table) Get(tid rtxtypes.TaskID) *TCB {
	return &t.tcbs[tid]
}

// ActiveCount is the number of non-DORMANT, non-UNINITIALIZED tasks.
func (t *Table) ActiveCount() int { return t.activeCount }

// LowestFreeSlot returns the smallest tid (excluding TIDNull) whose
// state is neither READY nor RUNNING, and ok=false if the table is full.
func (t *Table) LowestFreeSlot() (rtxtypes.TaskID, bool) {
	for i := 1; i < rtxtypes.MaxTasks; i++ {
		s := t.tcbs[i].State
		if s != rtxtypes.Ready && s != rtxtypes.Running {
			return rtxtypes.TaskID(i), true
		}
	}
	return rtxtypes.TIDNull, false
}

// ListActive fills out, in ascending tid order, with the tids of every
// task not in the UNINITIALIZED state, and returns how many were
// written. This is the expanded kernel's implementation of the
// original's k_tsk_ls stub (spec §12.2): a real task listing, not a
// placeholder.
func (t *Table) ListActive(out []rtxtypes.TaskID) int {
	n := 0
	for i := 0; i < rtxtypes.MaxTasks && n < len(out); i++ {
		if t.tcbs[i].State != rtxtypes.Uninitialized {
			out[n] = rtxtypes.TaskID(i)
			n++
		}
	}
	return n
}

func (t *Table) incActive() { t.activeCount++ }
func (t *Table) decActive() { t.activeCount-- }

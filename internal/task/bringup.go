package task

import (
	"unsafe"

	"github.com/pkg/errors"

	"github.com/rtxlab/kernel/internal/buddy"
	"github.com/rtxlab/kernel/internal/ctxswitch"
	"github.com/rtxlab/kernel/internal/rtxtypes"
)

func roundUpPow2(n, floor uintptr) uintptr {
	size := floor
	for size < n {
		size <<= 1
	}
	return size
}

func (t *Table) kernelStackBase(tid rtxtypes.TaskID) uintptr {
	return uintptr(unsafe.Pointer(&t.kstacks[tid][KernelStackSize-1]))
}

// Bringup fabricates a fresh task in slot tid: rounds and allocates its
// user stack from pool, wires its statically reserved kernel stack, and
// marks it READY. It is the bring-up half of C7 (spec §4.2 steps 3-5);
// validation (entry/prio/table-full) and ready-queue enqueue are the
// caller's responsibility, mirroring the original kernel's split between
// k_tsk_create (validates) and k_tsk_create_new (fabricates).
//
// On any failure after the user stack has been allocated, Bringup
// returns that stack to pool before returning the error, so a failed
// call leaves no stack leaked (spec §5's "release guaranteed on every
// exit path including failure during later bring-up steps").
func (t *Table) Bringup(pool *buddy.Pool, tid rtxtypes.TaskID, entry func(), prio rtxtypes.Priority, privileged bool, requestedStackSize uintptr) (*TCB, error) {
	size := roundUpPow2(requestedStackSize, MinUserStackSize)

	raw, err := pool.Alloc(size)
	if err != nil {
		return nil, errors.Wrap(err, "task bring-up: allocate user stack")
	}
	if raw == nil {
		return nil, errors.Wrap(buddy.ErrNoMemory, "task bring-up: allocate user stack")
	}
	base := uintptr(raw)

	tcb := t.Get(tid)
	tcb.TID = tid
	tcb.Prio = prio
	tcb.Privileged = privileged
	tcb.Entry = entry
	tcb.UserSPBase = base + size
	tcb.UserSP = tcb.UserSPBase // the fabricated frame starts empty: stack grows down from the base
	tcb.UserStackSize = size
	tcb.KernelStackBase = t.kernelStackBase(tid)
	tcb.KernelSP = tcb.KernelStackBase
	tcb.KernelStackSize = KernelStackSize
	tcb.slot = ctxswitch.NewSlot()
	tcb.State = rtxtypes.Ready

	t.incActive()
	return tcb, nil
}

// Slot returns tid's context-switch handle, created during Bringup.
func (t *Table) Slot(tid rtxtypes.TaskID) *ctxswitch.Slot {
	return t.tcbs[tid].slot
}

// Exit releases tid's user stack back to pool and transitions it to
// DORMANT. The null task may never exit (spec §4.2); callers must guard
// that themselves, matching the original's k_tsk_exit which checks
// before calling into the rest of exit logic.
func (t *Table) Exit(pool *buddy.Pool, tid rtxtypes.TaskID) error {
	tcb := t.Get(tid)
	stackStart := tcb.UserSPBase - tcb.UserStackSize
	if err := pool.Free(unsafe.Pointer(stackStart)); err != nil {
		return errors.Wrap(err, "task exit: free user stack")
	}
	tcb.State = rtxtypes.Dormant
	tcb.UserStackSize = 0
	tcb.UserSPBase = 0
	tcb.UserSP = 0
	t.decActive()
	return nil
}

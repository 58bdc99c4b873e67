package kernel

import (
	"github.com/pkg/errors"

	"github.com/rtxlab/kernel/internal/rtxtypes"
)

// bringUpAndEnqueue validates and fabricates a new task, leaving it
// READY and enqueued but never touching the caller. It is the shared
// core of TskCreate and RtxInit's bulk bring-up.
func (k *Kernel) bringUpAndEnqueue(entry func(), prio rtxtypes.Priority, stackSize uintptr, privileged bool) (rtxtypes.TaskID, error) {
	if entry == nil {
		return rtxtypes.TIDNull, errors.Wrap(ErrInvalidArg, "tsk_create: nil entry")
	}
	if !rtxtypes.ValidUserPriority(prio) {
		return rtxtypes.TIDNull, errors.Wrapf(ErrInvalidArg, "tsk_create: prio %d not in P0..P3", prio)
	}
	if k.tasks.ActiveCount() >= rtxtypes.MaxTasks-1 {
		return rtxtypes.TIDNull, errors.Wrap(ErrTryAgain, "tsk_create: table full")
	}

	tid, ok := k.tasks.LowestFreeSlot()
	if !ok {
		return rtxtypes.TIDNull, errors.Wrap(ErrTryAgain, "tsk_create: no free slot")
	}

	if _, err := k.tasks.Bringup(k.kernelPool, tid, entry, prio, privileged, stackSize); err != nil {
		return rtxtypes.TIDNull, errors.Wrap(err, "tsk_create: bring-up")
	}

	if err := k.ready.Queue(prio).PushBack(tid); err != nil {
		// Scoped acquisition: a failure after the stack is allocated
		// must not leak it.
		_ = k.tasks.Exit(k.kernelPool, tid)
		return rtxtypes.TIDNull, errors.Wrap(err, "tsk_create: enqueue")
	}

	// The kernel owns task execution, not the caller: a fresh task parks
	// on its own slot immediately, exactly like a preempted task waiting
	// to be switched back in, and run_new's eventual resume of this slot
	// is what lets entry actually run. Exiting through TskExit when entry
	// returns gives a task that falls off the end of its body the same
	// teardown as one that calls tsk_exit explicitly.
	go func() {
		k.tasks.Slot(tid).Park()
		entry()
		_ = k.TskExit()
	}()

	return tid, nil
}

// TskCreate is opcode 5, TSK_CREATE: spec §4.2's create_task. On success
// the new task is READY and enqueued; if its priority strictly outranks
// the caller's, the caller is preempted immediately and the new task
// runs before TskCreate returns to it.
func (k *Kernel) TskCreate(entry func(), prio rtxtypes.Priority, stackSize uintptr, privileged bool) (rtxtypes.TaskID, error) {
	tid, err := k.bringUpAndEnqueue(entry, prio, stackSize, privileged)
	if err != nil {
		return rtxtypes.TIDNull, k.fail(err)
	}

	caller := k.tasks.Get(k.sched.Current())
	if prio < caller.Prio {
		if err := k.sched.PreemptCurrent(); err != nil {
			return tid, k.fail(err)
		}
	}

	return tid, nil
}

// TskExit is opcode 6, TSK_EXIT: the null task may never exit. Releases
// the caller's user stack back to the kernel pool, marks it DORMANT, and
// reschedules.
func (k *Kernel) TskExit() error {
	cur := k.sched.Current()
	if cur == rtxtypes.TIDNull {
		return k.fail(errors.Wrap(ErrNotPermitted, "tsk_exit: null task may not exit"))
	}
	if err := k.tasks.Exit(k.kernelPool, cur); err != nil {
		return k.fail(err)
	}
	if err := k.sched.RunNew(); err != nil {
		return k.fail(err)
	}
	return nil
}

package kernel

import (
	"github.com/pkg/errors"

	"github.com/rtxlab/kernel/internal/rtxtypes"
	"github.com/rtxlab/kernel/internal/sched"
)

func validTid(tid rtxtypes.TaskID) bool {
	return tid >= 0 && tid < rtxtypes.MaxTasks
}

// TskSetPrio is opcode 8, TSK_SET_PRIO: spec §4.3's set_priority. The
// null task is never a valid target; newPrio must be one of P0..P3, the
// same range create.go validates for a new task's own priority. An
// unprivileged caller may not touch a privileged task. The RUNNING/READY
// branching and round-robin requeue rules live in package sched; any
// remaining state (DORMANT, UNINITIALIZED) is not a legal target and is
// reported as NOT_PERMITTED here, per spec §4.3's "otherwise: EPERM."
func (k *Kernel) TskSetPrio(tid rtxtypes.TaskID, newPrio rtxtypes.Priority) error {
	if !validTid(tid) {
		return k.fail(errors.Wrap(ErrInvalidArg, "tsk_set_prio: tid out of range"))
	}
	if tid == rtxtypes.TIDNull {
		return k.fail(errors.Wrap(ErrNotPermitted, "tsk_set_prio: cannot target the null task"))
	}
	if !rtxtypes.ValidUserPriority(newPrio) {
		return k.fail(errors.Wrapf(ErrInvalidArg, "tsk_set_prio: new_prio %d not in P0..P3", newPrio))
	}

	caller := k.tasks.Get(k.sched.Current())
	target := k.tasks.Get(tid)
	if !caller.Privileged && target.Privileged {
		return k.fail(errors.Wrap(ErrNotPermitted, "tsk_set_prio: unprivileged caller cannot reprioritize a privileged task"))
	}

	err := k.sched.SetPriority(tid, newPrio)
	if errors.Is(err, sched.ErrBadState) {
		return k.fail(errors.Wrap(ErrNotPermitted, "tsk_set_prio: tid is neither RUNNING nor READY"))
	}
	if err != nil {
		return k.fail(err)
	}
	return nil
}

package kernel

import (
	"github.com/pkg/errors"

	"github.com/rtxlab/kernel/internal/rtxtypes"
	"github.com/rtxlab/kernel/internal/sched"
)

// TaskInfo is the read-only task-info record of spec §6. For the
// calling task, UserSP and KernelSP are read from its TCB just as they
// are for any other task: this kernel keeps no separate CPU register
// snapshot, and run_new does not update these fields on a switch.
type TaskInfo struct {
	TID             rtxtypes.TaskID
	Prio            rtxtypes.Priority
	State           rtxtypes.State
	Privileged      bool
	Entry           func()
	UserSP          uintptr
	UserSPBase      uintptr
	UserStackSize   uintptr
	KernelSP        uintptr
	KernelStackBase uintptr
	KernelStackSize uintptr
}

// TskGet is opcode 9, TSK_GET.
func (k *Kernel) TskGet(tid rtxtypes.TaskID) (*TaskInfo, error) {
	if !validTid(tid) {
		return nil, k.fail(errors.Wrap(ErrInvalidArg, "tsk_get: tid out of range"))
	}
	tcb := k.tasks.Get(tid)
	if tcb.State == rtxtypes.Uninitialized {
		return nil, k.fail(errors.Wrap(ErrInvalidArg, "tsk_get: tid not in use"))
	}
	return &TaskInfo{
		TID:             tcb.TID,
		Prio:            tcb.Prio,
		State:           tcb.State,
		Privileged:      tcb.Privileged,
		Entry:           tcb.Entry,
		UserSP:          tcb.UserSP,
		UserSPBase:      tcb.UserSPBase,
		UserStackSize:   tcb.UserStackSize,
		KernelSP:        tcb.KernelSP,
		KernelStackBase: tcb.KernelStackBase,
		KernelStackSize: tcb.KernelStackSize,
	}, nil
}

// TskGetNext is a TSK_GET diagnostic extension: it reports the TaskInfo of whichever task the scheduler would switch to
// next, without popping it off its ready queue or disturbing the
// currently RUNNING task.
func (k *Kernel) TskGetNext() *TaskInfo {
	tcb := sched.Pick(k.ready, k.tasks)
	return &TaskInfo{
		TID:             tcb.TID,
		Prio:            tcb.Prio,
		State:           tcb.State,
		Privileged:      tcb.Privileged,
		Entry:           tcb.Entry,
		UserSP:          tcb.UserSP,
		UserSPBase:      tcb.UserSPBase,
		UserStackSize:   tcb.UserStackSize,
		KernelSP:        tcb.KernelSP,
		KernelStackBase: tcb.KernelStackBase,
		KernelStackSize: tcb.KernelStackSize,
	}
}

// ListTasks is the expanded kernel's surface for the original's k_tsk_ls
// (spec §12.2): every task not UNINITIALIZED, in ascending tid order.
func (k *Kernel) ListTasks() []rtxtypes.TaskID {
	out := make([]rtxtypes.TaskID, rtxtypes.MaxTasks)
	n := k.tasks.ListActive(out)
	return out[:n]
}

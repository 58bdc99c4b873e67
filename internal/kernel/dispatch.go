package kernel

import (
	"unsafe"

	"github.com/pkg/errors"

	"github.com/rtxlab/kernel/internal/rtxtypes"
)

// Opcode identifies one of the ten supervisor requests of spec §6.
type Opcode int

const (
	OpRtxInit     Opcode = 1
	OpMemAlloc    Opcode = 2
	OpMemDealloc  Opcode = 3
	OpMemDump     Opcode = 4
	OpTskCreate   Opcode = 5
	OpTskExit     Opcode = 6
	OpTskYield    Opcode = 7
	OpTskSetPrio  Opcode = 8
	OpTskGet      Opcode = 9
	OpTskGetTid   Opcode = 10
)

// TaskInit describes one task to bring up during RtxInit, the Go
// analogue of the original's TASK_INIT array entry.
type TaskInit struct {
	Entry      func()
	Prio       rtxtypes.Priority
	StackSize  uintptr
	Privileged bool
}

// RtxInit is opcode 1, RTX_INIT: brings up every task in the initial
// set before any scheduling decision is made, then invokes run_new once
// so the overall highest-priority task runs first. Unlike TskCreate,
// bring-up here never preempts task-by-task mid-loop -- there is no
// meaningfully "running" caller yet, only the idle task bootstrapping
// the system.
func (k *Kernel) RtxInit(initial []TaskInit) error {
	for _, ti := range initial {
		if _, err := k.bringUpAndEnqueue(ti.Entry, ti.Prio, ti.StackSize, ti.Privileged); err != nil {
			return k.fail(errors.Wrap(err, "rtx_init"))
		}
	}
	if err := k.sched.RunNew(); err != nil {
		return k.fail(err)
	}
	return nil
}

// Request is the argument tuple for Dispatch, a single struct standing
// in for the union of argument lists spec §6's opcode table describes;
// only the fields relevant to Op are read.
type Request struct {
	Op         Opcode
	Initial    []TaskInit
	Size       uintptr
	Addr       unsafe.Pointer
	Entry      func()
	Prio       rtxtypes.Priority
	StackSize  uintptr
	Privileged bool
	TID        rtxtypes.TaskID
}

// Response is Dispatch's result tuple; only the fields relevant to the
// request's Op are populated.
type Response struct {
	Err   error
	Addr  unsafe.Pointer
	Count int
	TID   rtxtypes.TaskID
	Info  *TaskInfo
}

// Dispatch is the single entry point of spec §6: it decodes req.Op and
// forwards to the matching kernel operation. Callers that already know
// which operation they want should call the typed method directly;
// Dispatch exists for callers modeling the opcode boundary itself.
func (k *Kernel) Dispatch(req Request) Response {
	switch req.Op {
	case OpRtxInit:
		return Response{Err: k.RtxInit(req.Initial)}
	case OpMemAlloc:
		addr, err := k.MemAlloc(req.Size)
		return Response{Addr: addr, Err: err}
	case OpMemDealloc:
		return Response{Err: k.MemDealloc(req.Addr)}
	case OpMemDump:
		return Response{Count: len(k.MemDump())}
	case OpTskCreate:
		tid, err := k.TskCreate(req.Entry, req.Prio, req.StackSize, req.Privileged)
		return Response{TID: tid, Err: err}
	case OpTskExit:
		return Response{Err: k.TskExit()}
	case OpTskYield:
		return Response{Err: k.TskYield()}
	case OpTskSetPrio:
		return Response{Err: k.TskSetPrio(req.TID, req.Prio)}
	case OpTskGet:
		info, err := k.TskGet(req.TID)
		return Response{Info: info, Err: err}
	case OpTskGetTid:
		return Response{TID: k.TskGetTid()}
	default:
		return Response{Err: errors.Wrapf(ErrInvalidArg, "dispatch: unknown opcode %d", req.Op)}
	}
}

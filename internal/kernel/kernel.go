// Package kernel wires the buddy pools, TCB table, ready-queue set, and
// scheduler into the supervisor-request surface of spec §6: the ten
// opcodes a task (or the bootstrap caller) invokes to allocate memory,
// create and manage tasks, and yield the CPU.
package kernel

import (
	"unsafe"

	"github.com/pkg/errors"

	"github.com/rtxlab/kernel/internal/buddy"
	"github.com/rtxlab/kernel/internal/rtxtypes"
	"github.com/rtxlab/kernel/internal/sched"
	"github.com/rtxlab/kernel/internal/task"
)

// Config sizes the two pools at bring-up. UserPool backs MEM_ALLOC;
// KernelPool backs task stacks and ready-queue nodes.
type Config struct {
	UserPoolSizeLog2   uint
	UserPoolMinLog2    uint
	KernelPoolSizeLog2 uint
	KernelPoolMinLog2  uint
}

// Kernel is the assembled executive: both pools, the TCB table, the
// ready-queue set, and the scheduler driving them.
type Kernel struct {
	userPool   *buddy.Pool
	kernelPool *buddy.Pool
	tasks      *task.Table
	ready      *sched.ReadySet
	sched      *sched.Scheduler

	// lastErr is the thread-local-style error indicator of spec §7: set
	// on failure, left untouched on success. The single-threaded,
	// SVC-serialized execution model means one field suffices; there is
	// no per-task indicator to multiplex.
	lastErr error
}

// New brings up both pools and the null (idle) task, RUNNING from the
// start, matching spec §4.2's "tid=0 ... is always READY or RUNNING."
func New(cfg Config) (*Kernel, error) {
	userPool, err := buddy.New(buddy.PoolUser, cfg.UserPoolSizeLog2, cfg.UserPoolMinLog2)
	if err != nil {
		return nil, errors.Wrap(err, "kernel: bring up user pool")
	}
	kernelPool, err := buddy.New(buddy.PoolKernel, cfg.KernelPoolSizeLog2, cfg.KernelPoolMinLog2)
	if err != nil {
		_ = userPool.Close()
		return nil, errors.Wrap(err, "kernel: bring up kernel pool")
	}

	tasks := task.NewTable()
	ready := sched.NewReadySet(kernelPool)

	if _, err := tasks.Bringup(kernelPool, rtxtypes.TIDNull, func() {}, rtxtypes.PrioNull, true, task.MinUserStackSize); err != nil {
		_ = userPool.Close()
		_ = kernelPool.Close()
		return nil, errors.Wrap(err, "kernel: bring up null task")
	}

	return &Kernel{
		userPool:   userPool,
		kernelPool: kernelPool,
		tasks:      tasks,
		ready:      ready,
		sched:      sched.New(tasks, ready, rtxtypes.TIDNull),
	}, nil
}

// Close releases both pools' backing memory.
func (k *Kernel) Close() error {
	err1 := k.userPool.Close()
	err2 := k.kernelPool.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// LastError reports the most recent failure recorded by any operation,
// or nil if none has occurred since the kernel was brought up.
func (k *Kernel) LastError() error { return k.lastErr }

func (k *Kernel) fail(err error) error {
	k.lastErr = err
	return err
}

// MemAlloc is opcode 2, MEM_ALLOC: allocates from the user pool (pool
// #1). Memory operations at the supervisor boundary implicitly target
// pool #1; pool #2 is kernel-internal only.
func (k *Kernel) MemAlloc(size uintptr) (unsafe.Pointer, error) {
	addr, err := k.userPool.Alloc(size)
	if err != nil {
		return nil, k.fail(err)
	}
	return addr, nil
}

// MemDealloc is opcode 3, MEM_DEALLOC.
func (k *Kernel) MemDealloc(addr unsafe.Pointer) error {
	if err := k.userPool.Free(addr); err != nil {
		return k.fail(err)
	}
	return nil
}

// MemDump is opcode 4, MEM_DUMP: returns the user pool's free blocks.
func (k *Kernel) MemDump() []buddy.FreeBlock {
	return k.userPool.Dump()
}

// TskGetTid is opcode 10, TSK_GETTID.
func (k *Kernel) TskGetTid() rtxtypes.TaskID {
	return k.sched.Current()
}

// TskYield is opcode 7, TSK_YIELD.
func (k *Kernel) TskYield() error {
	if err := k.sched.Yield(); err != nil {
		return k.fail(err)
	}
	return nil
}

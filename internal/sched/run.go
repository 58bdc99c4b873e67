package sched

import (
	"github.com/pkg/errors"

	"github.com/rtxlab/kernel/internal/ctxswitch"
	"github.com/rtxlab/kernel/internal/rtxtypes"
	"github.com/rtxlab/kernel/internal/task"
)

// ErrBadState is returned when set_priority is asked to act on a tid
// that is neither RUNNING nor READY.
var ErrBadState = errors.New("set_priority: tid is neither RUNNING nor READY")

// Scheduler couples a ReadySet and a task.Table to the transition
// drivers of spec §4.3: run_new, yield, and set_priority. It also holds
// the single piece of state C5 itself does not: which tid is currently
// RUNNING.
type Scheduler struct {
	tasks   *task.Table
	ready   *ReadySet
	current rtxtypes.TaskID
}

// New returns a scheduler bootstrapped with idle already RUNNING. The
// caller must have already brought idle up via task.Table.Bringup.
func New(tasks *task.Table, ready *ReadySet, idle rtxtypes.TaskID) *Scheduler {
	tasks.Get(idle).State = rtxtypes.Running
	return &Scheduler{tasks: tasks, ready: ready, current: idle}
}

// Current returns the tid of the RUNNING task.
func (s *Scheduler) Current() rtxtypes.TaskID { return s.current }

// highestReadyPriority returns the most urgent (numerically smallest)
// priority with a non-empty queue, or PrioNull -- a value no real task
// ever holds -- if no user task is ready at all.
func (s *Scheduler) highestReadyPriority() rtxtypes.Priority {
	for p := rtxtypes.P0; p <= rtxtypes.P3; p++ {
		if !s.ready.Queue(p).Empty() {
			return p
		}
	}
	return rtxtypes.PrioNull
}

// runNew is C5's transition driver: select the next task to run and
// perform the physical handoff. Callers are responsible for having
// already enqueued the outgoing task (if it belongs in a ready queue at
// all) before calling runNew; runNew itself only updates state flags and
// invokes the context switch.
func (s *Scheduler) runNew() error {
	old := s.current
	newTid := pick(s.ready)

	if newTid == old {
		// The only ready entry at this priority was the caller's own
		// requeue; it keeps running and nothing was actually handed off.
		s.tasks.Get(old).State = rtxtypes.Running
		return nil
	}

	oldTCB := s.tasks.Get(old)
	newTCB := s.tasks.Get(newTid)

	newTCB.State = rtxtypes.Running
	if oldTCB.State != rtxtypes.Dormant {
		oldTCB.State = rtxtypes.Ready
	}
	s.current = newTid

	ctxswitch.Switch(s.tasks.Slot(old), s.tasks.Slot(newTid))
	return nil
}

// RunNew is the public entry point for callers outside this package
// (kernel bring-up, task exit) that must trigger a scheduling decision
// without having anything to enqueue first.
func (s *Scheduler) RunNew() error { return s.runNew() }

// Yield implements spec §4.3's yield(): if a peer at the caller's own
// priority is waiting, the caller is requeued at the back of its own
// queue and run_new is invoked; otherwise it is a no-op.
func (s *Scheduler) Yield() error {
	cur := s.tasks.Get(s.current)
	q := s.ready.Queue(cur.Prio)
	if q.Empty() {
		return nil
	}
	cur.State = rtxtypes.Ready
	if err := q.PushBack(s.current); err != nil {
		return err
	}
	return s.runNew()
}

// PreemptCurrent requeues the RUNNING task at the head of its own
// priority queue and invokes run_new: spec §4.2 step 7, used when a
// freshly created task outranks the caller.
func (s *Scheduler) PreemptCurrent() error {
	cur := s.tasks.Get(s.current)
	cur.State = rtxtypes.Ready
	// The null task is never stored in a ready queue; pick falls back to it.
	if s.current != rtxtypes.TIDNull {
		if err := s.ready.Queue(cur.Prio).PushFront(s.current); err != nil {
			return err
		}
	}
	return s.runNew()
}

// Requeue marks tid READY and pushes it to the back of its own
// priority queue. It does not invoke run_new; a caller that wants a
// scheduling decision calls RunNew afterwards.
func (s *Scheduler) Requeue(tid rtxtypes.TaskID) error {
	tcb := s.tasks.Get(tid)
	tcb.State = rtxtypes.Ready
	return s.ready.Queue(tcb.Prio).PushBack(tid)
}

// SetPriority implements spec §4.3's set_priority(tid, new_prio).
func (s *Scheduler) SetPriority(tid rtxtypes.TaskID, newPrio rtxtypes.Priority) error {
	tcb := s.tasks.Get(tid)

	switch tcb.State {
	case rtxtypes.Running:
		// Demote-and-switch only if some READY task outranks (numerically
		// undercuts) the priority the caller is about to take on; spec
		// §4.3's "there exists any READY task with priority < new_prio".
		if s.highestReadyPriority() >= newPrio {
			tcb.Prio = newPrio
			return nil
		}
		tcb.Prio = newPrio
		tcb.State = rtxtypes.Ready
		if err := s.ready.Queue(newPrio).PushBack(tid); err != nil {
			return err
		}
		return s.runNew()

	case rtxtypes.Ready:
		oldPrio := tcb.Prio
		if err := s.ready.Queue(oldPrio).FindAndDelete(tid); err != nil {
			return err
		}
		tcb.Prio = newPrio
		if err := s.ready.Queue(newPrio).PushBack(tid); err != nil {
			return err
		}

		running := s.tasks.Get(s.current)
		if running.Prio < newPrio {
			return nil
		}
		running.State = rtxtypes.Ready
		if s.current != rtxtypes.TIDNull {
			if err := s.ready.Queue(running.Prio).PushFront(s.current); err != nil {
				return err
			}
		}
		return s.runNew()

	default:
		return errors.Wrapf(ErrBadState, "tid %d in state %s", tid, tcb.State)
	}
}

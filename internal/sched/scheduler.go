package sched

import (
	"github.com/rtxlab/kernel/internal/rtxtypes"
	"github.com/rtxlab/kernel/internal/task"
)

// pick is the pure selection of spec §4.3's scheduler(): scan priorities
// P0 (highest) through P3 (lowest user priority), pop the head of the
// first non-empty queue. If every user-priority queue is empty, the null
// task is the implicit fallback -- it is never itself stored in a ready
// queue, matching spec §4.3's "if all queues are empty, return the null
// TCB." pick never touches the outgoing task; the caller decides what
// happens to it.
func pick(ready *ReadySet) rtxtypes.TaskID {
	for p := rtxtypes.P0; p <= rtxtypes.P3; p++ {
		q := ready.Queue(p)
		if q.Empty() {
			continue
		}
		if tid, err := q.Pop(); err == nil {
			return tid
		}
	}
	return rtxtypes.TIDNull
}

// Pick exposes pick's selection for read-only inspection (tests, the
// kernel's TSK_GET diagnostics) without performing the pop: it reports
// which TCB would run next without mutating any queue.
func Pick(ready *ReadySet, tasks *task.Table) *task.TCB {
	for p := rtxtypes.P0; p <= rtxtypes.P3; p++ {
		q := ready.Queue(p)
		if tid, ok := q.Peek(); ok {
			return tasks.Get(tid)
		}
	}
	return tasks.Get(rtxtypes.TIDNull)
}

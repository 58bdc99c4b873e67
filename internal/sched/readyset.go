// Package sched implements the ready-queue set (C4) and scheduler (C5):
// one FIFO per priority level, pure priority-ordered selection, and the
// run_new/yield/set_priority transition drivers that couple selection to
// the context-switch primitive.
package sched

import (
	"github.com/rtxlab/kernel/internal/buddy"
	"github.com/rtxlab/kernel/internal/queue"
	"github.com/rtxlab/kernel/internal/rtxtypes"
)

// ReadySet is one FIFO per priority level, P0 through PrioNull. PrioNull's
// queue stays empty: the null task is never enqueued, and pick falls back
// to it when P0..P3 are all empty.
type ReadySet struct {
	queues [rtxtypes.NumPriorities]*queue.Queue
}

// NewReadySet returns a ready set whose queue nodes are allocated from
// pool.
func NewReadySet(pool *buddy.Pool) *ReadySet {
	r := &ReadySet{}
	for p := range r.queues {
		r.queues[p] = queue.New(pool)
	}
	return r
}

// Queue returns the FIFO for priority p.
func (r *ReadySet) Queue(p rtxtypes.Priority) *queue.Queue {
	return r.queues[p]
}

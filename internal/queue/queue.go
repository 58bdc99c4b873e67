// Package queue implements the ready-queue set (C4): one FIFO per
// priority level, whose nodes are allocated from the kernel pool rather
// than owned by the queue itself. Per spec §9's design note, a node is a
// typed view over raw pool memory -- a handle carrying pool + address --
// not a heap object the queue holds a Go reference to; this is what lets
// "allocated from pool #2, freed on dequeue" be a literal description of
// the implementation rather than a metaphor.
package queue

import (
	"unsafe"

	"github.com/pkg/errors"

	"github.com/rtxlab/kernel/internal/buddy"
	"github.com/rtxlab/kernel/internal/rtxtypes"
)

var ErrEmpty = errors.New("queue is empty")

// node is the on-pool representation of one queued tid.
type node struct {
	tid  rtxtypes.TaskID
	next unsafe.Pointer
}

// Queue is a singly linked FIFO of tids, backed by a buddy pool.
type Queue struct {
	pool       *buddy.Pool
	head, tail unsafe.Pointer
	size       int
}

// New returns an empty queue whose nodes will be allocated from pool.
func New(pool *buddy.Pool) *Queue {
	return &Queue{pool: pool}
}

func nodeAt(p unsafe.Pointer) *node { return (*node)(p) }

// Len reports the number of queued tids.
func (q *Queue) Len() int { return q.size }

// Empty reports whether the queue holds no tids.
func (q *Queue) Empty() bool { return q.size == 0 }

func (q *Queue) newNode(tid rtxtypes.TaskID) (unsafe.Pointer, error) {
	raw, err := q.pool.Alloc(unsafe.Sizeof(node{}))
	if err != nil {
		return nil, errors.Wrap(err, "ready queue: allocate node")
	}
	n := nodeAt(raw)
	n.tid = tid
	n.next = nil
	return raw, nil
}

// PushBack enqueues tid at the back of the queue.
func (q *Queue) PushBack(tid rtxtypes.TaskID) error {
	raw, err := q.newNode(tid)
	if err != nil {
		return err
	}
	if q.size == 0 {
		q.head, q.tail = raw, raw
	} else {
		nodeAt(q.tail).next = raw
		q.tail = raw
	}
	q.size++
	return nil
}

// PushFront inserts tid at the front of the queue, used to re-insert a
// caller that has been preempted but must retain precedence over others
// at the same priority.
func (q *Queue) PushFront(tid rtxtypes.TaskID) error {
	raw, err := q.newNode(tid)
	if err != nil {
		return err
	}
	if q.size == 0 {
		q.head, q.tail = raw, raw
	} else {
		nodeAt(raw).next = q.head
		q.head = raw
	}
	q.size++
	return nil
}

// Pop removes and returns the tid at the front of the queue, freeing
// its node back to the pool.
func (q *Queue) Pop() (rtxtypes.TaskID, error) {
	if q.size == 0 {
		return rtxtypes.TIDNull, ErrEmpty
	}
	n := nodeAt(q.head)
	tid := n.tid
	next := n.next
	if err := q.pool.Free(q.head); err != nil {
		return rtxtypes.TIDNull, errors.Wrap(err, "ready queue: free node")
	}
	q.head = next
	q.size--
	if q.size == 0 {
		q.head, q.tail = nil, nil
	}
	return tid, nil
}

// Peek returns the tid at the front of the queue without removing it.
func (q *Queue) Peek() (rtxtypes.TaskID, bool) {
	if q.size == 0 {
		return rtxtypes.TIDNull, false
	}
	return nodeAt(q.head).tid, true
}

// Contains reports whether tid is currently queued.
func (q *Queue) Contains(tid rtxtypes.TaskID) bool {
	for raw := q.head; raw != nil; raw = nodeAt(raw).next {
		if nodeAt(raw).tid == tid {
			return true
		}
	}
	return false
}

// FindAndDelete removes tid from wherever it sits in the queue, freeing
// its node. It is a linear scan, used only by set_priority per spec
// §4.3.
func (q *Queue) FindAndDelete(tid rtxtypes.TaskID) error {
	var prev unsafe.Pointer
	for raw := q.head; raw != nil; raw = nodeAt(raw).next {
		if nodeAt(raw).tid != tid {
			prev = raw
			continue
		}
		next := nodeAt(raw).next
		if prev == nil {
			q.head = next
		} else {
			nodeAt(prev).next = next
		}
		if raw == q.tail {
			q.tail = prev
		}
		if err := q.pool.Free(raw); err != nil {
			return errors.Wrap(err, "ready queue: free node")
		}
		q.size--
		return nil
	}
	return nil
}

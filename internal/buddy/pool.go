// Package buddy implements a binary-buddy memory allocator over a
// fixed-size, mmap'd pool: O(log N) allocation and deallocation with
// coalescing of free buddies, and a bitmap tracking which tree position
// is live so that a freed address can be walked back to the level it
// was actually allocated at.
package buddy

import (
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ID names one of the two kernel-managed memory pools.
type ID int

const (
	// PoolUser backs SVC-level MEM_ALLOC/MEM_DEALLOC requests: the
	// application-visible heap.
	PoolUser ID = 1
	// PoolKernel backs kernel-internal storage: task user stacks and
	// ready-queue nodes. Never reachable through the MEM_ALLOC opcode.
	PoolKernel ID = 2
)

// Sentinel errors for the error kinds of spec §7. Callers should match
// with errors.Is; every non-nil error returned by this package wraps one
// of these.
var (
	ErrInvalidArg = errors.New("invalid argument")
	ErrNoMemory   = errors.New("no memory available")
	ErrBadAddress = errors.New("address not owned by any pool")
)

// node is the intrusive free-list entry: it lives inside the free block
// it describes, never in separately allocated storage. A block is
// either linked into exactly one level's free list (occupied bit clear)
// or handed out / split (occupied bit set) -- never both.
type node struct {
	prev, next *node
	treepos    int
}

// Pool is the per-pool descriptor (C1): base address, power-of-two
// size, per-level free lists, and the occupancy bitmap coupling tree
// position to free-list membership.
type Pool struct {
	id       ID
	data     []byte // mmap'd backing storage; data[0]'s address is base
	base     uintptr
	sizeLog2 uint
	minLog2  uint
	levels   uint

	mu       sync.Mutex
	freeList []node // sentinel per level; freeList[k] is the head/tail node
	occupied []bool // size 2^levels - 1, indexed by tree position
}

func pow2(n uint) uintptr { return uintptr(1) << n }

// New reserves a pool of 2^sizeLog2 bytes via an anonymous mmap and
// initializes it as a single free block at level 0, matching the
// create() contract of spec §4.1: on success the pool is empty of live
// allocations and its level-0 free list contains exactly one node.
func New(id ID, sizeLog2, minLog2 uint) (*Pool, error) {
	if sizeLog2 < minLog2 {
		return nil, errors.Wrapf(ErrInvalidArg, "pool %d: sizeLog2 %d < minLog2 %d", id, sizeLog2, minLog2)
	}

	size := int(pow2(sizeLog2))
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, errors.Wrapf(err, "pool %d: mmap %d bytes", id, size)
	}

	levels := sizeLog2 - minLog2 + 1
	p := &Pool{
		id:       id,
		data:     data,
		base:     uintptr(unsafe.Pointer(&data[0])),
		sizeLog2: sizeLog2,
		minLog2:  minLog2,
		levels:   levels,
		freeList: make([]node, levels),
		occupied: make([]bool, pow2(levels)-1),
	}
	for k := range p.freeList {
		p.freeList[k].next = &p.freeList[k]
		p.freeList[k].prev = &p.freeList[k]
	}

	root := p.nodeAt(p.base)
	root.treepos = 0
	p.insertBack(0, root)

	return p, nil
}

// Close releases the pool's backing memory. Not part of spec §4.1's
// public contract but the Go-idiomatic counterpart to the teacher's
// buddyDestroy: every mmap gets an matching munmap.
func (p *Pool) Close() error {
	if p.data == nil {
		return nil
	}
	err := unix.Munmap(p.data)
	p.data = nil
	return err
}

// ID reports which pool this is.
func (p *Pool) ID() ID { return p.id }

// Base returns the pool's base address, for EFAULT routing by callers
// that manage more than one pool.
func (p *Pool) Base() uintptr { return p.base }

// Size returns the pool's total byte size, 2^sizeLog2.
func (p *Pool) Size() uintptr { return pow2(p.sizeLog2) }

// Contains reports whether addr falls within this pool's byte range.
func (p *Pool) Contains(addr uintptr) bool {
	return addr >= p.base && addr < p.base+p.Size()
}

func (p *Pool) nodeAt(addr uintptr) *node {
	return (*node)(unsafe.Pointer(addr))
}

func (p *Pool) addrOf(n *node) uintptr {
	return uintptr(unsafe.Pointer(n))
}

// blockSize returns the byte size of a level-k block.
func (p *Pool) blockSize(k uint) uintptr {
	return pow2(p.sizeLog2 - k)
}

func (p *Pool) removeFront(k uint) *node {
	head := &p.freeList[k]
	n := head.next
	if n == head {
		return nil
	}
	n.prev.next = n.next
	n.next.prev = n.prev
	n.next, n.prev = nil, nil
	return n
}

func (p *Pool) insertBack(k uint, n *node) {
	head := &p.freeList[k]
	n.prev = head.prev
	n.next = head
	head.prev.next = n
	head.prev = n
}

// remove detaches n from level k's free list. n must currently be
// linked into that list.
func (p *Pool) remove(n *node) {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.next, n.prev = nil, nil
}

// findInList scans level k's free list for the node with the given
// tree position; returns nil if absent. Mirrors the original kernel's
// buddy-search-by-treepos loop used during coalescing.
func (p *Pool) findInList(k uint, pos int) *node {
	head := &p.freeList[k]
	for n := head.next; n != head; n = n.next {
		if n.treepos == pos {
			return n
		}
	}
	return nil
}

func roundUpLog2(n uintptr) uint {
	var k uint
	for pow2(k) < n {
		k++
	}
	return k
}

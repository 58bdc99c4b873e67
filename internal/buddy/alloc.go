package buddy

import (
	"unsafe"

	"github.com/pkg/errors"
)

// Alloc implements spec §4.1's allocation algorithm: round n up to the
// smallest power-of-two block size >= max(n, 2^minLog2), find or split
// down to the matching level, and hand back that block's address.
//
// A zero-byte request returns (nil, nil): NULL with no error set, per
// spec §4.1's explicit edge case. A request larger than the pool fails
// with ErrNoMemory, never ErrInvalidArg.
func (p *Pool) Alloc(n uintptr) (unsafe.Pointer, error) {
	if n == 0 {
		return nil, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	want := n
	if want < pow2(p.minLog2) {
		want = pow2(p.minLog2)
	}
	b := roundUpLog2(want)
	if b > p.sizeLog2 {
		return nil, errors.Wrapf(ErrNoMemory, "pool %d: request %d exceeds pool size %d", p.id, n, p.Size())
	}
	k := p.sizeLog2 - b // target level

	// Scan up from level k to the nearest level j <= k with a non-empty
	// free list: the smallest free block that is big enough.
	j := k
	for j > 0 && p.freeList[j].next == &p.freeList[j] {
		j--
	}
	if p.freeList[j].next == &p.freeList[j] {
		return nil, errors.Wrapf(ErrNoMemory, "pool %d: no block available for level %d", p.id, k)
	}

	blk := p.removeFront(j)
	p.occupied[blk.treepos] = true

	for j < k {
		addr := p.addrOf(blk)
		half := p.blockSize(j + 1)
		c1pos, c2pos := childPositions(blk.treepos)

		child1 := p.nodeAt(addr)
		child1.treepos = c1pos
		child2 := p.nodeAt(addr + half)
		child2.treepos = c2pos

		p.insertBack(j+1, child1)
		p.insertBack(j+1, child2)

		j++
		blk = p.removeFront(j)
		p.occupied[blk.treepos] = true
	}

	return unsafe.Pointer(p.addrOf(blk)), nil
}

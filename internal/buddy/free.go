package buddy

import (
	"unsafe"

	"github.com/pkg/errors"
)

// locateAllocation ascends from the deepest tree position addr could
// occupy until it finds an occupied one, per spec §4.1's deallocation
// step 2: allocations of different sizes share a base address but
// differ in level, so the occupied bit is what disambiguates which
// level a given address was actually handed out at.
func (p *Pool) locateAllocation(target uintptr) (level uint, pos int, err error) {
	offset := target - p.base
	leafIndex := offset / pow2(p.minLog2)
	k := p.levels - 1
	tp := treePos(k, uint(leafIndex))

	for k > 0 && !p.occupied[tp] {
		k--
		leafIndex /= 2
		tp = treePos(k, uint(leafIndex))
	}
	if !p.occupied[tp] {
		return 0, 0, errors.Wrapf(ErrInvalidArg, "pool %d: address %#x is not a live allocation (double free?)", p.id, target)
	}
	return k, tp, nil
}

// SizeOf reports the byte size of the live allocation at addr. It is a
// read-only counterpart to Free's level-location step, useful to a
// caller that wants to confirm how a request's size was rounded without
// releasing the block.
func (p *Pool) SizeOf(addr unsafe.Pointer) (uintptr, error) {
	if addr == nil {
		return 0, errors.Wrap(ErrInvalidArg, "pool: SizeOf(nil)")
	}
	target := uintptr(addr)
	if !p.Contains(target) {
		return 0, errors.Wrapf(ErrBadAddress, "pool %d: address %#x outside pool range", p.id, target)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	k, _, err := p.locateAllocation(target)
	if err != nil {
		return 0, err
	}
	return p.blockSize(k), nil
}

// Free implements spec §4.1's deallocation algorithm: locate the level
// the block was actually allocated at by ascending the tree until an
// occupied tree position is found, clear it, and coalesce with the
// buddy for as long as the buddy is free and not itself split.
//
// p == nil is a no-op returning nil, matching spec's "NULL is a no-op".
func (p *Pool) Free(addr unsafe.Pointer) error {
	if addr == nil {
		return nil
	}
	target := uintptr(addr)
	if !p.Contains(target) {
		return errors.Wrapf(ErrBadAddress, "pool %d: address %#x outside pool range", p.id, target)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	k, pos, err := p.locateAllocation(target)
	if err != nil {
		return err
	}
	p.occupied[pos] = false

	blockAddr := p.base + uintptr(blockNum(pos))*p.blockSize(k)

	for k > 0 {
		bpos := buddyPos(pos)
		if p.occupied[bpos] {
			break
		}
		buddy := p.findInList(k, bpos)
		if buddy == nil {
			// Buddy's occupied bit is clear yet it is absent from this
			// level's free list: it is mid-split below us. Stop
			// coalescing here rather than merge into a phantom block.
			break
		}
		p.remove(buddy)

		buddyAddr := p.addrOf(buddy)
		if buddyAddr < blockAddr {
			blockAddr = buddyAddr
		}

		pos = parentPos(pos)
		k--
		// The parent was marked occupied when it was split; now that its
		// halves are merged it is a free block again.
		p.occupied[pos] = false
	}

	merged := p.nodeAt(blockAddr)
	merged.treepos = pos
	p.insertBack(k, merged)

	return nil
}

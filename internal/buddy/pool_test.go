package buddy

import (
	"testing"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertOneFreeRoot(t *testing.T, p *Pool) {
	t.Helper()
	dump := p.Dump()
	require.Len(t, dump, 1)
	assert.Equal(t, p.base, dump[0].Addr)
	assert.Equal(t, p.Size(), dump[0].Size)
	assert.False(t, p.occupied[0])
}

func TestNewPoolStartsAsOneFreeBlock(t *testing.T) {
	p, err := New(PoolUser, 15, 5) // 32 KiB pool, 32 B min block
	require.NoError(t, err)
	defer p.Close()

	assertOneFreeRoot(t, p)
}

func TestAllocRoundsUpToPowerOfTwo(t *testing.T) {
	p, err := New(PoolUser, 15, 5) // 32 KiB pool, 32 B min block
	require.NoError(t, err)
	defer p.Close()

	cases := []struct {
		n    uintptr
		want uintptr
	}{
		{1, 32},
		{50, 64},
		{5000, 8192},
	}
	for _, c := range cases {
		addr, err := p.Alloc(c.n)
		require.NoError(t, err)
		require.NotNil(t, addr)

		size, err := p.SizeOf(addr)
		require.NoError(t, err)
		assert.Equal(t, c.want, size, "alloc(%d) should round to %d bytes", c.n, c.want)

		require.NoError(t, p.Free(addr))
		assertOneFreeRoot(t, p)
	}
}

func TestSizeOfRejectsNilAndOutOfRange(t *testing.T) {
	p, err := New(PoolUser, 12, 5)
	require.NoError(t, err)
	defer p.Close()

	_, err = p.SizeOf(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidArg))

	far := unsafe.Pointer(p.base + p.Size() + 4096)
	_, err = p.SizeOf(far)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadAddress))
}

func TestAllocZeroReturnsNilNoError(t *testing.T) {
	p, err := New(PoolUser, 15, 5)
	require.NoError(t, err)
	defer p.Close()

	addr, err := p.Alloc(0)
	assert.NoError(t, err)
	assert.Nil(t, addr)
}

func TestAllocLargerThanPoolIsNoMemNotInvalid(t *testing.T) {
	p, err := New(PoolUser, 10, 5) // 1 KiB pool
	require.NoError(t, err)
	defer p.Close()

	addr, err := p.Alloc(2048)
	assert.Nil(t, addr)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoMemory))
}

func TestAllocSaturationThenReverseFree(t *testing.T) {
	p, err := New(PoolUser, 10, 5) // 1 KiB pool, 32 B blocks -> 32 blocks
	require.NoError(t, err)
	defer p.Close()

	const blockSize = 32
	want := int(p.Size()) / blockSize

	var ptrs []unsafe.Pointer
	for i := 0; i < want; i++ {
		addr, err := p.Alloc(blockSize)
		require.NoError(t, err)
		require.NotNil(t, addr)
		ptrs = append(ptrs, addr)
	}

	addr, err := p.Alloc(blockSize)
	assert.Nil(t, addr)
	assert.True(t, errors.Is(err, ErrNoMemory))

	for i := len(ptrs) - 1; i >= 0; i-- {
		require.NoError(t, p.Free(ptrs[i]))
	}
	assertOneFreeRoot(t, p)
}

func TestAllocOneLargeConsumesEntirePool(t *testing.T) {
	p, err := New(PoolUser, 12, 5) // 4 KiB pool
	require.NoError(t, err)
	defer p.Close()

	addr, err := p.Alloc(p.Size())
	require.NoError(t, err)
	require.NotNil(t, addr)
	assert.Equal(t, p.base, uintptr(addr))
	assert.Empty(t, p.Dump())

	require.NoError(t, p.Free(addr))
	assertOneFreeRoot(t, p)
}

func TestAllocAlignment(t *testing.T) {
	p, err := New(PoolUser, 14, 5)
	require.NoError(t, err)
	defer p.Close()

	min := p.Size() >> (p.levels - 1)
	for n := uintptr(1); n <= 200; n += 7 {
		addr, err := p.Alloc(n)
		require.NoError(t, err)
		require.NotNil(t, addr)
		assert.Zero(t, uintptr(addr)%min)
		require.NoError(t, p.Free(addr))
	}
}

func TestFreeNilIsNoOp(t *testing.T) {
	p, err := New(PoolUser, 12, 5)
	require.NoError(t, err)
	defer p.Close()

	assert.NoError(t, p.Free(nil))
}

func TestFreeOutsidePoolIsBadAddress(t *testing.T) {
	p, err := New(PoolUser, 12, 5)
	require.NoError(t, err)
	defer p.Close()

	far := unsafe.Pointer(p.base + p.Size() + 4096)
	err = p.Free(far)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadAddress))
}

func TestDoubleFreeIsDetected(t *testing.T) {
	p, err := New(PoolUser, 12, 5)
	require.NoError(t, err)
	defer p.Close()

	addr, err := p.Alloc(64)
	require.NoError(t, err)
	require.NoError(t, p.Free(addr))

	err = p.Free(addr)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidArg))
}

func TestRoundTripRestoresFreeListState(t *testing.T) {
	p, err := New(PoolUser, 16, 5)
	require.NoError(t, err)
	defer p.Close()

	before := p.Dump()
	addr, err := p.Alloc(1000)
	require.NoError(t, err)
	require.NoError(t, p.Free(addr))
	after := p.Dump()

	require.Len(t, after, len(before))
	assert.Equal(t, before[0], after[0])
}

func TestCoalescingCompleteness(t *testing.T) {
	p, err := New(PoolUser, 16, 6)
	require.NoError(t, err)
	defer p.Close()

	var ptrs []unsafe.Pointer
	sizes := []uintptr{64, 64, 128, 256, 512, 64, 1024}
	for _, s := range sizes {
		addr, err := p.Alloc(s)
		require.NoError(t, err)
		ptrs = append(ptrs, addr)
	}
	for _, addr := range ptrs {
		require.NoError(t, p.Free(addr))
	}
	assertOneFreeRoot(t, p)
}

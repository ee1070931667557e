package cedar

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ugparu/twig"
)

const testPage = 4096

func TestChunkListBestFit(t *testing.T) {
	t.Parallel()

	l := newChunkList(0x4000_0000, 16*testPage, testPage)

	a, size, err := l.alloc(100)
	require.NoError(t, err)
	require.Equal(t, uint32(0x4000_0000), a)
	require.Equal(t, testPage, size)

	b, _, err := l.alloc(3 * testPage)
	require.NoError(t, err)
	require.Equal(t, uint32(0x4000_1000), b)

	c, _, err := l.alloc(testPage)
	require.NoError(t, err)
	require.Equal(t, uint32(0x4000_4000), c)

	// Free the 3-page hole; a 2-page request must prefer it over the 11-page tail.
	require.True(t, l.free(b))
	d, _, err := l.alloc(2 * testPage)
	require.NoError(t, err)
	require.Equal(t, b, d)

	// The leftover single page in the hole is an exact fit.
	e, _, err := l.alloc(testPage)
	require.NoError(t, err)
	require.Equal(t, uint32(0x4000_3000), e)

	_, _, err = l.alloc(12 * testPage)
	require.ErrorIs(t, err, twig.ErrAllocationFailed)
	_, _, err = l.alloc(0)
	require.ErrorIs(t, err, twig.ErrAllocationFailed)
}

func TestChunkListCoalesce(t *testing.T) {
	t.Parallel()

	l := newChunkList(0x1000_0000, 4*testPage, testPage)
	var addrs []uint32
	for range 4 {
		a, _, err := l.alloc(testPage)
		require.NoError(t, err)
		addrs = append(addrs, a)
	}
	require.Zero(t, l.freeBytes())

	require.True(t, l.free(addrs[1]))
	require.True(t, l.free(addrs[2]))
	require.Len(t, l.chunks, 3)
	require.False(t, l.free(addrs[2]))

	a, _, err := l.alloc(2 * testPage)
	require.NoError(t, err)
	require.Equal(t, addrs[1], a)

	for _, a := range []uint32{addrs[0], addrs[1], addrs[3]} {
		require.True(t, l.free(a))
	}
	require.Len(t, l.chunks, 1)
	require.Equal(t, 4*testPage, l.freeBytes())
}

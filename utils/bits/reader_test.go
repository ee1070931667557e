package bits

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUERoundTrip(t *testing.T) {
	t.Parallel()

	values := []uint32{0, 1, 2, 3, 4, 7, 8, 15, 16, 31, 255, 256, 1000, 65535, 1 << 20, 1<<31 - 1, 1<<32 - 2}
	w := new(Writer)
	for _, v := range values {
		w.PutUE(v)
	}
	r := NewReader(w.Bytes())
	for _, want := range values {
		got, err := r.GetUE()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestSERoundTrip(t *testing.T) {
	t.Parallel()

	values := []int32{0, 1, -1, 2, -2, 3, -3, 26, -26, 127, -128, 1 << 20, -(1 << 20)}
	w := new(Writer)
	for _, v := range values {
		w.PutSE(v)
	}
	r := NewReader(w.Bytes())
	for _, want := range values {
		got, err := r.GetSE()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestKnownCodes(t *testing.T) {
	t.Parallel()

	// 1 | 010 | 011 | 00100 -> 0, 1, 2, 3
	r := NewReader([]byte{0b10100110, 0b01000000})
	for want := uint32(0); want < 4; want++ {
		got, err := r.GetUE()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	require.Equal(t, 12, r.BitPos())
}

func TestShowBitsDoesNotAdvance(t *testing.T) {
	t.Parallel()

	r := NewReader([]byte{0xde, 0xad, 0xbe, 0xef, 0x01})
	for _, n := range []int{1, 3, 8, 13, 32} {
		require.NoError(t, r.SetBitPos(5))
		shown, err := r.ShowBits(n)
		require.NoError(t, err)
		require.Equal(t, 5, r.BitPos())

		got, err := r.GetBits(n)
		require.NoError(t, err)
		require.Equal(t, shown, got)
		require.Equal(t, 5+n, r.BitPos())

		require.NoError(t, r.SetBitPos(5))
		again, err := r.ShowBits(n)
		require.NoError(t, err)
		require.Equal(t, got, again)
	}
}

func TestGetBitsFailsClosed(t *testing.T) {
	t.Parallel()

	r := NewReader([]byte{0xff})
	v, err := r.GetBits(0)
	require.ErrorIs(t, err, ErrInsufficientData)
	require.Zero(t, v)

	v, err = r.GetBits(33)
	require.ErrorIs(t, err, ErrInsufficientData)
	require.Zero(t, v)

	v, err = r.GetBits(9)
	require.ErrorIs(t, err, ErrInsufficientData)
	require.Zero(t, v)
	require.Equal(t, 0, r.BitPos())

	v, err = r.GetBits(8)
	require.NoError(t, err)
	require.Equal(t, uint32(0xff), v)
	require.Equal(t, 0, r.BitsLeft())
}

func TestCorruptGolomb(t *testing.T) {
	t.Parallel()

	r := NewReader(make([]byte, 8))
	v, err := r.GetUE()
	require.ErrorIs(t, err, ErrCorruptCode)
	require.Zero(t, v)

	r = NewReader([]byte{0x00, 0x00})
	_, err = r.GetUE()
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestByteAlignAndSkip(t *testing.T) {
	t.Parallel()

	r := NewReader([]byte{0x80, 0x01})
	_, err := r.GetBit()
	require.NoError(t, err)
	r.ByteAlign()
	require.Equal(t, 8, r.BitPos())
	r.ByteAlign()
	require.Equal(t, 8, r.BitPos())

	require.NoError(t, r.SkipBits(7))
	b, err := r.GetBit()
	require.NoError(t, err)
	require.Equal(t, uint32(1), b)
	require.ErrorIs(t, r.SkipBits(1), ErrInsufficientData)
}

func TestMoreRBSPData(t *testing.T) {
	t.Parallel()

	// payload 101, then stop bit and alignment zeros
	r := NewReader([]byte{0b10110000})
	require.True(t, r.MoreRBSPData())
	_, err := r.GetBits(3)
	require.NoError(t, err)
	require.False(t, r.MoreRBSPData())

	require.False(t, NewReader([]byte{0, 0}).MoreRBSPData())
	require.False(t, NewReader(nil).MoreRBSPData())

	// trailing cabac_zero_words do not count as data
	r = NewReader([]byte{0b11000000, 0x00, 0x00})
	_, err = r.GetBit()
	require.NoError(t, err)
	require.False(t, r.MoreRBSPData())
}

func TestNALReaderRemovesEmulationPrevention(t *testing.T) {
	t.Parallel()

	r := NewNALReader([]byte{0x00, 0x00, 0x03, 0x01, 0xff})
	v, err := r.GetBits(24)
	require.NoError(t, err)
	require.Equal(t, uint32(0x000001), v)
	require.Equal(t, 8, r.BitsLeft())
}

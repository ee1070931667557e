package pio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestByteOrder(t *testing.T) {
	t.Parallel()

	b := make([]byte, 4)
	PutU32BE(b, 0x01020304)
	require.Equal(t, []byte{1, 2, 3, 4}, b)
	require.Equal(t, uint32(0x01020304), U32BE(b))
	require.Equal(t, uint32(0x04030201), U32LE(b))
	require.Equal(t, uint32(0x010203), U24BE(b))
	require.Equal(t, uint16(0x0102), U16BE(b))

	PutU32LE(b, 0x01020304)
	require.Equal(t, []byte{4, 3, 2, 1}, b)

	PutU24BE(b, 0x000001)
	require.Equal(t, []byte{0, 0, 1}, b[:3])
	PutU16BE(b, 0xabcd)
	require.Equal(t, uint16(0xabcd), U16BE(b))
}

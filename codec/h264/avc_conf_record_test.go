package h264_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ugparu/twig/codec/h264"
)

func TestAVCDecoderConfRecord(t *testing.T) {
	t.Parallel()

	rec := h264.AVCDecoderConfRecord{
		AVCProfileIndication: 100,
		AVCLevelIndication:   41,
		LengthSizeMinusOne:   1,
		SPS:                  [][]byte{{0x67, 1, 2}, {0x67, 3}},
		PPS:                  [][]byte{{0x68, 4}},
	}
	b := make([]byte, rec.Len())
	require.Equal(t, len(b), rec.Marshal(b))
	require.Equal(t, []byte{1, 100, 0, 41, 0xfd, 0xe2, 0, 3, 0x67, 1, 2, 0, 2, 0x67, 3, 1, 0, 2, 0x68, 4}, b)

	var got h264.AVCDecoderConfRecord
	n, err := got.Unmarshal(append(b, 0xfc, 0xf8)) // High profile trailer.
	require.NoError(t, err)
	require.Equal(t, len(b), n)
	require.Equal(t, rec, got)
	require.Equal(t, 2, got.LengthSize())
}

func TestAVCDecoderConfRecordRejects(t *testing.T) {
	t.Parallel()

	for name, b := range map[string][]byte{
		"short":          {1, 66, 0, 30, 0xff},
		"version":        {0, 66, 0, 30, 0xff, 0xe0, 0},
		"3 byte lengths": {1, 66, 0, 30, 0xfe, 0xe0, 0},
		"sps truncated":  {1, 66, 0, 30, 0xff, 0xe1, 0, 9, 0x67},
		"no pps count":   {1, 66, 0, 30, 0xff, 0xe1, 0, 1, 0x67},
		"pps truncated":  {1, 66, 0, 30, 0xff, 0xe0, 1, 0},
	} {
		var rec h264.AVCDecoderConfRecord
		_, err := rec.Unmarshal(b)
		require.ErrorIs(t, err, h264.ErrDecconfInvalid, name)
	}
}

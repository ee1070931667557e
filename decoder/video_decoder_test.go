package decoder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ugparu/twig"
	codec "github.com/ugparu/twig/codec/h264"
	"github.com/ugparu/twig/codec/h264/h264test"
	"github.com/ugparu/twig/decoder/h264"
	"github.com/ugparu/twig/hw/fake"
	"github.com/ugparu/twig/utils/bits/pio"
)

var (
	testSPS = h264test.SPSConfig{WidthMbs: 2, HeightMbs: 2, MaxNumRefFrames: 2}
	testPPS = h264test.PPSConfig{}
)

func idrSlice() []byte {
	return h264test.Slice(testSPS, testPPS, h264test.SliceConfig{
		IDR: true, RefIDC: 3, Type: codec.SliceI, DataBytes: 8,
	})
}

func pSlice(frameNum uint32) []byte {
	return h264test.Slice(testSPS, testPPS, h264test.SliceConfig{
		RefIDC: 2, Type: codec.SliceP, FrameNum: frameNum, POCLsb: 2 * frameNum, DataBytes: 8,
	})
}

func avcc(units ...[]byte) []byte {
	var out []byte
	for _, u := range units {
		n := len(out)
		out = append(out, 0, 0, 0, 0)
		pio.PutU32BE(out[n:], uint32(len(u))) //nolint:gosec
		out = append(out, u...)
	}
	return out
}

func startStream(t *testing.T, fps int) (*Stream, *fake.Device) {
	t.Helper()
	dev := fake.NewDevice()
	s := NewStream(dev, h264.DefaultConfig(), nil, 4, fps)
	require.NoError(t, s.Decode())
	return s, dev
}

func nextFrame(t *testing.T, s *Stream) *Frame {
	t.Helper()
	select {
	case frm := <-s.Frames():
		return frm
	case err := <-s.Errors():
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("no frame")
	}
	return nil
}

func TestStreamAnnexB(t *testing.T) {
	t.Parallel()

	s, dev := startStream(t, 0)
	s.Packets() <- Packet{Data: h264test.AnnexB(h264test.SPS(testSPS), h264test.PPS(testPPS), idrSlice())}
	s.Packets() <- Packet{Data: h264test.AnnexB(pSlice(1)), Timestamp: 40 * time.Millisecond}

	first := nextFrame(t, s)
	require.True(t, first.IDR)
	require.Equal(t, 32, first.Width)
	require.Len(t, first.Luma(), 32*32)

	second := nextFrame(t, s)
	require.Equal(t, int32(2), second.POC)
	require.Equal(t, 40*time.Millisecond, second.Timestamp)

	first.Release()
	second.Release()
	first.Release()

	s.Close()
	require.Zero(t, dev.Live())
	require.False(t, dev.Enabled())
	_, ok := <-s.Frames()
	require.False(t, ok)
}

func TestStreamAVCC(t *testing.T) {
	t.Parallel()

	par, err := codec.NewCodecDataFromSPSAndPPS(h264test.SPS(testSPS), h264test.PPS(testPPS))
	require.NoError(t, err)

	s, _ := startStream(t, 0)
	defer s.Close()

	record := par.AVCDecoderConfRecordBytes()
	s.Packets() <- Packet{Data: avcc(idrSlice()), Extradata: record}
	s.Packets() <- Packet{Data: avcc(pSlice(1)), Extradata: record}

	frm := nextFrame(t, s)
	require.True(t, frm.IDR)
	frm.Release()
	frm = nextFrame(t, s)
	require.Equal(t, int32(1), frm.FrameNum)
	frm.Release()
}

func TestStreamWaitsForKeyFrame(t *testing.T) {
	t.Parallel()

	s, dev := startStream(t, 0)
	defer s.Close()

	s.Packets() <- Packet{Data: h264test.AnnexB(pSlice(1))}
	s.Packets() <- Packet{Data: h264test.AnnexB(h264test.SPS(testSPS), h264test.PPS(testPPS), idrSlice())}

	frm := nextFrame(t, s)
	require.True(t, frm.IDR)
	require.Equal(t, 1, dev.Decodes())
	frm.Release()
}

func TestStreamReportsErrors(t *testing.T) {
	t.Parallel()

	s, _ := startStream(t, 0)
	defer s.Close()

	// A key frame without parameter sets.
	s.Packets() <- Packet{Data: h264test.AnnexB(idrSlice())}
	select {
	case err := <-s.Errors():
		require.ErrorIs(t, err, twig.ErrNoParameterSets)
	case <-time.After(time.Second):
		t.Fatal("no error")
	}

	s.Packets() <- Packet{Extradata: []byte{1, 2}}
	select {
	case err := <-s.Errors():
		require.ErrorIs(t, err, codec.ErrDecconfInvalid)
	case <-time.After(time.Second):
		t.Fatal("no error")
	}

	// The stream keeps decoding after failures.
	s.Packets() <- Packet{Data: h264test.AnnexB(h264test.SPS(testSPS), h264test.PPS(testPPS), idrSlice())}
	nextFrame(t, s).Release()
}

func TestStreamFPSLimit(t *testing.T) {
	t.Parallel()

	s, dev := startStream(t, 1)
	defer s.Close()

	s.Packets() <- Packet{Data: h264test.AnnexB(h264test.SPS(testSPS), h264test.PPS(testPPS), idrSlice())}
	s.Packets() <- Packet{Data: h264test.AnnexB(pSlice(1))}
	s.Packets() <- Packet{Data: h264test.AnnexB(pSlice(2))}

	frm := nextFrame(t, s)
	require.True(t, frm.IDR)
	require.Eventually(t, func() bool { return dev.Decodes() == 3 }, time.Second, time.Millisecond)
	require.Empty(t, s.Frames())
	frm.Release()
}

func TestStreamEndsOnClosedInput(t *testing.T) {
	t.Parallel()

	s, _ := startStream(t, 0)
	s.Packets() <- Packet{Data: h264test.AnnexB(h264test.SPS(testSPS), h264test.PPS(testPPS), idrSlice())}
	close(s.Packets())

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("stream did not end")
	}
	frm := nextFrame(t, s)
	require.True(t, frm.IDR)
	frm.Release()
	s.Close()
}

func TestDurationFromFPS(t *testing.T) {
	t.Parallel()

	require.Equal(t, 40*time.Millisecond, DurationFromFPS(25))
	require.Zero(t, DurationFromFPS(0))
}

package h264

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ugparu/twig/utils/bits"
)

func flat4x4(v uint8) (l [16]uint8) {
	for i := range l {
		l[i] = v
	}
	return
}

func TestScalingDeltas(t *testing.T) {
	t.Parallel()

	w := &bits.Writer{}
	w.PutSE(8) // 8 -> 16, repeated by next == 0 after the second delta
	w.PutSE(-16)
	w.PutTrailingBits()

	r := &fieldReader{src: bits.NewReader(w.Bytes())}
	l := parseScalingList4x4(r, 0)
	require.NoError(t, r.err)
	require.Equal(t, flat4x4(16), l)
}

func TestScalingUseDefault(t *testing.T) {
	t.Parallel()

	w := &bits.Writer{}
	w.PutSE(-8)
	w.PutSE(-8)
	w.PutTrailingBits()

	r := &fieldReader{src: bits.NewReader(w.Bytes())}
	require.Equal(t, Default4x4Inter, parseScalingList4x4(r, 1))
	require.Equal(t, Default8x8Inter, parseScalingList8x8(r, 1))
	require.NoError(t, r.err)
}

func TestScalingZigzagToRaster(t *testing.T) {
	t.Parallel()

	// Increasing values in scan order land on raster positions given by the zigzag table.
	w := &bits.Writer{}
	w.PutSE(-7)
	for range 15 {
		w.PutSE(1)
	}
	w.PutTrailingBits()

	r := &fieldReader{src: bits.NewReader(w.Bytes())}
	l := parseScalingList4x4(r, 3)
	require.NoError(t, r.err)
	for scan, raster := range zigzag4x4 {
		require.Equal(t, uint8(scan+1), l[raster])
	}
}

func TestDefaultTables(t *testing.T) {
	t.Parallel()

	require.Equal(t, Default4x4Intra, default4x4(0))
	require.Equal(t, Default4x4Inter, default4x4(1))
	require.Equal(t, Default4x4Inter, default4x4(2))
	require.Equal(t, Default4x4Intra, default4x4(3))
	require.Equal(t, Default4x4Inter, default4x4(5))
	require.Equal(t, Default8x8Intra, default8x8(0))
	require.Equal(t, Default8x8Inter, default8x8(1))
	require.Equal(t, uint8(6), Default4x4Intra[0])
	require.Equal(t, uint8(42), Default4x4Intra[15])
}

func TestResolveScalingLists(t *testing.T) {
	t.Parallel()

	t.Run("absent", func(t *testing.T) {
		t.Parallel()
		out := ResolveScalingLists(&SPS{}, &PPS{})
		require.True(t, out.Default)
		require.Equal(t, Default4x4Intra, out.List4x4[0])
		require.Equal(t, Default4x4Inter, out.List4x4[1])
		require.Equal(t, Default4x4Intra, out.List4x4[3])
		require.Equal(t, Default4x4Inter, out.List4x4[4])
		require.Equal(t, Default8x8Intra, out.List8x8[0])
	})

	t.Run("explicit defaults", func(t *testing.T) {
		t.Parallel()
		sps := &SPS{}
		sps.Scaling.Present = true
		sps.Scaling.ListPresent[0] = true
		sps.Scaling.List4x4[0] = Default4x4Intra
		out := ResolveScalingLists(sps, &PPS{})
		require.True(t, out.Default)
	})

	t.Run("list 3 intra default", func(t *testing.T) {
		t.Parallel()
		sps := &SPS{}
		sps.Scaling.Present = true
		sps.Scaling.ListPresent[3] = true
		sps.Scaling.List4x4[3] = Default4x4Intra
		out := ResolveScalingLists(sps, &PPS{})
		require.True(t, out.Default)
		require.Equal(t, Default4x4Intra, out.List4x4[3])

		sps.Scaling.List4x4[3] = Default4x4Inter
		require.False(t, ResolveScalingLists(sps, &PPS{}).Default)
	})

	t.Run("pps over sps", func(t *testing.T) {
		t.Parallel()
		sps := &SPS{}
		sps.Scaling.Present = true
		sps.Scaling.ListPresent[0] = true
		sps.Scaling.ListPresent[1] = true
		sps.Scaling.List4x4[0] = flat4x4(20)
		sps.Scaling.List4x4[1] = flat4x4(21)

		pps := &PPS{}
		pps.Scaling.Present = true
		pps.Scaling.ListPresent[0] = true
		pps.Scaling.List4x4[0] = flat4x4(30)
		pps.Scaling.ListPresent[6] = true
		pps.Scaling.List8x8[0][0] = 99

		out := ResolveScalingLists(sps, pps)
		require.False(t, out.Default)
		require.Equal(t, flat4x4(30), out.List4x4[0])
		require.Equal(t, flat4x4(21), out.List4x4[1])
		require.Equal(t, Default4x4Inter, out.List4x4[2])
		// 8x8 lists of a PPS apply only with transform_8x8_mode_flag.
		require.Equal(t, Default8x8Intra, out.List8x8[0])

		pps.Transform8x8Mode = true
		out = ResolveScalingLists(sps, pps)
		require.Equal(t, uint8(99), out.List8x8[0][0])
	})
}

package h264

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ugparu/twig"
	codec "github.com/ugparu/twig/codec/h264"
	"github.com/ugparu/twig/hw/fake"
	"github.com/ugparu/twig/hw/regs"
)

func TestWriteRefList(t *testing.T) {
	t.Parallel()

	rec := regs.NewRecorder()
	writeRefList(rec, regs.SRAMRefList0, []int{0, 1, 2, 3, 4})
	require.Equal(t, []uint32{0x06040200, 0x00000008}, rec.SRAM(regs.SRAMRefList0, 2))
	require.Len(t, rec.WritesTo(regs.H264RAMWriteData), 2)

	rec = regs.NewRecorder()
	writeRefList(rec, regs.SRAMRefList1, nil)
	require.Empty(t, rec.Writes())
}

func TestWriteFrameBufferList(t *testing.T) {
	t.Parallel()

	p, f := refFrames(t, 4, 8)
	p.MarkUnref(f[0])
	target := acquire(t, p, fake.NewDevice())
	target.POC = 12
	lumaSize := testWidth * testHeight

	rec := regs.NewRecorder()
	writeFrameBufferList(rec, p, target, lumaSize)
	words := rec.SRAM(regs.SRAMFrameBufferList, MaxFramePoolSize*descriptorWords)
	require.Len(t, rec.WritesTo(regs.H264RAMWriteData), MaxFramePoolSize*descriptorWords)

	desc := func(i int) []uint32 { return words[i*descriptorWords : (i+1)*descriptorWords] }
	require.Equal(t, make([]uint32, descriptorWords), desc(f[0].Index))

	luma := twig.DeviceAddr(f[1].Buffer)
	extra := twig.DeviceAddr(f[1].Extra)
	require.Equal(t, []uint32{
		8, 8, frameBothRef,
		luma, luma + uint32(lumaSize),
		extra, extra + uint32(f[1].Extra.Size()/2),
		0,
	}, desc(f[1].Index))

	td := desc(target.Index)
	require.Equal(t, []uint32{12, 12, 0}, td[:3])
	require.Equal(t, twig.DeviceAddr(target.Buffer), td[3])
}

func TestWritePredWeights(t *testing.T) {
	t.Parallel()

	var tbl codec.PredWeightTable
	tbl.LumaLog2Denom, tbl.ChromaLog2Denom = 5, 4
	tbl.Luma[0][0] = codec.Weight{Weight: 40, Offset: -3}
	tbl.Chroma[0][0] = [2]codec.Weight{{Weight: 20, Offset: 1}, {Weight: 12, Offset: -1}}
	tbl.Luma[1][1] = codec.Weight{Weight: 32}

	rec := regs.NewRecorder()
	writePredWeights(rec, &tbl)
	require.Equal(t, uint32(4<<4|5), rec.Read32(regs.H264PredWeight))

	words := rec.SRAM(regs.SRAMPredWeight, 192)
	require.Equal(t, uint32(0x1fd<<16|40), words[0])
	require.Equal(t, uint32(1<<16|20), words[32])
	require.Equal(t, uint32(0x1ff<<16|12), words[33])
	require.Equal(t, uint32(32), words[96+1])
}

func TestWriteScalingLists(t *testing.T) {
	t.Parallel()

	var sl codec.ScalingLists
	for i := range sl.List8x8[0] {
		sl.List8x8[0][i] = uint8(i)
	}
	sl.List4x4[5] = [16]uint8{1, 2, 3, 4}

	rec := regs.NewRecorder()
	writeScalingLists(rec, &sl)
	words := rec.SRAM(regs.SRAMScalingLists, 56)
	require.Len(t, rec.WritesTo(regs.H264RAMWriteData), 56)
	require.Equal(t, uint32(0x03020100), words[0])
	require.Equal(t, uint32(0x3f3e3d3c), words[15])
	require.Equal(t, uint32(0x04030201), words[32+5*4])
}

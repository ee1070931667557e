package h264

import (
	"github.com/ugparu/twig"
	codec "github.com/ugparu/twig/codec/h264"
	"github.com/ugparu/twig/hw/regs"
	"github.com/ugparu/twig/utils/bits/pio"
)

// Frame buffer list descriptor layout.
const (
	descriptorWords = 8
	frameBothRef    = 0x3 // Top and bottom field used for reference.
	frameTypeShift  = 8   // Picture structure: 0 progressive, 1 interlaced frame, 2 field.

	maxRefListEntries = 32
)

// frameDescriptor returns the eight frame buffer list words of f.
func frameDescriptor(f *Frame, lumaSize int, info uint32) [descriptorWords]uint32 {
	luma := twig.DeviceAddr(f.Buffer)
	extra := twig.DeviceAddr(f.Extra)
	return [descriptorWords]uint32{
		uint32(f.POC), //nolint:gosec
		uint32(f.POC), //nolint:gosec
		info,
		luma,
		luma + uint32(lumaSize), //nolint:gosec
		extra,
		extra + uint32(f.Extra.Size()/2), //nolint:gosec
		0,
	}
}

// writeFrameBufferList loads all MaxFramePoolSize descriptors. Reference frames and
// the decode target are described; every other slot is zeroed.
func writeFrameBufferList(f regs.File, pool *Pool, target *Frame, lumaSize int) {
	words := make([]uint32, MaxFramePoolSize*descriptorWords)
	for _, fr := range pool.Frames() {
		var d [descriptorWords]uint32
		switch {
		case fr == target:
			d = frameDescriptor(fr, lumaSize, 0<<frameTypeShift)
		case fr.IsReference:
			d = frameDescriptor(fr, lumaSize, 0<<frameTypeShift|frameBothRef)
		default:
			continue
		}
		copy(words[fr.Index*descriptorWords:], d[:])
	}
	regs.WriteSRAM(f, regs.SRAMFrameBufferList, words...)
}

// writeRefList loads one reference list: a byte per entry holding the frame
// buffer list index shifted left by one, the low bit selecting the bottom field.
func writeRefList(f regs.File, addr uint32, list []int) {
	if len(list) == 0 {
		return
	}
	n := min(len(list), maxRefListEntries)
	b := make([]byte, (n+3)&^3)
	for i, idx := range list[:n] {
		b[i] = byte(idx << 1)
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = pio.U32LE(b[i*4:])
	}
	regs.WriteSRAM(f, addr, words...)
}

func weightWord(w codec.Weight) uint32 {
	return uint32(w.Offset&0x1ff)<<16 | uint32(w.Weight&0xff) //nolint:gosec,mnd
}

// writePredWeights programs the denominators and loads the explicit weight table:
// luma L0, chroma L0, luma L1, chroma L1.
func writePredWeights(f regs.File, t *codec.PredWeightTable) {
	f.Write32(regs.H264PredWeight, (t.ChromaLog2Denom&0xf)<<4|t.LumaLog2Denom&0xf) //nolint:mnd

	words := make([]uint32, 0, 2*codec.MaxWeights*3) //nolint:mnd
	for l := range 2 {
		for i := range codec.MaxWeights {
			words = append(words, weightWord(t.Luma[l][i]))
		}
		for i := range codec.MaxWeights {
			words = append(words, weightWord(t.Chroma[l][i][0]), weightWord(t.Chroma[l][i][1]))
		}
	}
	regs.WriteSRAM(f, regs.SRAMPredWeight, words...)
}

// writeScalingLists loads both 8x8 lists followed by the six 4x4 lists.
func writeScalingLists(f regs.File, sl *codec.ScalingLists) {
	words := make([]uint32, 0, (2*64+6*16)/4) //nolint:mnd
	for i := range sl.List8x8 {
		for j := 0; j < len(sl.List8x8[i]); j += 4 {
			words = append(words, pio.U32LE(sl.List8x8[i][j:]))
		}
	}
	for i := range sl.List4x4 {
		for j := 0; j < len(sl.List4x4[i]); j += 4 {
			words = append(words, pio.U32LE(sl.List4x4[i][j:]))
		}
	}
	regs.WriteSRAM(f, regs.SRAMScalingLists, words...)
}

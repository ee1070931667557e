package h264

import (
	codec "github.com/ugparu/twig/codec/h264"
	"github.com/ugparu/twig/hw/regs"
)

// Auxiliary buffer layout inside the decoder scratch buffer.
const (
	extraBufSize         = 1 << 20
	neighborOffset       = 0x48000
	wideNeighborOffset   = 0x50000
	wideFieldIntraConfig = 0x5
)

func flag(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// seqHeader packs the SEQ_HDR register.
func seqHeader(sps *codec.SPS) uint32 {
	return 1<<19 |
		flag(sps.FrameMbsOnly)<<18 |
		flag(sps.MbAdaptiveFrameField)<<17 |
		flag(sps.Direct8x8Inference)<<16 |
		(sps.PicWidthInMbs-1)&0xff<<8 |
		(sps.PicHeightInMbs-1)&0xff
}

// picHeader packs the PIC_HDR register.
func picHeader(pps *codec.PPS) uint32 {
	return flag(pps.EntropyCodingMode)<<15 |
		(pps.NumRefIdxL0DefaultActive-1)&0x1f<<10 |
		(pps.NumRefIdxL1DefaultActive-1)&0x1f<<5 |
		flag(pps.WeightedPred)<<4 |
		pps.WeightedBipredIDC&0x3<<2 |
		flag(pps.ConstrainedIntraPred)<<1 |
		flag(pps.Transform8x8Mode)
}

// sliceHeader packs the SLICE_HDR register.
func sliceHeader(h *codec.SliceHeader) uint32 {
	mbX := h.FirstMbInSlice % h.SPS.PicWidthInMbs
	mbY := h.FirstMbInSlice / h.SPS.PicWidthInMbs
	if h.SPS.MbAdaptiveFrameField {
		mbY *= 2
	}
	return mbX&0xff<<24 |
		mbY&0xff<<16 |
		flag(h.IsReference())<<12 |
		uint32(h.SliceType)&0xf<<8 |
		flag(h.FirstMbInSlice == 0)<<5 |
		flag(h.FieldPic)<<4 |
		flag(h.BottomField)<<3 |
		flag(h.DirectSpatialMvPred)<<2 |
		h.CabacInitIDC&0x3
}

// sliceHeader2 packs the SLICE_HDR2 register.
func sliceHeader2(h *codec.SliceHeader) uint32 {
	return (h.NumRefIdxL0Active-1)&0x1f<<24 |
		(h.NumRefIdxL1Active-1)&0x1f<<16 |
		flag(h.NumRefIdxActiveOverride)<<12 |
		h.DisableDeblocking&0x3<<8 |
		uint32(h.SliceAlphaC0OffsetDiv2)&0xf<<4 | //nolint:gosec
		uint32(h.SliceBetaOffsetDiv2)&0xf //nolint:gosec
}

// qpRegister packs the QP register.
func qpRegister(h *codec.SliceHeader, defaultScaling bool) uint32 {
	return flag(defaultScaling)<<24 |
		uint32(h.PPS.SecondChromaQPIndexOffset)&0x3f<<16 | //nolint:gosec
		uint32(h.PPS.ChromaQPIndexOffset)&0x3f<<8 | //nolint:gosec
		uint32(h.QP())&0x3f //nolint:gosec
}

// programAuxBuffers points the engine at the shared scratch buffer and, for wide
// pictures, the per-picture deblocking and intra prediction buffers.
func programAuxBuffers(f regs.File, sps *codec.SPS, extra, aux uint32) {
	width := int(sps.Width())
	if width >= wideWidth {
		regs.Set(f, regs.VECtrl, regs.VEWidePicture)
		size := (int(sps.PicWidthInMbs)-1+32)*192 + pageAlign - 1 //nolint:mnd
		size &^= pageAlign - 1
		f.Write32(regs.H264FieldIntraBuf, wideFieldIntraConfig)
		f.Write32(regs.H264NeighborInfoBuf, extra+wideNeighborOffset)
		f.Write32(regs.H264PicMBSize, extra+wideNeighborOffset+uint32(size)) //nolint:gosec
	} else {
		regs.Clear(f, regs.VECtrl, regs.VEWidePicture)
		f.Write32(regs.H264FieldIntraBuf, extra)
		f.Write32(regs.H264NeighborInfoBuf, extra+neighborOffset)
	}

	if width > wideWidth {
		// The deblocking and intra prediction rows live behind the motion vector area
		// of the target's auxiliary buffer.
		mbw := int(sps.PicWidthInMbs)
		dblk := aux + auxBaseSize
		ipd := dblk + uint32((((mbw+31)*192)+pageAlign-1)&^(pageAlign-1)) //nolint:gosec,mnd
		f.Write32(regs.VEIPDDblkBufCtrl, regs.VEIPDDblkInDRAM)
		f.Write32(regs.VEDblkBuf, dblk)
		f.Write32(regs.VEIPDBuf, ipd)
	} else {
		f.Write32(regs.VEIPDDblkBufCtrl, 0)
	}
	f.Write32(regs.H264SDRotCtrl, 0)
}

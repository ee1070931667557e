// Package h264test synthesizes H.264 parameter sets and slice headers for tests.
package h264test

import (
	"github.com/ugparu/twig/codec/h264"
	"github.com/ugparu/twig/utils/bits"
	"github.com/ugparu/twig/utils/nal"
)

// SPSConfig describes a frame-only sequence parameter set.
type SPSConfig struct {
	ID              uint32
	ProfileIDC      uint8 // Baseline when zero.
	LevelIDC        uint8
	WidthMbs        uint32
	HeightMbs       uint32
	Log2MaxFrameNum uint32 // 4 when zero.
	POCType         uint32
	Log2MaxPOCLsb   uint32 // 8 when zero.
	MaxNumRefFrames uint32
	NumUnitsInTick  uint32 // VUI timing is written when non-zero.
	TimeScale       uint32
}

func (c *SPSConfig) log2MaxFrameNum() uint32 {
	if c.Log2MaxFrameNum == 0 {
		return 4 //nolint:mnd
	}
	return c.Log2MaxFrameNum
}

func (c *SPSConfig) log2MaxPOCLsb() uint32 {
	if c.Log2MaxPOCLsb == 0 {
		return 8 //nolint:mnd
	}
	return c.Log2MaxPOCLsb
}

// SPS returns the SPS NAL unit for c, header byte included.
func SPS(c SPSConfig) []byte {
	profile := c.ProfileIDC
	if profile == 0 {
		profile = 66
	}
	level := c.LevelIDC
	if level == 0 {
		level = 40
	}
	w := &bits.Writer{}
	w.PutBits(uint32(profile), 8)
	w.PutBits(0, 8)
	w.PutBits(uint32(level), 8)
	w.PutUE(c.ID)
	if profile >= 100 { //nolint:mnd
		w.PutUE(1)       // chroma_format_idc
		w.PutUE(0)       // bit_depth_luma_minus8
		w.PutUE(0)       // bit_depth_chroma_minus8
		w.PutFlag(false) // qpprime_y_zero_transform_bypass_flag
		w.PutFlag(false) // seq_scaling_matrix_present_flag
	}
	w.PutUE(c.log2MaxFrameNum() - 4)
	w.PutUE(c.POCType)
	if c.POCType == 0 {
		w.PutUE(c.log2MaxPOCLsb() - 4)
	}
	w.PutUE(c.MaxNumRefFrames)
	w.PutFlag(false)
	w.PutUE(c.WidthMbs - 1)
	w.PutUE(c.HeightMbs - 1)
	w.PutFlag(true)  // frame_mbs_only_flag
	w.PutFlag(true)  // direct_8x8_inference_flag
	w.PutFlag(false) // frame_cropping_flag
	w.PutFlag(c.NumUnitsInTick != 0)
	if c.NumUnitsInTick != 0 {
		w.PutFlag(false) // aspect_ratio_info_present_flag
		w.PutFlag(false) // overscan_info_present_flag
		w.PutFlag(false) // video_signal_type_present_flag
		w.PutFlag(false) // chroma_loc_info_present_flag
		w.PutFlag(true)  // timing_info_present_flag
		w.PutBits(c.NumUnitsInTick, 32)
		w.PutBits(c.TimeScale, 32)
		w.PutFlag(true)
		w.PutFlag(false) // nal_hrd_parameters_present_flag
		w.PutFlag(false) // vcl_hrd_parameters_present_flag
		w.PutFlag(false) // pic_struct_present_flag
		w.PutFlag(false) // bitstream_restriction_flag
	}
	w.PutTrailingBits()
	return unit(0x67, w) //nolint:mnd
}

// PPSConfig describes a single slice group picture parameter set.
type PPSConfig struct {
	ID                uint32
	SPSID             uint32
	CABAC             bool
	NumRefIdxL0       uint32 // Default active count, 1 when zero.
	NumRefIdxL1       uint32
	WeightedPred      bool
	WeightedBipredIDC uint32
	PicInitQPMinus26  int32
	DeblockingControl bool
	Transform8x8      bool
}

// PPS returns the PPS NAL unit for c, header byte included.
func PPS(c PPSConfig) []byte {
	w := &bits.Writer{}
	w.PutUE(c.ID)
	w.PutUE(c.SPSID)
	w.PutFlag(c.CABAC)
	w.PutFlag(false) // bottom_field_pic_order_in_frame_present_flag
	w.PutUE(0)       // num_slice_groups_minus1
	w.PutUE(max(c.NumRefIdxL0, 1) - 1)
	w.PutUE(max(c.NumRefIdxL1, 1) - 1)
	w.PutFlag(c.WeightedPred)
	w.PutBits(c.WeightedBipredIDC, 2)
	w.PutSE(c.PicInitQPMinus26)
	w.PutSE(0) // pic_init_qs_minus26
	w.PutSE(0) // chroma_qp_index_offset
	w.PutFlag(c.DeblockingControl)
	w.PutFlag(false) // constrained_intra_pred_flag
	w.PutFlag(false) // redundant_pic_cnt_present_flag
	if c.Transform8x8 {
		w.PutFlag(true)
		w.PutFlag(false) // pic_scaling_matrix_present_flag
		w.PutSE(0)
	}
	w.PutTrailingBits()
	return unit(0x68, w) //nolint:mnd
}

// SliceConfig describes one slice header.
type SliceConfig struct {
	IDR         bool
	RefIDC      int
	FirstMb     uint32
	Type        h264.SliceType
	PPSID       uint32
	FrameNum    uint32
	POCLsb      uint32
	IDRPicID    uint32
	L0Active    uint32 // Overrides the PPS default when non-zero.
	L1Active    uint32
	ModsL0      []h264.RefPicListModification
	ModsL1      []h264.RefPicListModification
	LongTermRef bool
	MMCO        []h264.MMCO // Adaptive marking when non-nil.
	QPDelta     int32
	DataBytes   int // Slice data bytes appended after the header.
}

// Slice returns the slice NAL unit for c under the given parameter sets.
func Slice(sps SPSConfig, pps PPSConfig, c SliceConfig) []byte {
	w := &bits.Writer{}
	writeSliceHeader(w, &sps, &pps, &c)
	for i := range c.DataBytes {
		w.PutBits(uint32(0xa5^i)&0xff, 8) //nolint:mnd
	}
	w.PutTrailingBits()

	typ := nal.TypeSlice
	if c.IDR {
		typ = nal.TypeIDR
	}
	return unit(byte(c.RefIDC<<5|typ), w) //nolint:gosec,mnd
}

// SliceHeaderBits returns the slice_header() bit length of c.
func SliceHeaderBits(sps SPSConfig, pps PPSConfig, c SliceConfig) int {
	w := &bits.Writer{}
	writeSliceHeader(w, &sps, &pps, &c)
	return w.Len()
}

func writeSliceHeader(w *bits.Writer, sps *SPSConfig, pps *PPSConfig, c *SliceConfig) {
	w.PutUE(c.FirstMb)
	w.PutUE(uint32(c.Type))
	st := c.Type % 5 //nolint:mnd
	w.PutUE(c.PPSID)
	w.PutBits(c.FrameNum, int(sps.log2MaxFrameNum()))
	if c.IDR {
		w.PutUE(c.IDRPicID)
	}
	if sps.POCType == 0 {
		w.PutBits(c.POCLsb, int(sps.log2MaxPOCLsb()))
	}
	if st == h264.SliceB {
		w.PutFlag(true) // direct_spatial_mv_pred_flag
	}

	l0, l1 := max(pps.NumRefIdxL0, 1), max(pps.NumRefIdxL1, 1)
	if st == h264.SliceP || st == h264.SliceSP || st == h264.SliceB {
		override := c.L0Active != 0 || c.L1Active != 0
		w.PutFlag(override)
		if override {
			l0 = max(c.L0Active, 1)
			w.PutUE(l0 - 1)
			if st == h264.SliceB {
				l1 = max(c.L1Active, 1)
				w.PutUE(l1 - 1)
			}
		}
	}
	if !st.IsIntra() {
		writeMods(w, c.ModsL0)
	}
	if st == h264.SliceB {
		writeMods(w, c.ModsL1)
	}

	if (pps.WeightedPred && (st == h264.SliceP || st == h264.SliceSP)) ||
		(pps.WeightedBipredIDC == 1 && st == h264.SliceB) {
		w.PutUE(5) // luma_log2_weight_denom
		w.PutUE(4) // chroma_log2_weight_denom
		lists := []uint32{l0}
		if st == h264.SliceB {
			lists = append(lists, l1)
		}
		for li, n := range lists {
			for i := range n {
				// The first entry of list 0 carries explicit luma and chroma weights.
				explicit := li == 0 && i == 0
				w.PutFlag(explicit)
				if explicit {
					w.PutSE(40)
					w.PutSE(-3)
				}
				w.PutFlag(explicit)
				if explicit {
					w.PutSE(20)
					w.PutSE(1)
					w.PutSE(12)
					w.PutSE(-1)
				}
			}
		}
	}

	if c.RefIDC != 0 {
		if c.IDR {
			w.PutFlag(false) // no_output_of_prior_pics_flag
			w.PutFlag(c.LongTermRef)
		} else {
			w.PutFlag(c.MMCO != nil)
			if c.MMCO != nil {
				writeMMCO(w, c.MMCO)
			}
		}
	}
	if pps.CABAC && !st.IsIntra() {
		w.PutUE(0)
	}
	w.PutSE(c.QPDelta)
	if pps.DeblockingControl {
		w.PutUE(0)
		w.PutSE(0)
		w.PutSE(0)
	}
}

func writeMods(w *bits.Writer, mods []h264.RefPicListModification) {
	w.PutFlag(mods != nil)
	if mods == nil {
		return
	}
	for _, m := range mods {
		w.PutUE(m.IDC)
		if m.IDC == h264.ModLongTerm {
			w.PutUE(m.LongTermPicNum)
		} else {
			w.PutUE(m.AbsDiffPicNumMinus1)
		}
	}
	w.PutUE(3) //nolint:mnd
}

func writeMMCO(w *bits.Writer, cmds []h264.MMCO) {
	for _, c := range cmds {
		w.PutUE(c.Op)
		switch c.Op {
		case h264.MMCOUnmarkShortTerm:
			w.PutUE(c.DifferenceOfPicNumsMinus1)
		case h264.MMCOUnmarkLongTerm:
			w.PutUE(c.LongTermPicNum)
		case h264.MMCOShortToLongTerm:
			w.PutUE(c.DifferenceOfPicNumsMinus1)
			w.PutUE(c.LongTermFrameIdx)
		case h264.MMCOMaxLongTermIdx:
			w.PutUE(c.MaxLongTermFrameIdxPlus1)
		case h264.MMCOCurrentToLongTerm:
			w.PutUE(c.LongTermFrameIdx)
		}
	}
	w.PutUE(h264.MMCOEnd)
}

func unit(header byte, w *bits.Writer) []byte {
	return append([]byte{header}, nal.Escape(w.Bytes())...)
}

// AnnexB joins NAL units into a start code prefixed stream.
func AnnexB(units ...[]byte) []byte {
	var out []byte
	for _, u := range units {
		out = nal.AppendAnnexB(out, u)
	}
	return out
}

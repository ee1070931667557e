package h264

import (
	"bytes"
	"fmt"
	"image"

	"github.com/ugparu/twig"
	"github.com/ugparu/twig/utils/bits"
)

// SPS is a parsed sequence parameter set. It is immutable once parsed.
type SPS struct {
	Raw []byte // NAL unit the SPS was parsed from, header byte included.

	ProfileIDC      uint8
	ConstraintFlags uint8
	LevelIDC        uint8
	ID              uint32

	ChromaFormatIDC     uint32
	SeparateColourPlane bool
	BitDepthLuma        uint32
	BitDepthChroma      uint32
	TransformBypass     bool
	Scaling             ScalingMatrix

	Log2MaxFrameNum uint32

	POCType                   uint32
	Log2MaxPOCLsb             uint32
	DeltaPicOrderAlwaysZero   bool
	OffsetForNonRefPic        int32
	OffsetForTopToBottomField int32
	OffsetForRefFrame         []int32 // At most 255 entries.

	MaxNumRefFrames       uint32
	GapsInFrameNumAllowed bool

	PicWidthInMbs       uint32
	PicHeightInMapUnits uint32
	PicHeightInMbs      uint32 // Frame height in macroblocks, map units doubled when field coding is allowed.

	FrameMbsOnly         bool
	MbAdaptiveFrameField bool
	Direct8x8Inference   bool

	FrameCropping bool
	CropLeft      uint32
	CropRight     uint32
	CropTop       uint32
	CropBottom    uint32

	VUIPresent     bool
	TimingInfo     bool
	NumUnitsInTick uint32
	TimeScale      uint32
	FixedFrameRate bool
}

// maxCropOffset bounds each cropping offset to the largest coded picture.
const maxCropOffset = 1024 * mbSize

// highProfile reports whether profile carries chroma format, bit depth and scaling fields.
func highProfile(profile uint8) bool {
	switch profile {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135: //nolint:mnd
		return true
	}
	return false
}

// ParseSPS parses a sequence parameter set NAL unit, header byte included.
func ParseSPS(nalu []byte) (*SPS, error) {
	if len(nalu) < 4 { //nolint:mnd // header + profile + constraints + level
		return nil, fmt.Errorf("%w: sps: %d bytes", twig.ErrMalformedParameterSet, len(nalu))
	}
	sps := &SPS{Raw: append([]byte(nil), nalu...)}
	r := &fieldReader{src: bits.NewNALReader(nalu[1:])}

	sps.ProfileIDC = uint8(r.u(8))      //nolint:gosec,mnd
	sps.ConstraintFlags = uint8(r.u(8)) //nolint:gosec,mnd
	sps.LevelIDC = uint8(r.u(8))        //nolint:gosec,mnd
	sps.ID = r.ueMax("seq_parameter_set_id", MaxSPSCount-1)

	sps.ChromaFormatIDC = chromaFormat420
	sps.BitDepthLuma, sps.BitDepthChroma = 8, 8 //nolint:mnd
	if highProfile(sps.ProfileIDC) {
		sps.ChromaFormatIDC = r.ueMax("chroma_format_idc", chromaFormat444)
		if sps.ChromaFormatIDC == chromaFormat444 {
			sps.SeparateColourPlane = r.flag()
		}
		sps.BitDepthLuma = r.ueMax("bit_depth_luma_minus8", 6) + 8     //nolint:mnd
		sps.BitDepthChroma = r.ueMax("bit_depth_chroma_minus8", 6) + 8 //nolint:mnd
		sps.TransformBypass = r.flag()
		if r.flag() {
			count := 8 //nolint:mnd
			if sps.ChromaFormatIDC == chromaFormat444 {
				count = 12 //nolint:mnd
			}
			parseScalingMatrix(r, &sps.Scaling, count)
		}
	}

	sps.Log2MaxFrameNum = r.ueMax("log2_max_frame_num_minus4", maxLog2Field-4) + 4 //nolint:mnd
	sps.POCType = r.ueMax("pic_order_cnt_type", 2)                                 //nolint:mnd
	switch sps.POCType {
	case 0:
		sps.Log2MaxPOCLsb = r.ueMax("log2_max_pic_order_cnt_lsb_minus4", maxLog2Field-4) + 4 //nolint:mnd
	case 1:
		sps.DeltaPicOrderAlwaysZero = r.flag()
		sps.OffsetForNonRefPic = r.se()
		sps.OffsetForTopToBottomField = r.se()
		n := r.ue()
		if r.err == nil && n > maxRefFramesInPOCCycle {
			r.fail("num_ref_frames_in_pic_order_cnt_cycle %d exceeds %d", n, maxRefFramesInPOCCycle)
		}
		if r.err == nil {
			sps.OffsetForRefFrame = make([]int32, n)
			for i := range sps.OffsetForRefFrame {
				sps.OffsetForRefFrame[i] = r.se()
			}
		}
	}

	sps.MaxNumRefFrames = r.ueMax("max_num_ref_frames", MaxRefs)
	sps.GapsInFrameNumAllowed = r.flag()
	sps.PicWidthInMbs = r.ueMax("pic_width_in_mbs_minus1", 1023) + 1             //nolint:mnd
	sps.PicHeightInMapUnits = r.ueMax("pic_height_in_map_units_minus1", 1023) + 1 //nolint:mnd
	sps.FrameMbsOnly = r.flag()
	sps.PicHeightInMbs = sps.PicHeightInMapUnits
	if !sps.FrameMbsOnly {
		sps.MbAdaptiveFrameField = r.flag()
		sps.PicHeightInMbs *= 2
	}
	sps.Direct8x8Inference = r.flag()
	sps.FrameCropping = r.flag()
	if sps.FrameCropping {
		sps.CropLeft = r.ueMax("frame_crop_left_offset", maxCropOffset)
		sps.CropRight = r.ueMax("frame_crop_right_offset", maxCropOffset)
		sps.CropTop = r.ueMax("frame_crop_top_offset", maxCropOffset)
		sps.CropBottom = r.ueMax("frame_crop_bottom_offset", maxCropOffset)
	}
	if r.err != nil {
		return nil, fmt.Errorf("%w: sps: %w", twig.ErrMalformedParameterSet, r.err)
	}

	// VUI only contributes the frame rate; a truncated VUI leaves the SPS usable.
	sps.VUIPresent = r.flag()
	if sps.VUIPresent {
		parseVUITiming(r, sps)
		if r.err != nil {
			sps.TimingInfo = false
		}
	}

	if sps.CropLeft+sps.CropRight >= sps.Width()/sps.cropUnitX() ||
		sps.CropTop+sps.CropBottom >= sps.Height()/sps.cropUnitY() {
		return nil, fmt.Errorf("%w: sps: cropping exceeds picture", twig.ErrMalformedParameterSet)
	}
	return sps, nil
}

// parseVUITiming reads vui_parameters() up to and including timing_info.
func parseVUITiming(r *fieldReader, sps *SPS) {
	const extendedSAR = 255
	if r.flag() { // aspect_ratio_info_present_flag
		if r.u(8) == extendedSAR { //nolint:mnd
			r.skip(32) //nolint:mnd
		}
	}
	if r.flag() { // overscan_info_present_flag
		r.skip(1)
	}
	if r.flag() { // video_signal_type_present_flag
		r.skip(4) //nolint:mnd
		if r.flag() {
			r.skip(24) //nolint:mnd
		}
	}
	if r.flag() { // chroma_loc_info_present_flag
		r.ue()
		r.ue()
	}
	sps.TimingInfo = r.flag()
	if sps.TimingInfo {
		sps.NumUnitsInTick = r.u(32) //nolint:mnd
		sps.TimeScale = r.u(32)      //nolint:mnd
		sps.FixedFrameRate = r.flag()
	}
}

// Width returns the coded luma width.
func (s *SPS) Width() uint32 {
	return s.PicWidthInMbs * mbSize
}

// Height returns the coded luma height.
func (s *SPS) Height() uint32 {
	return s.PicHeightInMbs * mbSize
}

func (s *SPS) cropUnitX() uint32 {
	if s.ChromaFormatIDC == 1 || s.ChromaFormatIDC == 2 { //nolint:mnd
		return 2 //nolint:mnd
	}
	return 1
}

func (s *SPS) cropUnitY() uint32 {
	unit := uint32(1)
	if s.ChromaFormatIDC == 1 {
		unit = 2 //nolint:mnd
	}
	if !s.FrameMbsOnly {
		unit *= 2
	}
	return unit
}

// CroppedWidth returns the display width after frame cropping.
func (s *SPS) CroppedWidth() uint32 {
	return s.Width() - (s.CropLeft+s.CropRight)*s.cropUnitX()
}

// CroppedHeight returns the display height after frame cropping.
func (s *SPS) CroppedHeight() uint32 {
	return s.Height() - (s.CropTop+s.CropBottom)*s.cropUnitY()
}

// CropRect returns the display window inside the coded picture.
func (s *SPS) CropRect() image.Rectangle {
	left, top := int(s.CropLeft*s.cropUnitX()), int(s.CropTop*s.cropUnitY())
	return image.Rect(left, top, left+int(s.CroppedWidth()), top+int(s.CroppedHeight()))
}

// MaxFrameNum returns 2^log2_max_frame_num.
func (s *SPS) MaxFrameNum() uint32 {
	return 1 << s.Log2MaxFrameNum
}

// MaxPOCLsb returns 2^log2_max_pic_order_cnt_lsb.
func (s *SPS) MaxPOCLsb() uint32 {
	return 1 << s.Log2MaxPOCLsb
}

// FPS returns the frame rate signalled in the VUI, or 0 when absent.
func (s *SPS) FPS() uint32 {
	if !s.TimingInfo || s.NumUnitsInTick == 0 {
		return 0
	}
	return s.TimeScale / (2 * s.NumUnitsInTick) //nolint:mnd
}

// Equal reports whether two SPS were parsed from identical NAL units.
func (s *SPS) Equal(o *SPS) bool {
	if s == nil || o == nil {
		return s == o
	}
	return bytes.Equal(s.Raw, o.Raw)
}

// String returns a short description for logs.
func (s *SPS) String() string {
	return fmt.Sprintf("SPS(id=%d profile=%d level=%d %dx%d poc=%d refs=%d)",
		s.ID, s.ProfileIDC, s.LevelIDC, s.Width(), s.Height(), s.POCType, s.MaxNumRefFrames)
}

package h264

import (
	"fmt"

	"github.com/ugparu/twig/utils/bits"
)

// minAVCRecordSize is the minimum size of an AVC (Advanced Video Coding) record.
const minAVCRecordSize = 7

// Parameter set and list limits.
const (
	MaxSPSCount = 32  // seq_parameter_set_id range.
	MaxPPSCount = 256 // pic_parameter_set_id range.
	MaxRefs     = 16  // Maximum size of a reference picture list and of each reference set.
	MaxCommands = 32  // Cap on parsed modification and MMCO commands.
	MaxWeights  = 32  // Entries of one prediction weight table.

	maxRefFramesInPOCCycle = 255
	maxSliceGroups         = 8
	maxSliceType           = 9
	maxLog2Field           = 16 // log2_max_frame_num and log2_max_pic_order_cnt_lsb upper bound.
)

// Common magic numbers used in the package
const (
	// Bit masks
	maskLengthSizeMinusOne    = 0x03
	maskSPSCount              = 0x1f
	maskLengthSizeMinusOneInv = 0xfc
	maskSPSCountInv           = 0xe0

	// Length field size in AVCDecoderConfRecord
	lengthFieldSize = 2

	// Macroblock size
	mbSize = 16

	// Chroma format values
	chromaFormat420 = 1
	chromaFormat444 = 3
)

// fieldReader reads syntax elements with a sticky error: after the first failure every
// read returns zero and the error is reported once at the end of a syntax structure.
type fieldReader struct {
	src bits.Source
	err error
}

func (r *fieldReader) u(n int) uint32 {
	if r.err != nil || n == 0 {
		return 0
	}
	var v uint32
	v, r.err = r.src.GetBits(n)
	return v
}

func (r *fieldReader) flag() bool {
	return r.u(1) == 1
}

func (r *fieldReader) ue() uint32 {
	if r.err != nil {
		return 0
	}
	var v uint32
	v, r.err = r.src.GetUE()
	return v
}

// ueMax reads ue(v) and fails when the value exceeds limit.
func (r *fieldReader) ueMax(name string, limit uint32) uint32 {
	v := r.ue()
	if r.err == nil && v > limit {
		r.err = fmt.Errorf("%s %d exceeds %d", name, v, limit)
		return 0
	}
	return v
}

func (r *fieldReader) se() int32 {
	if r.err != nil {
		return 0
	}
	var v int32
	v, r.err = r.src.GetSE()
	return v
}

// seRange reads se(v) and fails when the value lies outside [lo, hi].
func (r *fieldReader) seRange(name string, lo, hi int32) int32 {
	v := r.se()
	if r.err == nil && (v < lo || v > hi) {
		r.err = fmt.Errorf("%s %d outside [%d, %d]", name, v, lo, hi)
		return 0
	}
	return v
}

func (r *fieldReader) skip(n int) {
	if r.err != nil {
		return
	}
	r.err = r.src.SkipBits(n)
}

func (r *fieldReader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf(format, args...)
	}
}

func boolToU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

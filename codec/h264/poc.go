package h264

import (
	"fmt"

	"github.com/ugparu/twig"
)

// RefState is the cross-frame state picture order count derivation depends on.
type RefState struct {
	PrevPOCMsb     int32
	PrevPOCLsb     int32
	FrameNumOffset int32
	PrevFrameNum   uint32
}

// frameNumOffset returns FrameNumOffset for the picture described by h.
func (st *RefState) frameNumOffset(sps *SPS, h *SliceHeader) int32 {
	if h.IsIDR() {
		return 0
	}
	if st.PrevFrameNum > h.FrameNum {
		return st.FrameNumOffset + int32(sps.MaxFrameNum()) //nolint:gosec
	}
	return st.FrameNumOffset
}

// ComputePOC derives the picture order count of the picture described by h.
// IDR pictures use zero for the previous MSB and LSB.
func ComputePOC(sps *SPS, h *SliceHeader, st *RefState) (int32, error) {
	switch sps.POCType {
	case 0:
		prevMsb, prevLsb := st.PrevPOCMsb, st.PrevPOCLsb
		if h.IsIDR() {
			prevMsb, prevLsb = 0, 0
		}
		maxLsb := int32(sps.MaxPOCLsb()) //nolint:gosec
		lsb := int32(h.POCLsb)           //nolint:gosec
		msb := prevMsb
		switch {
		case lsb < prevLsb && prevLsb-lsb >= maxLsb/2:
			msb = prevMsb + maxLsb
		case lsb > prevLsb && lsb-prevLsb > maxLsb/2:
			msb = prevMsb - maxLsb
		}
		return msb + lsb, nil
	case 1:
		abs := st.frameNumOffset(sps, h) + int32(h.FrameNum) //nolint:gosec
		poc := abs * 2                                         //nolint:mnd
		if h.FieldPic && h.BottomField {
			poc++
		}
		return poc, nil
	case 2: //nolint:mnd
		// Output order equals decode order within one frame_num cycle.
		return 2 * int32(h.FrameNum), nil //nolint:gosec,mnd
	}
	return 0, fmt.Errorf("%w: pic_order_cnt_type %d", twig.ErrMalformedParameterSet, sps.POCType)
}

// Update persists the state of a decoded picture, reference or not, for the next
// derivation. It runs once per decoded frame. hadMMCO5 resets the state as
// memory_management_control_operation 5 requires.
func (st *RefState) Update(sps *SPS, h *SliceHeader, poc int32, hadMMCO5 bool) {
	if hadMMCO5 {
		st.PrevPOCMsb, st.PrevPOCLsb = 0, 0
		st.FrameNumOffset = 0
		st.PrevFrameNum = 0
		return
	}
	st.FrameNumOffset = st.frameNumOffset(sps, h)
	st.PrevFrameNum = h.FrameNum
	if sps.POCType == 0 {
		st.PrevPOCLsb = int32(h.POCLsb) //nolint:gosec
		st.PrevPOCMsb = poc - st.PrevPOCLsb
	}
}

// Reset clears the state, as after an IDR picture without prior pictures.
func (st *RefState) Reset() {
	*st = RefState{}
}

package h264

import (
	"bytes"
	"fmt"
	"math/bits"

	"github.com/ugparu/twig"
	bitreader "github.com/ugparu/twig/utils/bits"
)

// maxMapUnits bounds pic_size_in_map_units for slice group map type 6.
const maxMapUnits = 1 << 18

// PPS is a parsed picture parameter set. It is immutable once parsed.
type PPS struct {
	Raw []byte // NAL unit the PPS was parsed from, header byte included.

	ID    uint32
	SPSID uint32

	EntropyCodingMode          bool // CABAC when set.
	BottomFieldPicOrderPresent bool

	NumSliceGroups       uint32
	SliceGroupMapType    uint32
	RunLengthMinus1      []uint32
	TopLeft              []uint32
	BottomRight          []uint32
	SliceGroupChangeDir  bool
	SliceGroupChangeRate uint32
	PicSizeInMapUnits    uint32
	SliceGroupID         []uint32 // Only for map type 6; owned by this PPS.

	NumRefIdxL0DefaultActive uint32
	NumRefIdxL1DefaultActive uint32
	WeightedPred             bool
	WeightedBipredIDC        uint32

	PicInitQPMinus26          int32
	PicInitQSMinus26          int32
	ChromaQPIndexOffset       int32
	SecondChromaQPIndexOffset int32

	DeblockingFilterControl bool
	ConstrainedIntraPred    bool
	RedundantPicCntPresent  bool

	Transform8x8Mode bool
	Scaling          ScalingMatrix
}

// ParsePPS parses a picture parameter set NAL unit, header byte included.
// lookup resolves the referenced SPS to size the 8x8 scaling list loop; nil or a
// missing SPS means 4:2:0.
func ParsePPS(nalu []byte, lookup func(id uint32) *SPS) (*PPS, error) {
	if len(nalu) < 2 { //nolint:mnd
		return nil, fmt.Errorf("%w: pps: %d bytes", twig.ErrMalformedParameterSet, len(nalu))
	}
	pps := &PPS{Raw: append([]byte(nil), nalu...)}
	br := bitreader.NewNALReader(nalu[1:])
	r := &fieldReader{src: br}

	pps.ID = r.ueMax("pic_parameter_set_id", MaxPPSCount-1)
	pps.SPSID = r.ueMax("seq_parameter_set_id", MaxSPSCount-1)
	pps.EntropyCodingMode = r.flag()
	pps.BottomFieldPicOrderPresent = r.flag()
	pps.NumSliceGroups = r.ueMax("num_slice_groups_minus1", maxSliceGroups-1) + 1
	if pps.NumSliceGroups > 1 {
		parseSliceGroups(r, pps)
	}

	pps.NumRefIdxL0DefaultActive = r.ueMax("num_ref_idx_l0_default_active_minus1", 31) + 1 //nolint:mnd
	pps.NumRefIdxL1DefaultActive = r.ueMax("num_ref_idx_l1_default_active_minus1", 31) + 1 //nolint:mnd
	pps.WeightedPred = r.flag()
	pps.WeightedBipredIDC = r.u(2) //nolint:mnd
	if r.err == nil && pps.WeightedBipredIDC > 2 { //nolint:mnd
		r.fail("weighted_bipred_idc %d", pps.WeightedBipredIDC)
	}
	pps.PicInitQPMinus26 = r.seRange("pic_init_qp_minus26", -26, 25)       //nolint:mnd
	pps.PicInitQSMinus26 = r.seRange("pic_init_qs_minus26", -26, 25)       //nolint:mnd
	pps.ChromaQPIndexOffset = r.seRange("chroma_qp_index_offset", -12, 12) //nolint:mnd
	pps.DeblockingFilterControl = r.flag()
	pps.ConstrainedIntraPred = r.flag()
	pps.RedundantPicCntPresent = r.flag()
	pps.SecondChromaQPIndexOffset = pps.ChromaQPIndexOffset

	if r.err == nil && br.MoreRBSPData() {
		pps.Transform8x8Mode = r.flag()
		if r.flag() {
			count := 6 //nolint:mnd
			if pps.Transform8x8Mode {
				chroma := uint32(chromaFormat420)
				if lookup != nil {
					if sps := lookup(pps.SPSID); sps != nil {
						chroma = sps.ChromaFormatIDC
					}
				}
				if chroma == chromaFormat444 {
					count += 6 //nolint:mnd
				} else {
					count += 2 //nolint:mnd
				}
			}
			parseScalingMatrix(r, &pps.Scaling, count)
		}
		pps.SecondChromaQPIndexOffset = r.seRange("second_chroma_qp_index_offset", -12, 12) //nolint:mnd
	}

	if r.err != nil {
		return nil, fmt.Errorf("%w: pps: %w", twig.ErrMalformedParameterSet, r.err)
	}
	return pps, nil
}

func parseSliceGroups(r *fieldReader, pps *PPS) {
	pps.SliceGroupMapType = r.ue()
	switch pps.SliceGroupMapType {
	case 0:
		pps.RunLengthMinus1 = make([]uint32, pps.NumSliceGroups)
		for i := range pps.RunLengthMinus1 {
			pps.RunLengthMinus1[i] = r.ue()
		}
	case 1:
	case 2:
		pps.TopLeft = make([]uint32, pps.NumSliceGroups-1)
		pps.BottomRight = make([]uint32, pps.NumSliceGroups-1)
		for i := range pps.TopLeft {
			pps.TopLeft[i] = r.ue()
			pps.BottomRight[i] = r.ue()
		}
	case 3, 4, 5: //nolint:mnd
		pps.SliceGroupChangeDir = r.flag()
		pps.SliceGroupChangeRate = r.ue() + 1
	case 6: //nolint:mnd
		pps.PicSizeInMapUnits = r.ueMax("pic_size_in_map_units_minus1", maxMapUnits-1) + 1
		if r.err != nil {
			return
		}
		width := bits.Len32(pps.NumSliceGroups - 1)
		pps.SliceGroupID = make([]uint32, pps.PicSizeInMapUnits)
		for i := range pps.SliceGroupID {
			pps.SliceGroupID[i] = r.u(width)
		}
	default:
		r.fail("slice_group_map_type %d", pps.SliceGroupMapType)
	}
}

// Equal reports whether two PPS were parsed from identical NAL units.
func (p *PPS) Equal(o *PPS) bool {
	if p == nil || o == nil {
		return p == o
	}
	return bytes.Equal(p.Raw, o.Raw)
}

// String returns a short description for logs.
func (p *PPS) String() string {
	return fmt.Sprintf("PPS(id=%d sps=%d cabac=%t groups=%d)", p.ID, p.SPSID, p.EntropyCodingMode, p.NumSliceGroups)
}

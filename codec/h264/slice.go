package h264

import (
	"fmt"

	"github.com/ugparu/twig"
	bitreader "github.com/ugparu/twig/utils/bits"
	"github.com/ugparu/twig/utils/nal"
)

// SliceType is slice_type reduced modulo 5.
type SliceType uint32

const (
	SliceP SliceType = iota
	SliceB
	SliceI
	SliceSP
	SliceSI
)

func (t SliceType) String() string {
	switch t {
	case SliceP:
		return "P"
	case SliceB:
		return "B"
	case SliceI:
		return "I"
	case SliceSP:
		return "SP"
	case SliceSI:
		return "SI"
	}
	return fmt.Sprintf("SliceType(%d)", uint32(t))
}

// IsIntra reports whether the slice carries no inter prediction.
func (t SliceType) IsIntra() bool {
	return t == SliceI || t == SliceSI
}

// MMCO operation codes.
const (
	MMCOEnd               = 0
	MMCOUnmarkShortTerm   = 1
	MMCOUnmarkLongTerm    = 2
	MMCOShortToLongTerm   = 3
	MMCOMaxLongTermIdx    = 4
	MMCOUnmarkAll         = 5
	MMCOCurrentToLongTerm = 6
	maxMMCOOp             = MMCOCurrentToLongTerm
)

// MMCO is one memory_management_control_operation with its operands.
type MMCO struct {
	Op                        uint32
	DifferenceOfPicNumsMinus1 uint32 // Ops 1 and 3.
	LongTermPicNum            uint32 // Op 2.
	LongTermFrameIdx          uint32 // Ops 3 and 6.
	MaxLongTermFrameIdxPlus1  uint32 // Op 4.
}

// Reference list modification operation codes.
const (
	ModShortSubtract = 0
	ModShortAdd      = 1
	ModLongTerm      = 2
	modEnd           = 3
)

// RefPicListModification is one modification_of_pic_nums_idc entry.
type RefPicListModification struct {
	IDC                 uint32
	AbsDiffPicNumMinus1 uint32 // IDC 0 and 1.
	LongTermPicNum      uint32 // IDC 2.
}

// Weight is one explicit weighted prediction entry.
type Weight struct {
	Weight int32
	Offset int32
}

// PredWeightTable is pred_weight_table(). Entries not signalled hold the default
// weight 1<<denom and offset 0.
type PredWeightTable struct {
	LumaLog2Denom   uint32
	ChromaLog2Denom uint32
	Luma            [2][MaxWeights]Weight
	Chroma          [2][MaxWeights][2]Weight
}

// SliceHeader is one parsed slice_header(). A new value is produced for every slice.
type SliceHeader struct {
	NalUnitType int
	NalRefIDC   int

	FirstMbInSlice uint32
	RawSliceType   uint32
	SliceType      SliceType
	PPSID          uint32
	ColourPlaneID  uint32
	FrameNum       uint32
	FieldPic       bool
	BottomField    bool
	IDRPicID       uint32

	POCLsb         uint32
	DeltaPOCBottom int32
	DeltaPOC       [2]int32

	RedundantPicCnt     uint32
	DirectSpatialMvPred bool

	NumRefIdxActiveOverride bool
	NumRefIdxL0Active       uint32
	NumRefIdxL1Active       uint32

	RefPicListModificationL0 bool
	RefPicListModificationL1 bool
	ModificationsL0          []RefPicListModification // At most MaxCommands entries.
	ModificationsL1          []RefPicListModification // At most MaxCommands entries.

	PredWeight *PredWeightTable // Nil unless explicit weighted prediction applies.

	NoOutputOfPriorPics   bool
	LongTermReference     bool
	AdaptiveRefPicMarking bool
	MMCO                  []MMCO // At most MaxCommands entries.

	CabacInitIDC           uint32
	SliceQPDelta           int32
	SPForSwitch            bool
	SliceQSDelta           int32
	DisableDeblocking      uint32
	SliceAlphaC0OffsetDiv2 int32
	SliceBetaOffsetDiv2    int32
	SliceGroupChangeCycle  uint32

	HeaderBits int // Bits consumed from the slice payload.

	SPS *SPS
	PPS *PPS
}

// IsIDR reports whether the slice belongs to an IDR picture.
func (h *SliceHeader) IsIDR() bool {
	return h.NalUnitType == nal.TypeIDR
}

// IsReference reports whether the picture is used for reference.
func (h *SliceHeader) IsReference() bool {
	return h.NalRefIDC != 0
}

// QP returns SliceQPY.
func (h *SliceHeader) QP() int32 {
	return 26 + h.PPS.PicInitQPMinus26 + h.SliceQPDelta //nolint:mnd
}

// HasMMCO5 reports whether the marking contains memory_management_control_operation 5.
func (h *SliceHeader) HasMMCO5() bool {
	for _, c := range h.MMCO {
		if c.Op == MMCOUnmarkAll {
			return true
		}
	}
	return false
}

// ParamLookup resolves parameter sets by id.
type ParamLookup interface {
	SPS(id uint32) *SPS
	PPS(id uint32) *PPS
}

// ParseSliceHeader parses slice_header() from src, positioned just after the NAL header byte.
func ParseSliceHeader(src bitreader.Source, nalHeader byte, sets ParamLookup) (*SliceHeader, error) {
	start := src.BitPos()
	h := &SliceHeader{
		NalUnitType: nal.Type(nalHeader),
		NalRefIDC:   nal.RefIDC(nalHeader),
	}
	r := &fieldReader{src: src}

	h.FirstMbInSlice = r.ue()
	h.RawSliceType = r.ueMax("slice_type", maxSliceType)
	h.SliceType = SliceType(h.RawSliceType % 5) //nolint:mnd
	h.PPSID = r.ueMax("pic_parameter_set_id", MaxPPSCount-1)
	if r.err != nil {
		return nil, fmt.Errorf("%w: %w", twig.ErrMalformedSliceHeader, r.err)
	}

	h.PPS = sets.PPS(h.PPSID)
	if h.PPS == nil {
		return nil, fmt.Errorf("%w: pps %d", twig.ErrNoParameterSets, h.PPSID)
	}
	h.SPS = sets.SPS(h.PPS.SPSID)
	if h.SPS == nil {
		return nil, fmt.Errorf("%w: sps %d", twig.ErrNoParameterSets, h.PPS.SPSID)
	}
	sps, pps := h.SPS, h.PPS

	if h.FirstMbInSlice >= sps.PicWidthInMbs*sps.PicHeightInMbs {
		r.fail("first_mb_in_slice %d outside picture", h.FirstMbInSlice)
	}
	if h.IsIDR() && h.SliceType != SliceI && h.SliceType != SliceSI {
		r.fail("idr slice of type %s", h.SliceType)
	}
	if sps.SeparateColourPlane {
		h.ColourPlaneID = r.u(2) //nolint:mnd
	}
	h.FrameNum = r.u(int(sps.Log2MaxFrameNum))
	if !sps.FrameMbsOnly {
		h.FieldPic = r.flag()
		if h.FieldPic {
			h.BottomField = r.flag()
		}
	}
	if h.IsIDR() {
		h.IDRPicID = r.ueMax("idr_pic_id", 65535) //nolint:mnd
	}
	switch sps.POCType {
	case 0:
		h.POCLsb = r.u(int(sps.Log2MaxPOCLsb))
		if pps.BottomFieldPicOrderPresent && !h.FieldPic {
			h.DeltaPOCBottom = r.se()
		}
	case 1:
		if !sps.DeltaPicOrderAlwaysZero {
			h.DeltaPOC[0] = r.se()
			if pps.BottomFieldPicOrderPresent && !h.FieldPic {
				h.DeltaPOC[1] = r.se()
			}
		}
	}
	if pps.RedundantPicCntPresent {
		h.RedundantPicCnt = r.ueMax("redundant_pic_cnt", 127) //nolint:mnd
	}
	if h.SliceType == SliceB {
		h.DirectSpatialMvPred = r.flag()
	}

	h.NumRefIdxL0Active = pps.NumRefIdxL0DefaultActive
	h.NumRefIdxL1Active = pps.NumRefIdxL1DefaultActive
	if h.SliceType == SliceP || h.SliceType == SliceSP || h.SliceType == SliceB {
		h.NumRefIdxActiveOverride = r.flag()
		if h.NumRefIdxActiveOverride {
			h.NumRefIdxL0Active = r.ueMax("num_ref_idx_l0_active_minus1", 31) + 1 //nolint:mnd
			if h.SliceType == SliceB {
				h.NumRefIdxL1Active = r.ueMax("num_ref_idx_l1_active_minus1", 31) + 1 //nolint:mnd
			}
		}
	}
	if !h.SliceType.IsIntra() {
		h.RefPicListModificationL0 = r.flag()
		if h.RefPicListModificationL0 {
			h.ModificationsL0 = parseModifications(r)
		}
	}
	if h.SliceType == SliceB {
		h.RefPicListModificationL1 = r.flag()
		if h.RefPicListModificationL1 {
			h.ModificationsL1 = parseModifications(r)
		}
	}

	if (pps.WeightedPred && (h.SliceType == SliceP || h.SliceType == SliceSP)) ||
		(pps.WeightedBipredIDC == 1 && h.SliceType == SliceB) {
		h.PredWeight = parsePredWeightTable(r, h, sps.ChromaFormatIDC != 0 && !sps.SeparateColourPlane)
	}

	if h.IsReference() {
		if h.IsIDR() {
			h.NoOutputOfPriorPics = r.flag()
			h.LongTermReference = r.flag()
		} else {
			h.AdaptiveRefPicMarking = r.flag()
			if h.AdaptiveRefPicMarking {
				h.MMCO = parseMMCO(r)
			}
		}
	}

	if pps.EntropyCodingMode && !h.SliceType.IsIntra() {
		h.CabacInitIDC = r.ueMax("cabac_init_idc", 2) //nolint:mnd
	}
	h.SliceQPDelta = r.se()
	if r.err == nil {
		if qp := 26 + pps.PicInitQPMinus26 + h.SliceQPDelta; qp < 0 || qp > 51 { //nolint:mnd
			r.fail("slice qp %d", qp)
		}
	}
	if h.SliceType == SliceSP || h.SliceType == SliceSI {
		if h.SliceType == SliceSP {
			h.SPForSwitch = r.flag()
		}
		h.SliceQSDelta = r.se()
	}
	if pps.DeblockingFilterControl {
		h.DisableDeblocking = r.ueMax("disable_deblocking_filter_idc", 2) //nolint:mnd
		if h.DisableDeblocking != 1 {
			h.SliceAlphaC0OffsetDiv2 = r.seRange("slice_alpha_c0_offset_div2", -6, 6) //nolint:mnd
			h.SliceBetaOffsetDiv2 = r.seRange("slice_beta_offset_div2", -6, 6)        //nolint:mnd
		}
	}
	if pps.NumSliceGroups > 1 && pps.SliceGroupMapType >= 3 && pps.SliceGroupMapType <= 5 { //nolint:mnd
		picSize := sps.PicWidthInMbs * sps.PicHeightInMapUnits
		h.SliceGroupChangeCycle = r.u(changeCycleBits(picSize, pps.SliceGroupChangeRate))
	}

	if r.err != nil {
		return nil, fmt.Errorf("%w: %w", twig.ErrMalformedSliceHeader, r.err)
	}
	h.HeaderBits = src.BitPos() - start
	return h, nil
}

// changeCycleBits returns Ceil(Log2(picSize / rate + 1)) without rounding the division.
func changeCycleBits(picSize, rate uint32) int {
	n := 0
	for uint64(rate)<<n < uint64(picSize)+uint64(rate) {
		n++
	}
	return n
}

func parseModifications(r *fieldReader) []RefPicListModification {
	var mods []RefPicListModification
	for r.err == nil {
		idc := r.ue()
		if idc == modEnd {
			break
		}
		if idc > modEnd {
			r.fail("modification_of_pic_nums_idc %d", idc)
			break
		}
		if len(mods) == MaxCommands {
			r.fail("more than %d list modifications", MaxCommands)
			break
		}
		m := RefPicListModification{IDC: idc}
		if idc == ModLongTerm {
			m.LongTermPicNum = r.ue()
		} else {
			m.AbsDiffPicNumMinus1 = r.ue()
		}
		mods = append(mods, m)
	}
	return mods
}

func parseMMCO(r *fieldReader) []MMCO {
	var cmds []MMCO
	for r.err == nil {
		op := r.ue()
		if op == MMCOEnd {
			break
		}
		if op > maxMMCOOp {
			r.fail("memory_management_control_operation %d", op)
			break
		}
		if len(cmds) == MaxCommands {
			r.fail("more than %d memory management operations", MaxCommands)
			break
		}
		c := MMCO{Op: op}
		switch op {
		case MMCOUnmarkShortTerm:
			c.DifferenceOfPicNumsMinus1 = r.ue()
		case MMCOUnmarkLongTerm:
			c.LongTermPicNum = r.ue()
		case MMCOShortToLongTerm:
			c.DifferenceOfPicNumsMinus1 = r.ue()
			c.LongTermFrameIdx = r.ue()
		case MMCOMaxLongTermIdx:
			c.MaxLongTermFrameIdxPlus1 = r.ue()
		case MMCOCurrentToLongTerm:
			c.LongTermFrameIdx = r.ue()
		}
		cmds = append(cmds, c)
	}
	return cmds
}

func parsePredWeightTable(r *fieldReader, h *SliceHeader, chroma bool) *PredWeightTable {
	t := &PredWeightTable{}
	t.LumaLog2Denom = r.ueMax("luma_log2_weight_denom", 7) //nolint:mnd
	if chroma {
		t.ChromaLog2Denom = r.ueMax("chroma_log2_weight_denom", 7) //nolint:mnd
	}
	for l := range 2 {
		for i := range MaxWeights {
			t.Luma[l][i] = Weight{Weight: 1 << t.LumaLog2Denom}
			t.Chroma[l][i][0] = Weight{Weight: 1 << t.ChromaLog2Denom}
			t.Chroma[l][i][1] = Weight{Weight: 1 << t.ChromaLog2Denom}
		}
	}

	lists := 1
	if h.SliceType == SliceB {
		lists = 2 //nolint:mnd
	}
	for l := range lists {
		n := h.NumRefIdxL0Active
		if l == 1 {
			n = h.NumRefIdxL1Active
		}
		for i := range min(int(n), MaxWeights) {
			if r.flag() {
				t.Luma[l][i].Weight = r.seRange("luma_weight", -128, 127) //nolint:mnd
				t.Luma[l][i].Offset = r.seRange("luma_offset", -128, 127) //nolint:mnd
			}
			if chroma && r.flag() {
				for j := range 2 {
					t.Chroma[l][i][j].Weight = r.seRange("chroma_weight", -128, 127) //nolint:mnd
					t.Chroma[l][i][j].Offset = r.seRange("chroma_offset", -128, 127) //nolint:mnd
				}
			}
		}
	}
	return t
}

// SliceInfo is the part of a slice header decodable without parameter sets.
type SliceInfo struct {
	NalUnitType    int
	NalRefIDC      int
	FirstMbInSlice uint32
	SliceType      SliceType
	PPSID          uint32
}

// Peek decodes first_mb_in_slice, slice_type and pic_parameter_set_id of a slice
// NAL unit in software.
func Peek(nalu []byte) (SliceInfo, error) {
	if len(nalu) < 2 || !nal.IsSlice(nal.Type(nalu[0])) { //nolint:mnd
		return SliceInfo{}, fmt.Errorf("%w: not a slice", twig.ErrMalformedSliceHeader)
	}
	info := SliceInfo{NalUnitType: nal.Type(nalu[0]), NalRefIDC: nal.RefIDC(nalu[0])}
	r := &fieldReader{src: bitreader.NewNALReader(nalu[1:])}
	info.FirstMbInSlice = r.ue()
	info.SliceType = SliceType(r.ueMax("slice_type", maxSliceType) % 5) //nolint:mnd
	info.PPSID = r.ueMax("pic_parameter_set_id", MaxPPSCount-1)
	if r.err != nil {
		return SliceInfo{}, fmt.Errorf("%w: %w", twig.ErrMalformedSliceHeader, r.err)
	}
	return info, nil
}

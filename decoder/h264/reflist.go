package h264

import (
	"cmp"
	"slices"

	codec "github.com/ugparu/twig/codec/h264"
	"github.com/ugparu/twig/utils/logger"
)

// BuildRefLists returns the initial reference lists of a slice as slot indices.
// P and SP slices get list 0 only, B slices both, intra slices none.
func BuildRefLists(pool *Pool, sliceType codec.SliceType, poc int32) (l0, l1 []int) {
	if sliceType.IsIntra() {
		return nil, nil
	}

	var before, after []*Frame
	for _, f := range pool.ShortTerm() {
		if f.POC < poc {
			before = append(before, f)
		} else {
			after = append(after, f)
		}
	}
	slices.SortStableFunc(before, func(a, b *Frame) int { return cmp.Compare(b.POC, a.POC) })
	slices.SortStableFunc(after, func(a, b *Frame) int { return cmp.Compare(a.POC, b.POC) })
	long := pool.LongTerm()

	l0 = appendIndices(l0, before, after, long)
	if sliceType != codec.SliceB {
		return l0, nil
	}

	l1 = appendIndices(l1, after, before, long)
	if len(l1) > 1 && slices.Equal(l0, l1) {
		l1[0], l1[1] = l1[1], l1[0]
	}
	return l0, l1
}

func appendIndices(dst []int, sets ...[]*Frame) []int {
	for _, set := range sets {
		for _, f := range set {
			if len(dst) == MaxRefFrames {
				return dst
			}
			dst = append(dst, f.Index)
		}
	}
	return dst
}

// ModifyRefList applies ref_pic_list_modification commands to an initial list and
// truncates it to numActive entries. Commands naming a picture that is not a
// reference are skipped; their count is returned.
func ModifyRefList(pool *Pool, list []int, mods []codec.RefPicListModification,
	currFrameNum uint32, numActive int,
) (out []int, missing int) {
	out = slices.Clone(list)
	maxFrameNum := int64(pool.MaxFrameNum)
	curr := int64(currFrameNum)
	pred := curr
	refIdx := 0

	for _, m := range mods {
		if refIdx >= numActive {
			break
		}

		var f *Frame
		switch m.IDC {
		case codec.ModShortSubtract, codec.ModShortAdd:
			delta := int64(m.AbsDiffPicNumMinus1) + 1
			noWrap := pred + delta
			if m.IDC == codec.ModShortSubtract {
				if noWrap = pred - delta; noWrap < 0 {
					noWrap += maxFrameNum
				}
			} else if noWrap >= maxFrameNum {
				noWrap -= maxFrameNum
			}
			pred = noWrap

			picNum := noWrap
			if picNum > curr {
				picNum -= maxFrameNum
			}
			if f = pool.ShortTermByPicNum(int32(picNum), currFrameNum); f == nil { //nolint:gosec
				logger.Warningf(pool, "Modification references missing short-term picture %d", picNum)
			}
		case codec.ModLongTerm:
			if f = pool.LongTermByIndex(int32(m.LongTermPicNum)); f == nil { //nolint:gosec
				logger.Warningf(pool, "Modification references missing long-term picture %d", m.LongTermPicNum)
			}
		}
		if f == nil {
			missing++
			continue
		}

		out = slices.Insert(out, min(refIdx, len(out)), f.Index)
		n := refIdx + 1
		for c := refIdx + 1; c < len(out); c++ {
			if out[c] != f.Index {
				out[n] = out[c]
				n++
			}
		}
		out = out[:n]
		refIdx++
	}

	if len(out) > numActive {
		out = out[:numActive]
	}
	return out, missing
}

package h264

import (
	"testing"

	"github.com/stretchr/testify/require"

	codec "github.com/ugparu/twig/codec/h264"
)

func pocs(p *Pool, list []int) []int32 {
	out := make([]int32, len(list))
	for i, idx := range list {
		out[i] = p.Frame(idx).POC
	}
	return out
}

func TestBuildRefListsP(t *testing.T) {
	t.Parallel()

	p, f := refFrames(t, 1, -2, 2, -1, 5)
	p.AddLongTermRef(f[4], 0)

	l0, l1 := BuildRefLists(p, codec.SliceP, 0)
	require.Equal(t, []int32{-1, -2, 1, 2, 5}, pocs(p, l0))
	require.Nil(t, l1)

	l0, l1 = BuildRefLists(p, codec.SliceI, 0)
	require.Nil(t, l0)
	require.Nil(t, l1)
}

func TestBuildRefListsB(t *testing.T) {
	t.Parallel()

	p, _ := refFrames(t, 1, -2, 2, -1)
	l0, l1 := BuildRefLists(p, codec.SliceB, 0)
	require.Equal(t, []int32{-1, -2, 1, 2}, pocs(p, l0))
	require.Equal(t, []int32{1, 2, -1, -2}, pocs(p, l1))

	// Identical lists get the first two entries of list 1 swapped.
	p, _ = refFrames(t, -4, -2)
	l0, l1 = BuildRefLists(p, codec.SliceB, 0)
	require.Equal(t, []int32{-2, -4}, pocs(p, l0))
	require.Equal(t, []int32{-4, -2}, pocs(p, l1))
}

func TestBuildRefListsCap(t *testing.T) {
	t.Parallel()

	all := make([]int32, MaxFramePoolSize)
	for i := range all {
		all[i] = int32(-i - 1)
	}
	p, _ := refFrames(t, all...)
	require.Len(t, p.ShortTerm(), MaxRefFrames)

	l0, _ := BuildRefLists(p, codec.SliceP, 0)
	require.Len(t, l0, MaxRefFrames)
}

func TestModifyRefList(t *testing.T) {
	t.Parallel()

	// frame_num 0, 1, 2 with POC rising; current frame_num 3.
	p, f := refFrames(t, 0, 2, 4)
	l0, _ := BuildRefLists(p, codec.SliceP, 6)
	require.Equal(t, []int{f[2].Index, f[1].Index, f[0].Index}, l0)

	// PicNum 3-2 = 1, then 1-1 = 0.
	mods := []codec.RefPicListModification{
		{IDC: codec.ModShortSubtract, AbsDiffPicNumMinus1: 1},
		{IDC: codec.ModShortSubtract, AbsDiffPicNumMinus1: 0},
	}
	out, missing := ModifyRefList(p, l0, mods, 3, 3)
	require.Zero(t, missing)
	require.Equal(t, []int{f[1].Index, f[0].Index, f[2].Index}, out)

	// Truncated to the active count.
	out, _ = ModifyRefList(p, l0, nil, 3, 2)
	require.Equal(t, []int{f[2].Index, f[1].Index}, out)

	// A picture that is not a reference is skipped; the prediction still advances
	// to 9, so adding 9 wraps to frame_num 2.
	mods = []codec.RefPicListModification{
		{IDC: codec.ModShortSubtract, AbsDiffPicNumMinus1: 9},
		{IDC: codec.ModShortAdd, AbsDiffPicNumMinus1: 8},
	}
	out, missing = ModifyRefList(p, l0, mods, 3, 3)
	require.Equal(t, 1, missing)
	require.Equal(t, l0, out)
	require.Equal(t, []int{f[2].Index, f[1].Index, f[0].Index}, l0, "input list must not change")
}

func TestModifyRefListWrapAndLongTerm(t *testing.T) {
	t.Parallel()

	p, f := refFrames(t, 0, 2, 4)
	f[0].FrameNum = 14
	f[1].FrameNum = 15
	f[2].FrameNum = 0
	p.AddLongTermRef(f[2], 2)

	// Current frame_num 1: 1-2 wraps to 15, PicNum -1.
	mods := []codec.RefPicListModification{
		{IDC: codec.ModShortSubtract, AbsDiffPicNumMinus1: 1},
		{IDC: codec.ModLongTerm, LongTermPicNum: 2},
	}
	l0, _ := BuildRefLists(p, codec.SliceP, 10)
	out, missing := ModifyRefList(p, l0, mods, 1, 3)
	require.Zero(t, missing)
	require.Equal(t, []int{f[1].Index, f[2].Index, f[0].Index}, out)
}

package h264

import (
	codec "github.com/ugparu/twig/codec/h264"
	"github.com/ugparu/twig/utils/logger"
)

// ExecuteMMCO applies adaptive reference marking commands in order. current is the
// picture being marked and currFrameNum its frame_num. It reports whether
// memory_management_control_operation 5 ran.
func ExecuteMMCO(pool *Pool, cmds []codec.MMCO, current *Frame, currFrameNum uint32) (reset bool) {
	for _, c := range cmds {
		switch c.Op {
		case codec.MMCOUnmarkShortTerm:
			picNum := int32(currFrameNum) - int32(c.DifferenceOfPicNumsMinus1+1) //nolint:gosec
			if f := pool.ShortTermByPicNum(picNum, currFrameNum); f != nil {
				pool.MarkUnref(f)
			}
		case codec.MMCOUnmarkLongTerm:
			if f := pool.LongTermByIndex(int32(c.LongTermPicNum)); f != nil { //nolint:gosec
				pool.MarkUnref(f)
			}
		case codec.MMCOShortToLongTerm:
			picNum := int32(currFrameNum) - int32(c.DifferenceOfPicNumsMinus1+1) //nolint:gosec
			f := pool.ShortTermByPicNum(picNum, currFrameNum)
			if f == nil {
				logger.Warningf(pool, "Long-term conversion of missing picture %d", picNum)
				continue
			}
			pool.AddLongTermRef(f, int32(c.LongTermFrameIdx)) //nolint:gosec
		case codec.MMCOMaxLongTermIdx:
			pool.MaxLongTermFrameIdx = int32(c.MaxLongTermFrameIdxPlus1) - 1 //nolint:gosec
			for _, f := range pool.LongTerm() {
				if f.LongTermIndex > pool.MaxLongTermFrameIdx {
					pool.MarkUnref(f)
				}
			}
		case codec.MMCOUnmarkAll:
			pool.UnrefAll()
			reset = true
		case codec.MMCOCurrentToLongTerm:
			pool.AddLongTermRef(current, int32(c.LongTermFrameIdx)) //nolint:gosec
		}
	}
	return reset
}

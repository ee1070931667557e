package h264

import (
	"fmt"
	"slices"

	"github.com/ugparu/twig"
	"github.com/ugparu/twig/utils/logger"
)

const (
	// MaxFramePoolSize is the number of frame buffer list descriptors the engine has.
	MaxFramePoolSize = 18
	// MaxRefFrames caps each reference set.
	MaxRefFrames = 16

	auxBaseSize = 327680
	wideWidth   = 2048
	pageAlign   = 4096
)

// FrameState tracks who owns a pool slot.
type FrameState int

const (
	FrameFree FrameState = iota
	FrameDecoderHeld
	FrameAppHeld
)

func (s FrameState) String() string {
	switch s {
	case FrameFree:
		return "FREE"
	case FrameDecoderHeld:
		return "DECODER_HELD"
	case FrameAppHeld:
		return "APP_HELD"
	}
	return fmt.Sprintf("FrameState(%d)", int(s))
}

// Frame is one pool slot: a decode target and its auxiliary scratch buffer.
type Frame struct {
	Buffer twig.Buffer // Luma plane followed by the interleaved chroma plane.
	Extra  twig.Buffer // Motion vector and neighbour scratch for this picture.
	Index  int         // Stable slot index, also the frame buffer list position.
	State  FrameState

	FrameNum      int32 // -1 when unset.
	POC           int32
	IsReference   bool
	IsLongTerm    bool
	LongTermIndex int32
}

// frameMeta is the mutable part of a Frame.
type frameMeta struct {
	state         FrameState
	frameNum      int32
	poc           int32
	isReference   bool
	isLongTerm    bool
	longTermIndex int32
}

func (f *Frame) meta() frameMeta {
	return frameMeta{f.State, f.FrameNum, f.POC, f.IsReference, f.IsLongTerm, f.LongTermIndex}
}

func (f *Frame) setMeta(m frameMeta) {
	f.State, f.FrameNum, f.POC = m.state, m.frameNum, m.poc
	f.IsReference, f.IsLongTerm, f.LongTermIndex = m.isReference, m.isLongTerm, m.longTermIndex
}

// Pool is an arena of frames with stable indices. Reference sets hold slot indices.
type Pool struct {
	frames   []*Frame
	free     []int // Free slots, most recently freed last.
	short    []int // Short-term references, oldest first.
	long     []int // Long-term references, ascending LongTermIndex.
	capacity int

	orphans map[twig.Buffer]*Frame // Application-held frames of a torn down pool.

	MaxLongTermFrameIdx int32 // -1 when no long-term index is allowed.
	PrevFrameNum        int32 // -1 before the first reference picture.
	MaxFrameNum         uint32

	onAlloc   func()
	onRecycle func()
}

// NewPool returns an empty pool of at most capacity slots.
func NewPool(capacity int) *Pool {
	return &Pool{
		capacity:            min(max(capacity, 1), MaxFramePoolSize),
		orphans:             make(map[twig.Buffer]*Frame),
		MaxLongTermFrameIdx: -1,
		PrevFrameNum:        -1,
	}
}

func (p *Pool) String() string {
	return "FRAME_POOL"
}

// Frames returns the allocated slots by index.
func (p *Pool) Frames() []*Frame {
	return p.frames
}

// Frame returns the slot at index i.
func (p *Pool) Frame(i int) *Frame {
	return p.frames[i]
}

// ShortTerm returns the short-term references, oldest first.
func (p *Pool) ShortTerm() []*Frame {
	return p.byIndex(p.short)
}

// LongTerm returns the long-term references by ascending long-term index.
func (p *Pool) LongTerm() []*Frame {
	return p.byIndex(p.long)
}

func (p *Pool) byIndex(idx []int) []*Frame {
	out := make([]*Frame, len(idx))
	for i, n := range idx {
		out[i] = p.frames[n]
	}
	return out
}

// AuxSize returns the auxiliary buffer size for a picture width pixels and mbWidth macroblocks wide.
func AuxSize(width int, mbWidth uint32) int {
	size := auxBaseSize
	if width >= wideWidth {
		pwimm1 := int(mbWidth) - 1
		size += (pwimm1 + 32) * 192                 //nolint:mnd
		size = (size + pageAlign - 1) &^ (pageAlign - 1)
		size += (pwimm1 + 64) * 80 //nolint:mnd
	}
	return size
}

// Acquire returns a decode target in DecoderHeld state. A free slot is reused first,
// then a new slot is allocated while below capacity, then a non-reference
// DecoderHeld slot is recycled.
func (p *Pool) Acquire(alloc twig.Allocator, width, height int, mbWidth uint32) (*Frame, error) {
	if n := len(p.free); n > 0 {
		f := p.frames[p.free[n-1]]
		p.free = p.free[:n-1]
		f.State = FrameDecoderHeld
		return f, nil
	}

	if len(p.frames) < p.capacity {
		buf, err := alloc.Alloc(width * height * 3 / 2) //nolint:mnd
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", len(p.frames), err)
		}
		extra, err := alloc.Alloc(AuxSize(width, mbWidth))
		if err != nil {
			buf.Release()
			return nil, fmt.Errorf("frame %d aux: %w", len(p.frames), err)
		}
		f := &Frame{
			Buffer:   buf,
			Extra:    extra,
			Index:    len(p.frames),
			State:    FrameDecoderHeld,
			FrameNum: -1,
		}
		p.frames = append(p.frames, f)
		if p.onAlloc != nil {
			p.onAlloc()
		}
		return f, nil
	}

	for _, f := range p.frames {
		if !f.IsReference && f.State == FrameDecoderHeld {
			logger.Warningf(p, "Pool at maximum size (%d frames), force recycling non-reference slot %d", p.capacity, f.Index)
			if p.onRecycle != nil {
				p.onRecycle()
			}
			f.FrameNum = -1
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: all %d frames referenced or held by the application", twig.ErrResourceExhausted, len(p.frames))
}

func (p *Pool) setFree(f *Frame) {
	if f.State == FrameFree {
		return
	}
	f.State = FrameFree
	f.FrameNum = -1
	p.free = append(p.free, f.Index)
}

func removeIndex(set []int, i int) []int {
	if n := slices.Index(set, i); n >= 0 {
		return slices.Delete(set, n, n+1)
	}
	return set
}

// AddShortTermRef makes f a short-term reference. The oldest short-term
// reference is evicted when the set is full.
func (p *Pool) AddShortTermRef(f *Frame) {
	p.long = removeIndex(p.long, f.Index)
	p.short = removeIndex(p.short, f.Index)
	f.IsReference = true
	f.IsLongTerm = false
	p.short = append(p.short, f.Index)
	if len(p.short) > MaxRefFrames {
		p.MarkUnref(p.frames[p.short[0]])
	}
}

// AddLongTermRef makes f a long-term reference at idx, evicting any other
// frame holding idx.
func (p *Pool) AddLongTermRef(f *Frame, idx int32) {
	if other := p.LongTermByIndex(idx); other != nil && other != f {
		p.MarkUnref(other)
	}
	p.short = removeIndex(p.short, f.Index)
	p.long = removeIndex(p.long, f.Index)
	f.IsReference = true
	f.IsLongTerm = true
	f.LongTermIndex = idx

	pos, _ := slices.BinarySearchFunc(p.long, idx, func(i int, target int32) int {
		return int(p.frames[i].LongTermIndex - target)
	})
	p.long = slices.Insert(p.long, pos, f.Index)
	if len(p.long) > MaxRefFrames {
		p.MarkUnref(p.frames[p.long[0]])
	}
}

// MarkUnref drops f from the reference sets. A frame the decoder holds becomes free.
func (p *Pool) MarkUnref(f *Frame) {
	p.short = removeIndex(p.short, f.Index)
	p.long = removeIndex(p.long, f.Index)
	f.IsReference = false
	f.IsLongTerm = false
	f.LongTermIndex = 0
	if f.State == FrameDecoderHeld {
		p.setFree(f)
	}
}

// UnrefAll drops every reference and disallows long-term indices.
func (p *Pool) UnrefAll() {
	for _, f := range p.ShortTerm() {
		p.MarkUnref(f)
	}
	for _, f := range p.LongTerm() {
		p.MarkUnref(f)
	}
	p.MaxLongTermFrameIdx = -1
}

// SlidingWindow evicts the oldest short-term references until a new reference
// fits in maxNumRefFrames.
func (p *Pool) SlidingWindow(maxNumRefFrames uint32) {
	limit := max(int(maxNumRefFrames), 1)
	for len(p.short) > 0 && len(p.short)+len(p.long) >= limit {
		p.MarkUnref(p.frames[p.short[0]])
	}
}

// Prune frees every DecoderHeld frame that is no longer a reference, except keep.
func (p *Pool) Prune(keep *Frame) {
	for _, f := range p.frames {
		if f != keep && f.State == FrameDecoderHeld && !f.IsReference {
			p.setFree(f)
		}
	}
}

// PicNum returns the frame's PicNum relative to the current frame_num.
func (p *Pool) PicNum(f *Frame, currFrameNum uint32) int32 {
	if f.FrameNum > int32(currFrameNum) { //nolint:gosec
		return f.FrameNum - int32(p.MaxFrameNum) //nolint:gosec
	}
	return f.FrameNum
}

// ShortTermByPicNum returns the short-term reference with the given PicNum, or nil.
func (p *Pool) ShortTermByPicNum(picNum int32, currFrameNum uint32) *Frame {
	for _, i := range p.short {
		if f := p.frames[i]; p.PicNum(f, currFrameNum) == picNum {
			return f
		}
	}
	return nil
}

// LongTermByIndex returns the long-term reference at idx, or nil.
func (p *Pool) LongTermByIndex(idx int32) *Frame {
	for _, i := range p.long {
		if f := p.frames[i]; f.LongTermIndex == idx {
			return f
		}
	}
	return nil
}

// Return hands an application-held frame back. It stays with the decoder while
// it is a reference. It reports false when buf belongs to no frame.
func (p *Pool) Return(buf twig.Buffer) bool {
	if f, ok := p.orphans[buf]; ok {
		delete(p.orphans, buf)
		f.Buffer.Release()
		f.Extra.Release()
		return true
	}
	for _, f := range p.frames {
		if f.Buffer != buf {
			continue
		}
		if f.State != FrameAppHeld {
			logger.Warningf(p, "Returned frame %d is %s, not %s", f.Index, f.State, FrameAppHeld)
		}
		if f.IsReference {
			f.State = FrameDecoderHeld
		} else {
			p.setFree(f)
		}
		return true
	}
	return false
}

// Reset releases every slot. Frames the application still holds are released
// when returned.
func (p *Pool) Reset() {
	for _, f := range p.frames {
		if f.State == FrameAppHeld {
			p.orphans[f.Buffer] = f
			continue
		}
		f.Buffer.Release()
		f.Extra.Release()
	}
	p.frames, p.free, p.short, p.long = nil, nil, nil, nil
	p.MaxLongTermFrameIdx = -1
	p.PrevFrameNum = -1
}

// Close releases every buffer including application-held ones.
func (p *Pool) Close() {
	for _, f := range p.frames {
		if f.State == FrameAppHeld {
			logger.Warningf(p, "Releasing frame %d still held by the application", f.Index)
		}
		f.Buffer.Release()
		f.Extra.Release()
	}
	for _, f := range p.orphans {
		f.Buffer.Release()
		f.Extra.Release()
	}
	p.orphans = make(map[twig.Buffer]*Frame)
	p.frames, p.free, p.short, p.long = nil, nil, nil, nil
}

// poolSnapshot is the bookkeeping of a Pool at one point in time.
type poolSnapshot struct {
	meta                []frameMeta
	free, short, long   []int
	maxLongTermFrameIdx int32
	prevFrameNum        int32
}

func (p *Pool) snapshot() poolSnapshot {
	s := poolSnapshot{
		meta:                make([]frameMeta, len(p.frames)),
		free:                slices.Clone(p.free),
		short:               slices.Clone(p.short),
		long:                slices.Clone(p.long),
		maxLongTermFrameIdx: p.MaxLongTermFrameIdx,
		prevFrameNum:        p.PrevFrameNum,
	}
	for i, f := range p.frames {
		s.meta[i] = f.meta()
	}
	return s
}

// restore rolls the bookkeeping back to s. Slots allocated since s are kept as free slots.
func (p *Pool) restore(s poolSnapshot) {
	for i, f := range p.frames {
		if i < len(s.meta) {
			f.setMeta(s.meta[i])
		} else {
			f.setMeta(frameMeta{state: FrameFree, frameNum: -1})
		}
	}
	p.free = s.free
	for i := len(s.meta); i < len(p.frames); i++ {
		p.free = append(p.free, i)
	}
	p.short, p.long = s.short, s.long
	p.MaxLongTermFrameIdx = s.maxLongTermFrameIdx
	p.PrevFrameNum = s.prevFrameNum
}

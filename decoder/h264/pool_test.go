package h264

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ugparu/twig"
	"github.com/ugparu/twig/hw/fake"
)

const (
	testWidth  = 32
	testHeight = 32
)

func acquire(t *testing.T, p *Pool, dev twig.Allocator) *Frame {
	t.Helper()
	f, err := p.Acquire(dev, testWidth, testHeight, testWidth/16)
	require.NoError(t, err)
	return f
}

// refFrames builds a pool holding short-term references with the given POCs,
// frame_num following insertion order.
func refFrames(t *testing.T, pocs ...int32) (*Pool, []*Frame) {
	t.Helper()
	dev := fake.NewDevice()
	p := NewPool(MaxFramePoolSize)
	p.MaxFrameNum = 16
	frames := make([]*Frame, len(pocs))
	for i, poc := range pocs {
		f := acquire(t, p, dev)
		f.POC = poc
		f.FrameNum = int32(i)
		p.AddShortTermRef(f)
		f.State = FrameAppHeld
		frames[i] = f
	}
	return p, frames
}

func TestAuxSize(t *testing.T) {
	t.Parallel()

	require.Equal(t, 327680, AuxSize(1920, 120))
	// 327680 + 159*192 rounded up to a page, then 191*80 of intra prediction rows.
	require.Equal(t, 360448+15280, AuxSize(2048, 128))
}

func TestPoolAcquire(t *testing.T) {
	t.Parallel()

	dev := fake.NewDevice()
	p := NewPool(3)

	allocs := 0
	p.onAlloc = func() { allocs++ }

	a := acquire(t, p, dev)
	b := acquire(t, p, dev)
	require.Equal(t, 0, a.Index)
	require.Equal(t, 1, b.Index)
	require.Equal(t, FrameDecoderHeld, a.State)
	require.Equal(t, int32(-1), a.FrameNum)
	require.Equal(t, testWidth*testHeight*3/2, a.Buffer.Size())
	require.Equal(t, AuxSize(testWidth, 2), a.Extra.Size())
	require.Equal(t, 4, dev.Allocs())
	require.Equal(t, 2, allocs)

	// A freed slot is reused before anything new is allocated.
	p.MarkUnref(a)
	require.Equal(t, FrameFree, a.State)
	require.Same(t, a, acquire(t, p, dev))
	require.Equal(t, 4, dev.Allocs())
}

func TestPoolForceRecycle(t *testing.T) {
	t.Parallel()

	dev := fake.NewDevice()
	p := NewPool(1)
	recycled := 0
	p.onRecycle = func() { recycled++ }

	a := acquire(t, p, dev)
	a.FrameNum = 7
	require.Same(t, a, acquire(t, p, dev))
	require.Equal(t, 1, recycled)
	require.Equal(t, int32(-1), a.FrameNum)
}

func TestPoolExhausted(t *testing.T) {
	t.Parallel()

	dev := fake.NewDevice()
	p := NewPool(2)
	a := acquire(t, p, dev)
	p.AddShortTermRef(a)
	b := acquire(t, p, dev)
	b.State = FrameAppHeld

	_, err := p.Acquire(dev, testWidth, testHeight, 2)
	require.ErrorIs(t, err, twig.ErrResourceExhausted)
}

func TestPoolAllocFailure(t *testing.T) {
	t.Parallel()

	dev := fake.NewDevice()
	dev.LimitAllocs(1)
	p := NewPool(2)

	_, err := p.Acquire(dev, testWidth, testHeight, 2)
	require.ErrorIs(t, err, twig.ErrAllocationFailed)
	require.Zero(t, dev.Live())
	require.Empty(t, p.Frames())
}

func TestPoolReturn(t *testing.T) {
	t.Parallel()

	dev := fake.NewDevice()
	p := NewPool(4)
	ref := acquire(t, p, dev)
	p.AddShortTermRef(ref)
	ref.State = FrameAppHeld
	plain := acquire(t, p, dev)
	plain.State = FrameAppHeld

	require.True(t, p.Return(ref.Buffer))
	require.Equal(t, FrameDecoderHeld, ref.State)
	require.True(t, p.Return(plain.Buffer))
	require.Equal(t, FrameFree, plain.State)

	other, err := dev.Alloc(16)
	require.NoError(t, err)
	require.False(t, p.Return(other))

	// An unreferenced DecoderHeld frame becomes free.
	p.MarkUnref(ref)
	require.Equal(t, FrameFree, ref.State)
	require.Empty(t, p.ShortTerm())
}

func TestPoolResetOrphans(t *testing.T) {
	t.Parallel()

	dev := fake.NewDevice()
	p := NewPool(4)
	held := acquire(t, p, dev)
	held.State = FrameAppHeld
	acquire(t, p, dev)
	require.Equal(t, 4, dev.Live())

	p.Reset()
	require.Empty(t, p.Frames())
	require.Equal(t, 2, dev.Live())
	require.Equal(t, int32(-1), p.PrevFrameNum)

	require.True(t, p.Return(held.Buffer))
	require.Zero(t, dev.Live())
	require.True(t, held.Buffer.(*fake.Buffer).Released)
}

func TestPoolLongTerm(t *testing.T) {
	t.Parallel()

	p, f := refFrames(t, 0, 2, 4)
	p.AddLongTermRef(f[2], 3)
	p.AddLongTermRef(f[0], 1)
	require.Equal(t, []*Frame{f[1]}, p.ShortTerm())
	require.Equal(t, []*Frame{f[0], f[2]}, p.LongTerm())
	require.True(t, f[0].IsLongTerm)

	// Reusing an index evicts its holder.
	p.AddLongTermRef(f[1], 3)
	require.Equal(t, []*Frame{f[0], f[1]}, p.LongTerm())
	require.False(t, f[2].IsReference)
	require.Same(t, f[1], p.LongTermByIndex(3))
	require.Nil(t, p.LongTermByIndex(2))
}

func TestSlidingWindow(t *testing.T) {
	t.Parallel()

	p, f := refFrames(t, 0, 2, 4)
	p.SlidingWindow(2)
	require.Equal(t, []*Frame{f[2]}, p.ShortTerm())
	require.False(t, f[0].IsReference)
	require.False(t, f[1].IsReference)
	// Application-held frames stay with the application.
	require.Equal(t, FrameAppHeld, f[0].State)
}

func TestPoolSnapshotRestore(t *testing.T) {
	t.Parallel()

	dev := fake.NewDevice()
	p, f := refFrames(t, 0, 2)
	snap := p.snapshot()

	p.UnrefAll()
	extra := acquire(t, p, dev)
	extra.POC = 9
	require.Empty(t, p.ShortTerm())

	p.restore(snap)
	require.Equal(t, []*Frame{f[0], f[1]}, p.ShortTerm())
	require.True(t, f[0].IsReference)
	require.Equal(t, FrameFree, extra.State)
	require.Same(t, extra, acquire(t, p, dev))
}

func TestPicNumWrap(t *testing.T) {
	t.Parallel()

	p, f := refFrames(t, 0, 2)
	f[0].FrameNum = 15
	f[1].FrameNum = 0
	require.Equal(t, int32(-1), p.PicNum(f[0], 1))
	require.Equal(t, int32(0), p.PicNum(f[1], 1))
	require.Same(t, f[0], p.ShortTermByPicNum(-1, 1))
}

// Package h264 sequences H.264 decoding on the video engine: parameter set
// tracking, the frame pool and reference marking, and register programming for
// every slice of a picture.
package h264

import (
	"context"
	"errors"
	"fmt"
	"image"
	"slices"
	"time"

	"github.com/ugparu/twig"
	codec "github.com/ugparu/twig/codec/h264"
	"github.com/ugparu/twig/hw/regs"
	"github.com/ugparu/twig/hw/vld"
	bitreader "github.com/ugparu/twig/utils/bits"
	"github.com/ugparu/twig/utils/logger"
	"github.com/ugparu/twig/utils/nal"
)

// ErrClosed is returned by a decoder after Close.
var ErrClosed = errors.New("h264: decoder closed")

// State is the sequencer stage of a decoder.
type State int

const (
	StateIdle State = iota
	StateParamsReady
	StateFrameAcquired
	StateSlicesPending
	StateSliceDecoding
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateParamsReady:
		return "PARAMS_READY"
	case StateFrameAcquired:
		return "FRAME_ACQUIRED"
	case StateSlicesPending:
		return "SLICES_PENDING"
	case StateSliceDecoding:
		return "SLICE_DECODING"
	case StateComplete:
		return "COMPLETE"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Observer receives decode events. Implementations must be fast; they run on the decoding goroutine.
type Observer interface {
	FrameDecoded(pic *Picture, elapsed time.Duration)
	DecodeFailed(err error)
	SlotAllocated()
	FrameRecycled()
}

// Picture is a decoded frame handed to the application. Its Buffer holds the
// NV12 picture: the luma plane followed by interleaved chroma. It must be given
// back with ReturnPicture.
type Picture struct {
	Buffer twig.Buffer
	Index  int // Frame pool slot.

	Width  int // Coded width.
	Height int // Coded height.
	Crop   image.Rectangle

	POC       int32
	FrameNum  int32
	IDR       bool
	Reference bool
	Slices    int
}

// Luma returns the Y plane.
func (p *Picture) Luma() []byte {
	return p.Buffer.Data()[:p.Width*p.Height]
}

// Chroma returns the interleaved CbCr plane.
func (p *Picture) Chroma() []byte {
	n := p.Width * p.Height
	return p.Buffer.Data()[n : n+n/2]
}

// Decoder decodes H.264 access units on one device. It is not safe for concurrent use.
type Decoder struct {
	dev  twig.Device
	regs regs.File
	cfg  Config
	obs  Observer
	vld  *vld.Reader

	sets codec.ParameterSets
	ref  codec.RefState
	pool *Pool

	extra   twig.Buffer // Field intra and neighbour info scratch shared by all pictures.
	staging twig.Buffer // Owned copy of DecodeBytes input.

	state  State
	width  int
	height int
	closed bool
}

// New switches dev into decoding mode and returns a decoder using it. obs may be nil.
func New(dev twig.Device, cfg Config, obs Observer) (*Decoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Decoder{
		dev:  dev,
		regs: dev.Registers(),
		cfg:  cfg,
		obs:  obs,
		pool: NewPool(cfg.PoolSize),
	}
	d.vld = vld.NewReader(d.regs, cfg.poll())
	if obs != nil {
		d.pool.onAlloc = obs.SlotAllocated
		d.pool.onRecycle = obs.FrameRecycled
	}
	dev.EnableDecoder()
	logger.Debugf(d, "Created decoder with pool of %d frames, %s slice headers", d.pool.capacity, cfg.HeaderMode)
	return d, nil
}

func (d *Decoder) String() string {
	return "H264_DECODER"
}

// State returns the current sequencer stage.
func (d *Decoder) State() State {
	return d.state
}

// Pool returns the decoder's frame pool.
func (d *Decoder) Pool() *Pool {
	return d.pool
}

// Resolution returns the coded size of the active sequence. ok is false before
// the first SPS has been activated.
func (d *Decoder) Resolution() (width, height int, ok bool) {
	return d.width, d.height, d.width > 0
}

// Decode decodes the first picture of an Annex-B buffer the engine can read. A
// buffer carrying only parameter sets returns a nil picture.
func (d *Decoder) Decode(ctx context.Context, buf twig.Buffer) (*Picture, error) {
	return d.decode(ctx, buf, buf.Size())
}

// DecodeBytes copies an Annex-B buffer into a decoder-owned DMA buffer and decodes it.
func (d *Decoder) DecodeBytes(ctx context.Context, data []byte) (*Picture, error) {
	if d.closed {
		return nil, ErrClosed
	}
	if d.staging == nil || d.staging.Size() < len(data) {
		if d.staging != nil {
			d.staging.Release()
			d.staging = nil
		}
		buf, err := d.dev.Alloc(max(d.cfg.StagingSize, len(data)))
		if err != nil {
			return nil, &twig.DecodeError{Op: "staging", Slice: -1, Err: err}
		}
		d.staging = buf
	}
	copy(d.staging.Data(), data)
	return d.decode(ctx, d.staging, len(data))
}

// ReturnPicture gives a picture back to the frame pool. Pictures of a pool torn
// down by a resolution change are released.
func (d *Decoder) ReturnPicture(pic *Picture) {
	if pic == nil {
		return
	}
	if !d.pool.Return(pic.Buffer) {
		logger.Warningf(d, "Returned picture %d is not from this decoder", pic.Index)
	}
}

// Close idles the engine and releases every buffer.
func (d *Decoder) Close() error {
	if d.closed {
		return ErrClosed
	}
	d.closed = true
	d.dev.DisableDecoder()
	d.pool.Close()
	if d.extra != nil {
		d.extra.Release()
		d.extra = nil
	}
	if d.staging != nil {
		d.staging.Release()
		d.staging = nil
	}
	return nil
}

// picture is the work state of one decode call.
type picture struct {
	buf   twig.Buffer
	data  []byte
	units []nal.Unit
	sps   *codec.SPS
	pps   *codec.PPS
	frame *Frame
	first *codec.SliceHeader
	poc   int32

	defaultScaling bool
	mmcoReset      bool // memory_management_control_operation 5 ran for this picture.
	slices         int
	start          time.Time
}

func (d *Decoder) decode(ctx context.Context, buf twig.Buffer, n int) (*Picture, error) {
	if d.closed {
		return nil, ErrClosed
	}
	p := &picture{buf: buf, data: buf.Data()[:n], start: time.Now()}
	p.units = nal.FindUnits(p.data)

	first, err := d.loadParams(p)
	if err != nil {
		return nil, d.fail(-1, "params", err)
	}
	if first < 0 {
		return nil, nil
	}

	snap, refSnap := d.pool.snapshot(), d.ref
	pic, err := d.decodePicture(ctx, p, first)
	if err != nil {
		d.pool.restore(snap)
		d.ref = refSnap
		return nil, err
	}
	return pic, nil
}

// loadParams stores the parameter sets that precede the first slice, activates
// the sequence of that slice and returns its unit index, or -1 without slices.
func (d *Decoder) loadParams(p *picture) (int, error) {
	first := -1
	var stored *codec.SPS
scan:
	for i, u := range p.units {
		switch typ := u.Type(p.data); {
		case typ == nal.TypeSPS:
			sps, changed, err := d.sets.PutSPS(u.Bytes(p.data))
			if err != nil {
				return -1, err
			}
			if changed {
				logger.Infof(d, "Stored %s", sps)
			}
			stored = sps
		case typ == nal.TypePPS:
			pps, changed, err := d.sets.PutPPS(u.Bytes(p.data))
			if err != nil {
				return -1, err
			}
			if changed {
				logger.Infof(d, "Stored %s", pps)
			}
		case nal.IsSlice(typ):
			first = i
			break scan
		}
	}
	if first < 0 {
		if stored != nil {
			d.activate(stored)
			d.state = StateParamsReady
		}
		return -1, nil
	}

	info, err := codec.Peek(p.units[first].Bytes(p.data))
	if err != nil {
		return -1, err
	}
	if p.pps = d.sets.PPS(info.PPSID); p.pps != nil {
		p.sps = d.sets.SPS(p.pps.SPSID)
	}
	if p.sps == nil {
		return -1, fmt.Errorf("%w: slice references PPS %d", twig.ErrNoParameterSets, info.PPSID)
	}
	if err = checkSupported(p.sps, p.pps); err != nil {
		return -1, err
	}
	d.activate(p.sps)
	d.state = StateParamsReady
	return first, nil
}

func checkSupported(sps *codec.SPS, pps *codec.PPS) error {
	switch {
	case sps.ChromaFormatIDC != 1:
		return fmt.Errorf("%w: chroma_format_idc %d", twig.ErrUnsupportedFeature, sps.ChromaFormatIDC)
	case sps.BitDepthLuma > 8 || sps.BitDepthChroma > 8:
		return fmt.Errorf("%w: bit depth %d/%d", twig.ErrUnsupportedFeature, sps.BitDepthLuma, sps.BitDepthChroma)
	case pps.NumSliceGroups > 1:
		logger.Warningf(pps, "Stream uses %d slice groups of map type %d, decoding may fail",
			pps.NumSliceGroups, pps.SliceGroupMapType)
	}
	return nil
}

// activate sizes the pool for sps, tearing it down when the coded size changed.
func (d *Decoder) activate(sps *codec.SPS) {
	w, h := int(sps.Width()), int(sps.Height())
	if w != d.width || h != d.height {
		if d.width > 0 {
			logger.Infof(d, "Resolution change %dx%d -> %dx%d, tearing down frame pool", d.width, d.height, w, h)
		}
		d.pool.Reset()
		d.ref.Reset()
		d.width, d.height = w, h
	}
	d.pool.MaxFrameNum = sps.MaxFrameNum()
}

func (d *Decoder) decodePicture(ctx context.Context, p *picture, first int) (*Picture, error) {
	var err error
	if p.frame, err = d.pool.Acquire(d.dev, d.width, d.height, p.sps.PicWidthInMbs); err != nil {
		return nil, d.fail(-1, "acquire", err)
	}
	if d.extra == nil {
		if d.extra, err = d.dev.Alloc(extraBufSize); err != nil {
			d.extra = nil
			return nil, d.fail(-1, "acquire", err)
		}
	}
	if err = p.buf.Flush(); err != nil {
		return nil, d.fail(-1, "acquire", err)
	}
	d.state = StateFrameAcquired

	programAuxBuffers(d.regs, p.sps, twig.DeviceAddr(d.extra), twig.DeviceAddr(p.frame.Extra))
	scaling := codec.ResolveScalingLists(p.sps, p.pps)
	p.defaultScaling = scaling.Default
	if !scaling.Default {
		writeScalingLists(d.regs, &scaling)
	}
	d.regs.Write32(regs.H264Ctrl, regs.CtrlMCRICache)
	d.state = StateSlicesPending

	for i := first; i < len(p.units); i++ {
		u := p.units[i]
		typ := u.Type(p.data)
		if !nal.IsSlice(typ) {
			if typ == nal.TypeSPS || typ == nal.TypePPS {
				logger.Warningf(d, "Ignoring %d units after the first picture", len(p.units)-i)
				break
			}
			continue
		}
		if p.slices > 0 && firstMbZero(p.data, u) {
			logger.Warningf(d, "Ignoring %d units after the first picture", len(p.units)-i)
			break
		}
		if err = ctx.Err(); err != nil {
			return nil, d.fail(p.slices, "slice", err)
		}
		if err = d.decodeSlice(p, u); err != nil {
			return nil, d.fail(p.slices, "slice", err)
		}
		p.slices++
		d.state = StateSlicesPending
	}

	return d.complete(p)
}

// firstMbZero reports whether u starts with first_mb_in_slice equal to zero.
func firstMbZero(data []byte, u nal.Unit) bool {
	info, err := codec.Peek(u.Bytes(data))
	return err == nil && info.FirstMbInSlice == 0
}

func (d *Decoder) decodeSlice(p *picture, u nal.Unit) error {
	d.state = StateSliceDecoding
	hdr, err := d.readHeader(p, u)
	if err != nil {
		return err
	}
	if hdr.FieldPic {
		return fmt.Errorf("%w: field pictures", twig.ErrUnsupportedFeature)
	}
	if hdr.SPS != p.sps {
		return fmt.Errorf("%w: slice switches SPS inside a picture", twig.ErrMalformedSliceHeader)
	}

	if p.first == nil {
		if err = d.startPicture(p, hdr); err != nil {
			return err
		}
	}

	// Adaptive marking runs once per picture, before its reference lists are built.
	if p.slices == 0 && hdr.IsReference() && !hdr.IsIDR() && hdr.AdaptiveRefPicMarking {
		p.mmcoReset = ExecuteMMCO(d.pool, hdr.MMCO, p.frame, hdr.FrameNum)
		d.pool.Prune(p.frame)
	}

	if !hdr.SliceType.IsIntra() {
		l0, l1 := BuildRefLists(d.pool, hdr.SliceType, p.poc)
		l0, l1 = withoutSlot(l0, p.frame.Index), withoutSlot(l1, p.frame.Index)
		l0, missing := ModifyRefList(d.pool, l0, hdr.ModificationsL0, hdr.FrameNum, int(hdr.NumRefIdxL0Active))
		writeRefList(d.regs, regs.SRAMRefList0, l0)
		if hdr.SliceType == codec.SliceB {
			var m int
			l1, m = ModifyRefList(d.pool, l1, hdr.ModificationsL1, hdr.FrameNum, int(hdr.NumRefIdxL1Active))
			missing += m
			writeRefList(d.regs, regs.SRAMRefList1, l1)
		}
		if missing > 0 {
			logger.Warningf(d, "Slice %d: %d reference list modifications name missing pictures", p.slices, missing)
		}
	}
	if hdr.PredWeight != nil {
		writePredWeights(d.regs, hdr.PredWeight)
	}

	d.regs.Write32(regs.H264SeqHdr, seqHeader(p.sps))
	d.regs.Write32(regs.H264PicHdr, picHeader(p.pps))
	d.regs.Write32(regs.H264SliceHdr, sliceHeader(hdr))
	d.regs.Write32(regs.H264SliceHdr2, sliceHeader2(hdr))
	d.regs.Write32(regs.H264QP, qpRegister(hdr, p.defaultScaling))

	logger.Tracef(d, "Slice %d: type %s first_mb %d frame_num %d qp %d",
		p.slices, hdr.SliceType, hdr.FirstMbInSlice, hdr.FrameNum, hdr.QP())
	return d.runSlice()
}

// withoutSlot drops the decode target, which long-term marking may have added, from a list.
func withoutSlot(list []int, slot int) []int {
	return slices.DeleteFunc(list, func(i int) bool { return i == slot })
}

// readHeader parses the slice header and leaves the engine's bit reader at the
// first bit of the slice data.
func (d *Decoder) readHeader(p *picture, u nal.Unit) (*codec.SliceHeader, error) {
	addr := twig.DeviceAddr(p.buf)
	headerBit := (u.Header + 1) * 8 //nolint:mnd

	if d.cfg.HeaderMode == HeaderSoftware {
		payload := p.data[u.Header+1 : u.End]
		hdr, err := codec.ParseSliceHeader(bitreader.NewNALReader(payload), p.data[u.Header], &d.sets)
		if err != nil {
			return nil, err
		}
		if err = d.vld.Load(addr, u.End, headerBit+nal.RawOffset(payload, hdr.HeaderBits)); err != nil {
			return nil, err
		}
		return hdr, nil
	}

	if err := d.vld.Load(addr, u.End, headerBit); err != nil {
		return nil, err
	}
	return codec.ParseSliceHeader(d.vld, p.data[u.Header], &d.sets)
}

// startPicture derives the picture order count from the first slice and loads
// the frame buffer list.
func (d *Decoder) startPicture(p *picture, hdr *codec.SliceHeader) error {
	poc, err := codec.ComputePOC(p.sps, hdr, &d.ref)
	if err != nil {
		return err
	}
	p.first, p.poc = hdr, poc

	prev := d.pool.PrevFrameNum
	if !hdr.IsIDR() && prev >= 0 && hdr.FrameNum != uint32(prev) && //nolint:gosec
		hdr.FrameNum != (uint32(prev)+1)%d.pool.MaxFrameNum { //nolint:gosec
		logger.Warningf(d, "Gap in frame_num: %d after %d", hdr.FrameNum, prev)
	}

	p.frame.POC = poc
	p.frame.FrameNum = int32(hdr.FrameNum) //nolint:gosec
	writeFrameBufferList(d.regs, d.pool, p.frame, d.width*d.height)
	d.regs.Write32(regs.H264OutputFrameIndex, uint32(p.frame.Index)) //nolint:gosec
	return nil
}

// runSlice starts the decode of one programmed slice and waits for it.
func (d *Decoder) runSlice() error {
	d.regs.Write32(regs.H264Status, d.regs.Read32(regs.H264Status))
	regs.Set(d.regs, regs.H264Ctrl, regs.CtrlIntEnable)
	d.regs.Write32(regs.H264Trigger, regs.TriggerDecodeSlice)

	err := d.dev.WaitDecode(d.cfg.DecodeTimeout)
	status := d.regs.Read32(regs.H264Status)
	d.regs.Write32(regs.H264Status, status)
	if err != nil {
		return err
	}
	if status&regs.StatusError != 0 {
		return fmt.Errorf("%w: status %#x, error register %#x",
			twig.ErrHardwareError, status, d.regs.Read32(regs.H264Error))
	}
	return nil
}

// complete adds the decoded picture to the reference sets and hands it out.
func (d *Decoder) complete(p *picture) (*Picture, error) {
	if p.first == nil {
		return nil, d.fail(-1, "complete", fmt.Errorf("%w: no slice decoded", twig.ErrMalformedSliceHeader))
	}
	d.state = StateComplete
	hdr, f := p.first, p.frame

	reset := false
	if hdr.IsReference() {
		switch {
		case hdr.IsIDR():
			d.pool.UnrefAll()
			if hdr.LongTermReference {
				d.pool.MaxLongTermFrameIdx = 0
				d.pool.AddLongTermRef(f, 0)
			} else {
				d.pool.AddShortTermRef(f)
			}
		case hdr.AdaptiveRefPicMarking:
			reset = p.mmcoReset
			if !f.IsLongTerm {
				d.pool.AddShortTermRef(f)
			}
		default:
			d.pool.SlidingWindow(p.sps.MaxNumRefFrames)
			d.pool.AddShortTermRef(f)
		}
		if reset {
			f.FrameNum, f.POC = 0, 0
		}
		d.pool.PrevFrameNum = f.FrameNum
	}
	d.ref.Update(p.sps, hdr, p.poc, reset)
	d.pool.Prune(f)
	f.State = FrameAppHeld
	d.state = StateIdle

	if err := p.buf.Flush(); err != nil {
		logger.Warningf(d, "Flushing input buffer: %v", err)
	}

	pic := &Picture{
		Buffer:    f.Buffer,
		Index:     f.Index,
		Width:     d.width,
		Height:    d.height,
		Crop:      p.sps.CropRect(),
		POC:       f.POC,
		FrameNum:  f.FrameNum,
		IDR:       hdr.IsIDR(),
		Reference: f.IsReference,
		Slices:    p.slices,
	}
	if d.obs != nil {
		d.obs.FrameDecoded(pic, time.Since(p.start))
	}
	return pic, nil
}

// fail resets the sequencer and wraps err with the failing stage.
func (d *Decoder) fail(slice int, op string, err error) error {
	d.state = StateIdle
	if errors.Is(err, twig.ErrHardwareTimeout) || errors.Is(err, twig.ErrHardwareError) {
		logger.Errorf(d, "%s: %v", op, err)
	} else {
		logger.Debugf(d, "%s: %v", op, err)
	}
	if d.obs != nil {
		d.obs.DecodeFailed(err)
	}
	return &twig.DecodeError{Op: op, Slice: slice, Err: err}
}

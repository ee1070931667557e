// Package decoder runs an H.264 decoder on its own goroutine behind packet and
// frame channels.
package decoder

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ugparu/twig"
	codec "github.com/ugparu/twig/codec/h264"
	"github.com/ugparu/twig/decoder/h264"
	"github.com/ugparu/twig/utils/buffer"
	"github.com/ugparu/twig/utils/lifecycle"
	"github.com/ugparu/twig/utils/logger"
	"github.com/ugparu/twig/utils/nal"
)

// Packet is one access unit.
type Packet struct {
	// Data is Annex-B, or length prefixed once a configuration record was seen.
	Data []byte
	// Extradata is an avcC record. A record different from the current one
	// switches input to length prefixed units and feeds its parameter sets.
	Extradata []byte
	Timestamp time.Duration
}

// Frame is a decoded picture on its way to the application. Release must be
// called once the picture is no longer read.
type Frame struct {
	*h264.Picture
	Timestamp time.Duration

	ret  chan<- *h264.Picture
	done <-chan struct{}
	once sync.Once
}

// Release hands the picture back to the decoder. Frames of a closed stream are ignored.
func (f *Frame) Release() {
	f.once.Do(func() {
		select {
		case f.ret <- f.Picture:
		case <-f.done:
		}
	})
}

// Stream owns one h264.Decoder and feeds it from a packet channel.
type Stream struct {
	manager *lifecycle.Manager[*Stream]
	dev     twig.Device
	cfg     h264.Config
	obs     h264.Observer
	dec     *h264.Decoder

	inpPktCh chan Packet
	outFrmCh chan *Frame
	retCh    chan *h264.Picture
	errCh    chan error
	fpsChan  chan int

	extradata  []byte
	lengthSize int    // Zero for Annex-B input.
	prefix     []byte // Parameter sets of a new record, sent before the next unit.

	frameDuration time.Duration
	lastFrameTime time.Time
	hasKey        bool
}

// NewStream returns a stream decoding on dev. fps limits how often pictures are
// emitted, zero emits every picture. obs may be nil.
func NewStream(dev twig.Device, cfg h264.Config, obs h264.Observer, chanSize, fps int) *Stream {
	s := &Stream{
		dev:           dev,
		cfg:           cfg,
		obs:           obs,
		inpPktCh:      make(chan Packet, chanSize),
		outFrmCh:      make(chan *Frame, chanSize),
		retCh:         make(chan *h264.Picture, h264.MaxFramePoolSize),
		errCh:         make(chan error, chanSize),
		fpsChan:       make(chan int, 1),
		frameDuration: DurationFromFPS(fps),
	}
	s.manager = lifecycle.New(s, lifecycle.ContinueOnError, s.report)
	return s
}

// Decode creates the decoder and starts the decoding goroutine.
func (s *Stream) Decode() error {
	return s.manager.Start(func(s *Stream) (err error) {
		s.dec, err = h264.New(s.dev, s.cfg, s.obs)
		return err
	})
}

// Step takes one packet, one returned picture or one rate change.
func (s *Stream) Step(stopCh <-chan struct{}) error {
	select {
	case <-stopCh:
		logger.Debug(s, "Close signal detected. Breaking decoding...")
		return &lifecycle.BreakError{}
	case pic := <-s.retCh:
		s.dec.ReturnPicture(pic)
	case fps := <-s.fpsChan:
		s.frameDuration = DurationFromFPS(fps)
		logger.Infof(s, "Output limited to %d fps", fps)
	case pkt, ok := <-s.inpPktCh:
		if !ok {
			return &lifecycle.BreakError{}
		}
		return s.processPacket(pkt, stopCh)
	}
	return nil
}

func (s *Stream) processPacket(pkt Packet, stopCh <-chan struct{}) error {
	logger.Tracef(s, "Processing packet of %d bytes at %v", len(pkt.Data), pkt.Timestamp)

	if pkt.Extradata != nil && !bytes.Equal(pkt.Extradata, s.extradata) {
		if err := s.setExtradata(pkt.Extradata); err != nil {
			return err
		}
	}

	au, err := s.annexB(pkt.Data)
	if err != nil {
		return err
	}
	defer au.Release()
	data := au.Data()

	if !s.hasKey {
		if hasSlice, idr := scanSlices(data); hasSlice && !idr {
			logger.Tracef(s, "Skipping non-key packet at %v", pkt.Timestamp)
			return nil
		}
	}

	s.drainReturns()

	ctx, cancel := stopContext(stopCh)
	defer cancel()

	pic, err := s.dec.DecodeBytes(ctx, data)
	if err != nil {
		s.hasKey = false
		return err
	}
	if pic == nil {
		return nil
	}
	s.hasKey = true

	if s.frameDuration > 0 && time.Since(s.lastFrameTime) < s.frameDuration-frameSlack {
		logger.Tracef(s, "Dropping picture %d due to fps limit", pic.POC)
		s.dec.ReturnPicture(pic)
		return nil
	}
	s.lastFrameTime = time.Now()

	frm := &Frame{Picture: pic, Timestamp: pkt.Timestamp, ret: s.retCh, done: s.manager.Done()}
	select {
	case <-stopCh:
		s.dec.ReturnPicture(pic)
		return &lifecycle.BreakError{}
	case s.outFrmCh <- frm:
		logger.Tracef(s, "Sent picture %d", pic.POC)
		return nil
	}
}

const frameSlack = 10 * time.Millisecond

func (s *Stream) setExtradata(extradata []byte) error {
	par, err := codec.NewCodecDataFromAVCDecoderConfRecord(extradata)
	if err != nil {
		return fmt.Errorf("decoder: extradata: %w", err)
	}
	logger.Infof(s, "Changing configuration record to %s %dx%d", par.Tag(), par.Width(), par.Height())

	s.extradata = bytes.Clone(extradata)
	s.lengthSize = par.RecordInfo.LengthSize()
	s.prefix = par.AnnexB()
	s.hasKey = false
	return nil
}

// annexB assembles data as a start code stream with pending parameter sets in
// front. The caller releases the returned buffer.
func (s *Stream) annexB(data []byte) (buffer.PooledBuffer, error) {
	units := [][]byte{data}
	size := len(s.prefix) + len(data)
	if s.lengthSize > 0 {
		var err error
		if units, err = nal.SplitAVCC(data, s.lengthSize); err != nil {
			return nil, fmt.Errorf("decoder: packet: %w", err)
		}
		size = len(s.prefix)
		for _, u := range units {
			size += startCodeLen + len(u)
		}
	}

	au := buffer.Get(size)
	// size is exact, so out fills au in place.
	out := append(au.Data()[:0], s.prefix...)
	for _, u := range units {
		if s.lengthSize > 0 {
			out = nal.AppendAnnexB(out, u)
		} else {
			out = append(out, u...)
		}
	}
	s.prefix = nil
	return au, nil
}

const startCodeLen = 4

// scanSlices reports whether data carries a slice and whether one of them is IDR.
func scanSlices(data []byte) (hasSlice, idr bool) {
	for _, u := range nal.FindUnits(data) {
		typ := u.Type(data)
		if nal.IsSlice(typ) {
			hasSlice = true
		}
		if typ == nal.TypeIDR {
			return true, true
		}
	}
	return hasSlice, false
}

func (s *Stream) drainReturns() {
	for {
		select {
		case pic := <-s.retCh:
			s.dec.ReturnPicture(pic)
		default:
			return
		}
	}
}

// stopContext returns a context canceled when stopCh closes.
func stopContext(stopCh <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func (s *Stream) report(err error) {
	select {
	case s.errCh <- err:
	default:
		logger.Debugf(s, "Error channel full, dropping %v", err)
	}
}

// Close stops decoding and releases the decoder. Unreleased frames become invalid.
func (s *Stream) Close() {
	s.manager.Close()
}

// Release frees the decoder once the loop has exited.
func (s *Stream) Release() {
	if s.dec != nil {
		if err := s.dec.Close(); err != nil {
			logger.Warningf(s, "Closing decoder: %v", err)
		}
	}
	close(s.outFrmCh)
	close(s.errCh)
}

func (s *Stream) String() string {
	return fmt.Sprintf("H264_STREAM length_size=%d", s.lengthSize)
}

// Packets accepts access units. Closing it ends decoding once queued packets are done.
func (s *Stream) Packets() chan<- Packet {
	return s.inpPktCh
}

// Done is closed when the decoding goroutine has exited.
func (s *Stream) Done() <-chan struct{} {
	return s.manager.Done()
}

// Frames delivers decoded pictures. It is closed by Close.
func (s *Stream) Frames() <-chan *Frame {
	return s.outFrmCh
}

// Errors delivers decode errors. Errors are dropped while the channel is full.
func (s *Stream) Errors() <-chan error {
	return s.errCh
}

// FPS changes the output rate limit.
func (s *Stream) FPS() chan<- int {
	return s.fpsChan
}

func DurationFromFPS(fps int) time.Duration {
	if fps > 0 {
		return time.Duration(1000/fps) * time.Millisecond //nolint:mnd // 1000ms in a second
	}
	return 0
}

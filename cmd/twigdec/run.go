package main

import (
	"bufio"
	"context"
	"fmt"
	"image/png"
	"os"
	"sync"

	"golang.org/x/image/draw"

	"github.com/ugparu/twig"
	"github.com/ugparu/twig/decoder"
	"github.com/ugparu/twig/decoder/h264"
	"github.com/ugparu/twig/frame/yuv"
	"github.com/ugparu/twig/utils/logger"
	"github.com/ugparu/twig/utils/nal"
)

const (
	defaultPreviewWidth = 320
	queueSize           = 8
)

type options struct {
	input        string
	output       string
	preview      string
	previewWidth int
	maxFrames    int
	fps          int
	listen       string
}

// summary is the outcome of one run, also served on /status.
type summary struct {
	AccessUnits int    `json:"access_units"`
	Frames      int    `json:"frames"`
	Errors      int    `json:"errors"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	LastError   string `json:"last_error,omitempty"`
}

type status struct {
	mu  sync.Mutex
	sum summary
}

func (s *status) update(fn func(*summary)) {
	s.mu.Lock()
	fn(&s.sum)
	s.mu.Unlock()
}

func (s *status) get() summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sum
}

// run decodes opts.input on dev and writes the requested outputs.
func run(ctx context.Context, dev twig.Device, cfg h264.Config, obs h264.Observer, st *status, opts options) (summary, error) {
	data, err := os.ReadFile(opts.input)
	if err != nil {
		return summary{}, err
	}
	aus := nal.SplitAccessUnits(data)
	st.update(func(s *summary) { s.AccessUnits = len(aus) })
	logger.Infof(tag, "Read %d access units from %s", len(aus), opts.input)

	var out *bufio.Writer
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return summary{}, err
		}
		defer f.Close()
		out = bufio.NewWriter(f)
		defer out.Flush()
	}

	stream := decoder.NewStream(dev, cfg, obs, queueSize, opts.fps)
	if err = stream.Decode(); err != nil {
		stream.Close()
		return summary{}, err
	}
	defer stream.Close()

	feedCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go feed(feedCtx, stream, aus)

	handle := func(frm *decoder.Frame) error {
		defer frm.Release()
		img, err := yuv.FromPicture(frm.Picture)
		if err != nil {
			return err
		}
		var frames int
		st.update(func(s *summary) {
			s.Frames++
			s.Width, s.Height = img.Bounds().Dx(), img.Bounds().Dy()
			frames = s.Frames
		})
		if out != nil {
			if _, err = img.WriteTo(out); err != nil {
				return fmt.Errorf("writing %s: %w", opts.output, err)
			}
		}
		if frames == 1 && opts.preview != "" {
			if err = writePreview(opts.preview, img, opts.previewWidth); err != nil {
				return err
			}
		}
		return nil
	}
	limitReached := func() bool {
		return opts.maxFrames > 0 && st.get().Frames >= opts.maxFrames
	}

	onError := func(err error) {
		logger.Warningf(tag, "Decode error: %v", err)
		st.update(func(s *summary) { s.Errors++; s.LastError = err.Error() })
	}

	for {
		select {
		case <-feedCtx.Done():
			return st.get(), ctx.Err()
		case err := <-stream.Errors():
			onError(err)
		case frm := <-stream.Frames():
			if err = handle(frm); err != nil {
				return st.get(), err
			}
			if limitReached() {
				return st.get(), nil
			}
		case <-stream.Done():
			// Queued results of the last packets.
			for {
				select {
				case err := <-stream.Errors():
					onError(err)
				case frm := <-stream.Frames():
					if err = handle(frm); err != nil {
						return st.get(), err
					}
					if limitReached() {
						return st.get(), nil
					}
				default:
					return st.get(), nil
				}
			}
		}
	}
}

func feed(ctx context.Context, stream *decoder.Stream, aus [][]byte) {
	for _, au := range aus {
		select {
		case <-ctx.Done():
			return
		case stream.Packets() <- decoder.Packet{Data: au}:
		}
	}
	close(stream.Packets())
}

func writePreview(path string, img *yuv.NV12, width int) error {
	b := img.Bounds()
	thumb := yuv.Thumbnail(img, width, b.Dy()*width/max(b.Dx(), 1), draw.CatmullRom)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err = png.Encode(f, thumb); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

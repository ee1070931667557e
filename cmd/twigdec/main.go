// Command twigdec decodes an H.264 elementary stream on the Cedar video engine.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ugparu/twig/decoder/h264"
	"github.com/ugparu/twig/hw/cedar"
	"github.com/ugparu/twig/metrics"
	"github.com/ugparu/twig/utils/logger"
)

const tag = "TWIGDEC"

func main() {
	var opts options
	var configPath, logLevel, headerMode string
	var devicePath string
	var freq int

	flag.StringVar(&opts.input, "in", "", "Annex-B H.264 elementary stream to decode")
	flag.StringVar(&opts.output, "out", "", "write decoded pictures as raw NV12 to this file")
	flag.StringVar(&opts.preview, "preview", "", "write a PNG preview of the first picture to this file")
	flag.IntVar(&opts.previewWidth, "preview-width", defaultPreviewWidth, "preview width in pixels")
	flag.IntVar(&opts.maxFrames, "frames", 0, "stop after this many pictures, 0 decodes everything")
	flag.IntVar(&opts.fps, "fps", 0, "limit output pictures per second, 0 is unlimited")
	flag.StringVar(&opts.listen, "listen", "", "serve /metrics, /status and /debug/pprof on this address")
	flag.StringVar(&configPath, "config", "", "YAML decoder configuration")
	flag.StringVar(&headerMode, "header-mode", "", "override slice header parsing: hardware or software")
	flag.StringVar(&devicePath, "device", cedar.DevicePath, "video engine device node")
	flag.IntVar(&freq, "freq", 0, "engine clock in MHz, 0 keeps the default")
	flag.StringVar(&logLevel, "log", "info", "log level")
	flag.Parse()

	lvl, err := logrus.ParseLevel(logLevel)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.Init(lvl)
	defer logger.Flush()

	if opts.input == "" {
		flag.Usage()
		os.Exit(2) //nolint:mnd
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		logger.Fatalf(tag, "Loading configuration: %v", err)
	}
	if headerMode != "" {
		cfg.HeaderMode = h264.HeaderMode(headerMode)
		if err = cfg.Validate(); err != nil {
			logger.Fatalf(tag, "Invalid -header-mode: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dev, err := cedar.Open(cedar.Options{Path: devicePath, FreqMHz: freq})
	if err != nil {
		logger.Fatalf(tag, "Opening video engine: %v", err)
	}
	defer dev.Close()

	m := metrics.New()
	st := &status{}
	if opts.listen != "" {
		srv := serve(opts.listen, newRouter(m, st))
		defer shutdown(srv)
	}

	sum, err := run(ctx, dev, cfg, m, st, opts)
	if err != nil {
		logger.Errorf(tag, "Decoding %s: %v", opts.input, err)
		return
	}
	logger.Infof(tag, "Decoded %d of %d access units, %d errors, %dx%d",
		sum.Frames, sum.AccessUnits, sum.Errors, sum.Width, sum.Height)

	if opts.listen != "" {
		logger.Infof(tag, "Serving on %s until interrupted", opts.listen)
		<-ctx.Done()
	}
}

func loadConfig(path string) (h264.Config, error) {
	if path == "" {
		return h264.DefaultConfig(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return h264.Config{}, err
	}
	defer f.Close()
	return h264.LoadConfig(f)
}

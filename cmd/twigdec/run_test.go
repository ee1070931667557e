package main

import (
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	codec "github.com/ugparu/twig/codec/h264"
	"github.com/ugparu/twig/codec/h264/h264test"
	"github.com/ugparu/twig/decoder/h264"
	"github.com/ugparu/twig/hw/fake"
	"github.com/ugparu/twig/metrics"
)

var (
	testSPS = h264test.SPSConfig{WidthMbs: 4, HeightMbs: 2, MaxNumRefFrames: 1}
	testPPS = h264test.PPSConfig{}
)

// writeStream writes an IDR followed by n-1 P pictures.
func writeStream(t *testing.T, n int) string {
	t.Helper()
	units := [][]byte{
		h264test.SPS(testSPS), h264test.PPS(testPPS),
		h264test.Slice(testSPS, testPPS, h264test.SliceConfig{IDR: true, RefIDC: 3, Type: codec.SliceI, DataBytes: 8}),
	}
	for i := 1; i < n; i++ {
		fn := uint32(i) //nolint:gosec
		units = append(units, h264test.Slice(testSPS, testPPS, h264test.SliceConfig{
			RefIDC: 2, Type: codec.SliceP, FrameNum: fn, POCLsb: 2 * fn, DataBytes: 8,
		}))
	}
	path := filepath.Join(t.TempDir(), "in.264")
	require.NoError(t, os.WriteFile(path, h264test.AnnexB(units...), 0o600))
	return path
}

func TestRun(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	opts := options{
		input:        writeStream(t, 3),
		output:       filepath.Join(dir, "out.nv12"),
		preview:      filepath.Join(dir, "preview.png"),
		previewWidth: 32,
	}
	dev := fake.NewDevice()
	m := metrics.New()

	sum, err := run(context.Background(), dev, h264.DefaultConfig(), m, &status{}, opts)
	require.NoError(t, err)
	require.Equal(t, summary{AccessUnits: 3, Frames: 3, Width: 64, Height: 32}, sum)
	require.Equal(t, uint64(3), m.FramesDecoded.Load())

	raw, err := os.ReadFile(opts.output)
	require.NoError(t, err)
	require.Len(t, raw, 3*64*32*3/2)

	f, err := os.Open(opts.preview)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	require.Equal(t, 32, img.Bounds().Dx())
	require.Equal(t, 16, img.Bounds().Dy())

	require.Zero(t, dev.Live())
}

func TestRunFrameLimit(t *testing.T) {
	t.Parallel()

	opts := options{input: writeStream(t, 5), maxFrames: 2}
	sum, err := run(context.Background(), fake.NewDevice(), h264.DefaultConfig(), nil, &status{}, opts)
	require.NoError(t, err)
	require.Equal(t, 2, sum.Frames)
}

func TestRunMissingInput(t *testing.T) {
	t.Parallel()

	_, err := run(context.Background(), fake.NewDevice(), h264.DefaultConfig(), nil, &status{},
		options{input: filepath.Join(t.TempDir(), "missing.264")})
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestRouter(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	st := &status{}
	st.update(func(s *summary) { s.Frames, s.Width, s.Height = 7, 1920, 1080 })
	r := newRouter(metrics.New(), st)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, st.get(), got)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "twig_frames_decoded_total")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	cfg, err := loadConfig("")
	require.NoError(t, err)
	require.Equal(t, h264.DefaultConfig(), cfg)

	path := filepath.Join(t.TempDir(), "twig.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pool_size: 4\n"), 0o600))
	cfg, err = loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.PoolSize)
}

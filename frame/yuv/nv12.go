// Package yuv wraps decoded NV12 pictures as images.
package yuv

import (
	"errors"
	"image"
	"image/color"
	"io"

	"golang.org/x/image/draw"

	"github.com/ugparu/twig/decoder/h264"
)

const chromaBytes = 2 // Interleaved Cb and Cr.

var ErrShortBuffer = errors.New("yuv: buffer too short for picture")

// NV12 is a 4:2:0 image with a full resolution luma plane and one interleaved,
// half resolution CbCr plane.
type NV12 struct {
	Y        []byte
	UV       []byte
	YStride  int
	UVStride int
	Rect     image.Rectangle
}

// NewNV12 allocates an image covering r.
func NewNV12(r image.Rectangle) *NV12 {
	w, h := r.Dx(), r.Dy()
	cw, ch := (w+1)/2, (h+1)/2
	return &NV12{
		Y:        make([]byte, w*h),
		UV:       make([]byte, cw*ch*chromaBytes),
		YStride:  w,
		UVStride: cw * chromaBytes,
		Rect:     r,
	}
}

// FromPicture views the cropped area of pic without copying. The view is valid
// until the picture is returned to its decoder.
func FromPicture(pic *h264.Picture) (*NV12, error) {
	if pic.Buffer.Size() < pic.Width*pic.Height*3/2 {
		return nil, ErrShortBuffer
	}
	full := &NV12{
		Y:        pic.Luma(),
		UV:       pic.Chroma(),
		YStride:  pic.Width,
		UVStride: pic.Width,
		Rect:     image.Rect(0, 0, pic.Width, pic.Height),
	}
	crop := pic.Crop
	if crop.Empty() {
		return full, nil
	}
	sub, _ := full.SubImage(crop).(*NV12)
	return sub, nil
}

func (*NV12) ColorModel() color.Model {
	return color.YCbCrModel
}

func (p *NV12) Bounds() image.Rectangle {
	return p.Rect
}

func (*NV12) Opaque() bool {
	return true
}

// YOffset returns the index of the luma sample of (x, y).
func (p *NV12) YOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.YStride + (x - p.Rect.Min.X)
}

// UVOffset returns the index of the Cb sample covering (x, y). Cr follows it.
func (p *NV12) UVOffset(x, y int) int {
	return (y/2-p.Rect.Min.Y/2)*p.UVStride + (x/2-p.Rect.Min.X/2)*chromaBytes
}

func (p *NV12) At(x, y int) color.Color {
	return p.YCbCrAt(x, y)
}

func (p *NV12) YCbCrAt(x, y int) color.YCbCr {
	if !(image.Point{x, y}.In(p.Rect)) {
		return color.YCbCr{}
	}
	yi, ci := p.YOffset(x, y), p.UVOffset(x, y)
	return color.YCbCr{Y: p.Y[yi], Cb: p.UV[ci], Cr: p.UV[ci+1]}
}

// SubImage shares the planes of p. Odd origins keep the chroma siting of p.
func (p *NV12) SubImage(r image.Rectangle) image.Image {
	r = r.Intersect(p.Rect)
	if r.Empty() {
		return &NV12{Rect: r}
	}
	yi := p.YOffset(r.Min.X, r.Min.Y)
	ci := p.UVOffset(r.Min.X, r.Min.Y)
	return &NV12{
		Y:        p.Y[yi:],
		UV:       p.UV[ci:],
		YStride:  p.YStride,
		UVStride: p.UVStride,
		Rect:     r,
	}
}

// YCbCr copies p into a planar 4:2:0 image.
func (p *NV12) YCbCr() *image.YCbCr {
	r := p.Rect
	out := image.NewYCbCr(r, image.YCbCrSubsampleRatio420)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		copy(out.Y[out.YOffset(r.Min.X, y):], p.Y[p.YOffset(r.Min.X, y):][:r.Dx()])
	}
	for cy := r.Min.Y / 2; cy < (r.Max.Y+1)/2; cy++ {
		for cx := r.Min.X / 2; cx < (r.Max.X+1)/2; cx++ {
			ci := p.UVOffset(cx*2, cy*2)
			oi := out.COffset(cx*2, cy*2)
			out.Cb[oi] = p.UV[ci]
			out.Cr[oi] = p.UV[ci+1]
		}
	}
	return out
}

// WriteTo writes the visible area as raw NV12: luma rows, then CbCr rows.
func (p *NV12) WriteTo(w io.Writer) (n int64, err error) {
	r := p.Rect
	write := func(b []byte) {
		if err != nil {
			return
		}
		var m int
		m, err = w.Write(b)
		n += int64(m)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		i := p.YOffset(r.Min.X, y)
		write(p.Y[i : i+r.Dx()])
	}
	cw := (r.Max.X+1)/2 - r.Min.X/2
	for cy := r.Min.Y / 2; cy < (r.Max.Y+1)/2; cy++ {
		i := p.UVOffset(r.Min.X, cy*2)
		write(p.UV[i : i+cw*chromaBytes])
	}
	return n, err
}

// Thumbnail scales img to fit within width by height, keeping its aspect ratio.
func Thumbnail(img image.Image, width, height int, scaler draw.Scaler) *image.RGBA {
	b := img.Bounds()
	if b.Empty() || width <= 0 || height <= 0 {
		return image.NewRGBA(image.Rectangle{})
	}
	w, h := width, b.Dy()*width/b.Dx()
	if h > height {
		w, h = b.Dx()*height/b.Dy(), height
	}
	dst := image.NewRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))
	if scaler == nil {
		scaler = draw.ApproxBiLinear
	}
	scaler.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Package bits reads H.264 syntax elements: fixed-width fields and Exp-Golomb codes.
package bits

import (
	"errors"
	"math/bits"

	"github.com/ugparu/twig/utils/nal"
)

var (
	// ErrInsufficientData is returned when a read asks for more bits than remain, or for
	// a width outside 1..32.
	ErrInsufficientData = errors.New("bits: insufficient data")
	// ErrCorruptCode is returned when an Exp-Golomb prefix is longer than 31 zero bits.
	ErrCorruptCode = errors.New("bits: corrupt exp-golomb code")
)

// MaxWidth is the widest field a single read returns.
const MaxWidth = 32

// maxLeadingZeros bounds the Exp-Golomb prefix scan on corrupt data.
const maxLeadingZeros = 31

// Source is the cursor the header parsers consume. It is implemented in software by
// Reader and by the engine's own bitstream reader.
type Source interface {
	GetBits(n int) (uint32, error)
	GetBit() (uint32, error)
	GetUE() (uint32, error)
	GetSE() (int32, error)
	SkipBits(n int) error
	BitPos() int
}

// Reader is a MSB-first bit cursor over an RBSP byte slice.
type Reader struct {
	buf []byte
	pos int
}

// NewReader creates a reader over rbsp, which must already be free of emulation prevention bytes.
func NewReader(rbsp []byte) *Reader {
	return &Reader{buf: rbsp}
}

// NewNALReader creates a reader over the payload of a NAL unit, emulation prevention removed.
func NewNALReader(nalu []byte) *Reader {
	return &Reader{buf: nal.RBSP(nalu)}
}

// BitPos returns the number of bits consumed.
func (r *Reader) BitPos() int {
	return r.pos
}

// SetBitPos moves the cursor to an absolute bit position.
func (r *Reader) SetBitPos(pos int) error {
	if pos < 0 || pos > len(r.buf)*8 {
		return ErrInsufficientData
	}
	r.pos = pos
	return nil
}

// BitsLeft returns the number of unread bits.
func (r *Reader) BitsLeft() int {
	return len(r.buf)*8 - r.pos
}

// Bytes returns the underlying buffer.
func (r *Reader) Bytes() []byte {
	return r.buf
}

// ShowBits returns the next n bits without advancing.
func (r *Reader) ShowBits(n int) (uint32, error) {
	if n <= 0 || n > MaxWidth || n > r.BitsLeft() {
		return 0, ErrInsufficientData
	}
	var v uint64
	pos := r.pos
	for need := n; need > 0; {
		byteIdx := pos >> 3
		bitOff := pos & 7
		avail := 8 - bitOff
		take := min(avail, need)
		chunk := uint64(r.buf[byteIdx]>>(avail-take)) & (1<<take - 1)
		v = v<<take | chunk
		need -= take
		pos += take
	}
	return uint32(v), nil //nolint:gosec // n <= 32
}

// GetBits returns the next n bits and advances the cursor.
func (r *Reader) GetBits(n int) (uint32, error) {
	v, err := r.ShowBits(n)
	if err != nil {
		return 0, err
	}
	r.pos += n
	return v, nil
}

// GetBit returns the next bit.
func (r *Reader) GetBit() (uint32, error) {
	return r.GetBits(1)
}

// GetFlag returns the next bit as a bool.
func (r *Reader) GetFlag() (bool, error) {
	v, err := r.GetBits(1)
	return v == 1, err
}

// SkipBits advances the cursor by n bits.
func (r *Reader) SkipBits(n int) error {
	if n < 0 || n > r.BitsLeft() {
		return ErrInsufficientData
	}
	r.pos += n
	return nil
}

// ByteAlign advances the cursor to the next byte boundary.
func (r *Reader) ByteAlign() {
	if rem := r.pos & 7; rem != 0 {
		r.pos = min(r.pos+8-rem, len(r.buf)*8)
	}
}

// GetUE reads an unsigned Exp-Golomb code.
func (r *Reader) GetUE() (uint32, error) {
	zeros := 0
	for {
		b, err := r.GetBit()
		if err != nil {
			return 0, err
		}
		if b == 1 {
			break
		}
		zeros++
		if zeros > maxLeadingZeros {
			return 0, ErrCorruptCode
		}
	}
	if zeros == 0 {
		return 0, nil
	}
	suffix, err := r.GetBits(zeros)
	if err != nil {
		return 0, err
	}
	return uint32(1)<<zeros - 1 + suffix, nil
}

// GetSE reads a signed Exp-Golomb code.
func (r *Reader) GetSE() (int32, error) {
	k, err := r.GetUE()
	if err != nil {
		return 0, err
	}
	return UEToSE(k), nil
}

// UEToSE applies the signed Exp-Golomb mapping to a decoded ue(v) value.
func UEToSE(k uint32) int32 {
	v := int64(k)
	if v&1 == 1 {
		return int32((v + 1) / 2) //nolint:gosec
	}
	return int32(-(v / 2)) //nolint:gosec
}

// MoreRBSPData reports whether syntax data remains before the rbsp_stop_one_bit.
func (r *Reader) MoreRBSPData() bool {
	last := len(r.buf) - 1
	for last >= 0 && r.buf[last] == 0 {
		last--
	}
	if last < 0 {
		return false
	}
	stopBit := last*8 + 7 - bits.TrailingZeros8(r.buf[last])
	return r.pos < stopBit
}

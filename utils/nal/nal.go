package nal

import (
	"errors"

	"github.com/ugparu/twig/utils/bits/pio"
)

// Constants for different NALU (Network Abstraction Layer Unit) formats.
const (
	naluRaw    = iota // Raw NALU format.
	naluAVCC          // AVCC NALU format.
	naluANNEXB        // ANNEXB NALU format.
)

// MinNaluSize is the minimum size of a Network Abstraction Layer Unit (NALU).
const MinNaluSize = 4

// H.264 NAL unit types.
const (
	TypeSlice     = 1
	TypeSliceA    = 2
	TypeIDR       = 5
	TypeSEI       = 6
	TypeSPS       = 7
	TypePPS       = 8
	TypeAUD       = 9
	TypeEndSeq    = 10
	TypeEndStream = 11
	TypeFiller    = 12
)

const (
	typeMask   = 0x1f
	refIDCMask = 0x03
	refIDCPos  = 5
)

var ErrBadLength = errors.New("nal: length prefix exceeds buffer")

// Type returns nal_unit_type from a NAL header byte.
func Type(header byte) int {
	return int(header & typeMask)
}

// RefIDC returns nal_ref_idc from a NAL header byte.
func RefIDC(header byte) int {
	return int(header>>refIDCPos) & refIDCMask
}

// IsSlice reports whether typ carries coded slice data the engine decodes.
func IsSlice(typ int) bool {
	return typ == TypeSlice || typ == TypeIDR
}

// isStartCode checks if there's a NALU start code (0x000001 or 0x00000001) at the given position
// and returns the type of start code found (3-byte or 4-byte) and whether a start code was found.
func isStartCode(b []byte, pos int) (startCodeLength int, found bool) {
	if pos+2 >= len(b) || b[pos] != 0 {
		return 0, false
	}

	val3 := pio.U24BE(b[pos:])
	if val3 == 1 {
		return 3, true //nolint:mnd
	}

	if val3 == 0 && pos+3 < len(b) && b[pos+3] == 1 {
		return 4, true //nolint:mnd
	}

	return 0, false
}

// Unit locates one NAL unit inside an Annex-B buffer.
type Unit struct {
	Start  int // Offset of the first start code byte.
	Header int // Offset of the NAL header byte.
	End    int // Offset one past the last payload byte, trailing zero bytes excluded.
}

// Type returns the unit's nal_unit_type.
func (u Unit) Type(b []byte) int {
	return Type(b[u.Header])
}

// RefIDC returns the unit's nal_ref_idc.
func (u Unit) RefIDC(b []byte) int {
	return RefIDC(b[u.Header])
}

// Bytes returns the NAL unit from its header byte, without start code.
func (u Unit) Bytes(b []byte) []byte {
	return b[u.Header:u.End]
}

// FindUnits returns every NAL unit of an Annex-B buffer with its byte offsets.
// Bytes before the first start code are ignored.
func FindUnits(b []byte) []Unit {
	var units []Unit
	pos := 0
	for pos < len(b) {
		if _, found := isStartCode(b, pos); found {
			break
		}
		pos++
	}
	for pos < len(b) {
		scLen, _ := isStartCode(b, pos)
		u := Unit{Start: pos, Header: pos + scLen}
		next := u.Header
		for next < len(b) {
			if _, found := isStartCode(b, next); found {
				break
			}
			next++
		}
		u.End = next
		for u.End > u.Header && b[u.End-1] == 0 {
			u.End--
		}
		if u.End > u.Header {
			units = append(units, u)
		}
		pos = next
	}
	return units
}

// parseANNEXB parses a byte slice in ANNEXB format and returns the NALUs.
func parseANNEXB(b []byte) [][]byte {
	units := FindUnits(b)
	nalus := make([][]byte, 0, len(units))
	for _, u := range units {
		nalus = append(nalus, u.Bytes(b))
	}
	return nalus
}

// SplitNALUs splits a byte slice into Network Abstraction Layer Units (NALUs)
// based on different formats (Raw, AVCC, or ANNEXB) and returns the NALUs and the format type.
func SplitNALUs(b []byte) (nalus [][]byte, typ int) {
	// If the byte slice is smaller than the minimum NALU size, consider it as a single raw NALU.
	if len(b) < MinNaluSize {
		return [][]byte{b}, naluRaw
	}

	val3 := pio.U24BE(b)
	val4 := pio.U32BE(b)
	if val3 == 1 || val4 == 1 {
		return parseANNEXB(b), naluANNEXB
	}

	if nalus, err := SplitAVCC(b, MinNaluSize); err == nil && len(nalus) > 0 {
		return nalus, naluAVCC
	}

	// If none of the formats match, consider it as a single raw NALU.
	return [][]byte{b}, naluRaw
}

// SplitAVCC splits length-prefixed NAL units with prefixes of lengthSize bytes.
func SplitAVCC(b []byte, lengthSize int) ([][]byte, error) {
	var nalus [][]byte
	for len(b) > 0 {
		if len(b) < lengthSize {
			return nalus, ErrBadLength
		}
		var n uint32
		for i := range lengthSize {
			n = n<<8 | uint32(b[i]) //nolint:mnd
		}
		b = b[lengthSize:]
		if n > uint32(len(b)) { //nolint:gosec
			return nalus, ErrBadLength
		}
		if n > 0 {
			nalus = append(nalus, b[:n])
		}
		b = b[n:]
	}
	return nalus, nil
}

// AVCCToAnnexB rewrites length-prefixed NAL units as a 4-byte start code stream.
func AVCCToAnnexB(dst, b []byte, lengthSize int) ([]byte, error) {
	nalus, err := SplitAVCC(b, lengthSize)
	if err != nil {
		return dst, err
	}
	for _, n := range nalus {
		dst = AppendAnnexB(dst, n)
	}
	return dst, nil
}

// AppendAnnexB appends a 4-byte start code and nalu to dst.
func AppendAnnexB(dst, nalu []byte) []byte {
	dst = append(dst, 0, 0, 0, 1)
	return append(dst, nalu...)
}

package h264

import (
	"fmt"

	"github.com/ugparu/twig/utils/bits/pio"
)

const avcConfigurationVersion = 1

// AVCDecoderConfRecord is the avcC payload of ISO/IEC 14496-15: stream
// profile, NAL length prefix size and the parameter sets in NAL form.
type AVCDecoderConfRecord struct {
	AVCProfileIndication uint8
	ProfileCompatibility uint8
	AVCLevelIndication   uint8
	LengthSizeMinusOne   uint8
	SPS                  [][]byte
	PPS                  [][]byte
}

// Unmarshal parses b and returns the number of bytes consumed. The parameter
// sets alias b. Trailing high profile fields are left unread.
func (avc *AVCDecoderConfRecord) Unmarshal(b []byte) (n int, err error) {
	if len(b) < minAVCRecordSize {
		return 0, ErrDecconfInvalid
	}
	if b[0] != avcConfigurationVersion {
		return 0, fmt.Errorf("%w: version %d", ErrDecconfInvalid, b[0])
	}
	avc.AVCProfileIndication = b[1]
	avc.ProfileCompatibility = b[2]
	avc.AVCLevelIndication = b[3]
	avc.LengthSizeMinusOne = b[4] & maskLengthSizeMinusOne
	if avc.LengthSizeMinusOne == 2 { //nolint:mnd // 3 byte prefixes are not allowed
		return 0, fmt.Errorf("%w: 3 byte NAL lengths", ErrDecconfInvalid)
	}

	if avc.SPS, n, err = readSets(b, 5, maskSPSCount); err != nil { //nolint:mnd
		return n, err
	}
	avc.PPS, n, err = readSets(b, n, 0xff) //nolint:mnd
	return n, err
}

// readSets reads the count byte at off, masked by mask, and that many 16-bit
// length prefixed NAL units.
func readSets(b []byte, off int, mask byte) (sets [][]byte, n int, err error) {
	n = off
	if n >= len(b) {
		return nil, n, fmt.Errorf("%w: missing count at %d", ErrDecconfInvalid, n)
	}
	count := int(b[n] & mask)
	n++
	for i := range count {
		if n+lengthFieldSize > len(b) {
			return nil, n, fmt.Errorf("%w: set %d length truncated", ErrDecconfInvalid, i)
		}
		size := int(pio.U16BE(b[n:]))
		n += lengthFieldSize
		if n+size > len(b) {
			return nil, n, fmt.Errorf("%w: set %d needs %d bytes", ErrDecconfInvalid, i, size)
		}
		sets = append(sets, b[n:n+size:n+size])
		n += size
	}
	return sets, n, nil
}

// LengthSize returns the size in bytes of the NAL unit length prefixes.
func (avc *AVCDecoderConfRecord) LengthSize() int {
	return int(avc.LengthSizeMinusOne) + 1
}

// Len returns the size of the marshaled record.
func (avc *AVCDecoderConfRecord) Len() int {
	n := minAVCRecordSize
	for _, set := range avc.SPS {
		n += lengthFieldSize + len(set)
	}
	for _, set := range avc.PPS {
		n += lengthFieldSize + len(set)
	}
	return n
}

// Marshal writes the record into b, which must hold Len bytes, and returns the bytes written.
func (avc *AVCDecoderConfRecord) Marshal(b []byte) int {
	b[0] = avcConfigurationVersion
	b[1] = avc.AVCProfileIndication
	b[2] = avc.ProfileCompatibility
	b[3] = avc.AVCLevelIndication
	b[4] = avc.LengthSizeMinusOne | maskLengthSizeMinusOneInv
	b[5] = uint8(len(avc.SPS)) | maskSPSCountInv //nolint:gosec // at most 31 sets

	n := writeSets(b, 6, avc.SPS) //nolint:mnd

	b[n] = uint8(len(avc.PPS)) //nolint:gosec // at most 255 sets
	return writeSets(b, n+1, avc.PPS)
}

func writeSets(b []byte, n int, sets [][]byte) int {
	for _, set := range sets {
		pio.PutU16BE(b[n:], uint16(len(set))) //nolint:gosec // NAL units of a record fit 16 bits
		n += lengthFieldSize
		n += copy(b[n:], set)
	}
	return n
}

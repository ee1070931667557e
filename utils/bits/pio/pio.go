// Package pio reads and writes fixed-width integers from byte slices.
package pio

func U8(b []byte) uint8 {
	return b[0]
}

func U16BE(b []byte) uint16 {
	_ = b[1]
	return uint16(b[0])<<8 | uint16(b[1])
}

func U24BE(b []byte) uint32 {
	_ = b[2]
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func U32BE(b []byte) uint32 {
	_ = b[3]
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func U32LE(b []byte) uint32 {
	_ = b[3]
	return uint32(b[3])<<24 | uint32(b[2])<<16 | uint32(b[1])<<8 | uint32(b[0])
}

func PutU8(b []byte, v uint8) {
	b[0] = v
}

func PutU16BE(b []byte, v uint16) {
	_ = b[1]
	b[0] = byte(v >> 8) //nolint:mnd
	b[1] = byte(v)
}

func PutU24BE(b []byte, v uint32) {
	_ = b[2]
	b[0] = byte(v >> 16) //nolint:mnd
	b[1] = byte(v >> 8)  //nolint:mnd
	b[2] = byte(v)
}

func PutU32BE(b []byte, v uint32) {
	_ = b[3]
	b[0] = byte(v >> 24) //nolint:mnd
	b[1] = byte(v >> 16) //nolint:mnd
	b[2] = byte(v >> 8)  //nolint:mnd
	b[3] = byte(v)
}

// PutU32LE stores v little-endian, the byte order of engine SRAM words.
func PutU32LE(b []byte, v uint32) {
	_ = b[3]
	b[0] = byte(v)
	b[1] = byte(v >> 8)  //nolint:mnd
	b[2] = byte(v >> 16) //nolint:mnd
	b[3] = byte(v >> 24) //nolint:mnd
}

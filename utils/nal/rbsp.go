package nal

const emulationPrevention = 0x03

// RBSP returns nalu with every emulation prevention byte (00 00 03) removed.
// The input is returned unchanged when it contains none.
func RBSP(nalu []byte) []byte {
	first := -1
	for i := 2; i < len(nalu); i++ {
		if nalu[i] == emulationPrevention && nalu[i-1] == 0 && nalu[i-2] == 0 {
			first = i
			break
		}
	}
	if first < 0 {
		return nalu
	}

	out := make([]byte, 0, len(nalu))
	out = append(out, nalu[:first]...)
	zeros := 0
	for i := first + 1; i < len(nalu); i++ {
		out = append(out, nalu[i])
		if nalu[i] == 0 {
			zeros++
		} else {
			zeros = 0
		}
		if zeros == 2 && i+1 < len(nalu) && nalu[i+1] == emulationPrevention {
			i++
			zeros = 0
		}
	}
	return out
}

// RawOffset maps a bit position inside RBSP(nalu) back to the bit position inside
// nalu, counting the emulation prevention bytes that precede it.
func RawOffset(nalu []byte, rbspBit int) int {
	target := rbspBit / 8 //nolint:mnd
	raw, rbsp, zeros := 0, 0, 0
	for raw < len(nalu) && rbsp < target {
		if zeros == 2 && nalu[raw] == emulationPrevention {
			raw++
			zeros = 0
			continue
		}
		if nalu[raw] == 0 {
			zeros++
		} else {
			zeros = 0
		}
		raw++
		rbsp++
	}
	if zeros == 2 && raw < len(nalu) && nalu[raw] == emulationPrevention {
		raw++
	}
	return raw*8 + rbspBit%8 //nolint:mnd
}

// Escape inserts emulation prevention bytes so that rbsp contains no start code
// prefix once framed.
func Escape(rbsp []byte) []byte {
	out := make([]byte, 0, len(rbsp)+len(rbsp)/64)
	zeros := 0
	for _, c := range rbsp {
		if zeros == 2 && c <= emulationPrevention {
			out = append(out, emulationPrevention)
			zeros = 0
		}
		out = append(out, c)
		if c == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}

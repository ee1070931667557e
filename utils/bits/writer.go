package bits

// Writer is a MSB-first bit writer. It builds parameter sets and slice headers for
// stream synthesis and tests.
type Writer struct {
	buf  []byte
	nbit int
}

// PutBits appends the low n bits of v.
func (w *Writer) PutBits(v uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		if w.nbit&7 == 0 {
			w.buf = append(w.buf, 0)
		}
		if v>>i&1 == 1 {
			w.buf[len(w.buf)-1] |= 0x80 >> (w.nbit & 7)
		}
		w.nbit++
	}
}

// PutFlag appends one bit.
func (w *Writer) PutFlag(f bool) {
	if f {
		w.PutBits(1, 1)
	} else {
		w.PutBits(0, 1)
	}
}

// PutUE appends v as an unsigned Exp-Golomb code.
func (w *Writer) PutUE(v uint32) {
	x := uint64(v) + 1
	n := 0
	for t := x; t > 1; t >>= 1 {
		n++
	}
	w.PutBits(0, n)
	w.PutBits(uint32(x>>n), 1) //nolint:gosec
	w.PutBits(uint32(x), n)    //nolint:gosec
}

// PutSE appends v as a signed Exp-Golomb code.
func (w *Writer) PutSE(v int32) {
	if v > 0 {
		w.PutUE(uint32(v)*2 - 1) //nolint:gosec
		return
	}
	w.PutUE(uint32(-int64(v) * 2)) //nolint:gosec
}

// PutTrailingBits appends rbsp_trailing_bits.
func (w *Writer) PutTrailingBits() {
	w.PutBits(1, 1)
	for w.nbit&7 != 0 {
		w.PutBits(0, 1)
	}
}

// Len returns the number of bits written.
func (w *Writer) Len() int {
	return w.nbit
}

// Bytes returns the written bytes; a partial last byte is zero padded.
func (w *Writer) Bytes() []byte {
	return w.buf
}

package nal

// firstMbZero is the top payload bit of a slice NAL: first_mb_in_slice is ue(v)
// and a leading 1 codes the value 0.
const firstMbZero = 0x80

// SplitAccessUnits groups the NAL units of an Annex-B buffer into access units and
// returns each one as a sub-slice of b, start codes included.
// A new access unit begins at an access unit delimiter, SPS, PPS or SEI that follows a
// slice, and at a slice whose first_mb_in_slice is 0 when a slice was already seen.
func SplitAccessUnits(b []byte) [][]byte {
	units := FindUnits(b)
	var aus [][]byte
	start := -1
	seenSlice := false
	for _, u := range units {
		typ := u.Type(b)
		boundary := false
		switch {
		case typ == TypeAUD, typ == TypeSPS, typ == TypePPS, typ == TypeSEI,
			typ >= 14 && typ <= 18: //nolint:mnd // prefix, subset SPS and reserved types
			boundary = seenSlice
		case IsSlice(typ):
			payload := u.Bytes(b)[1:]
			boundary = seenSlice && len(payload) > 0 && payload[0]&firstMbZero != 0
		}
		if boundary {
			aus = append(aus, b[start:u.Start])
			start = -1
			seenSlice = false
		}
		if start < 0 {
			start = u.Start
		}
		if IsSlice(typ) {
			seenSlice = true
		}
	}
	if start >= 0 {
		aus = append(aus, b[start:])
	}
	return aus
}

package h264

// Scaling lists are kept in raster order, the layout the engine SRAM expects.

// Default scaling lists of Table 7-3, raster order.
var (
	Default4x4Intra = [16]uint8{
		6, 13, 20, 28,
		13, 20, 28, 32,
		20, 28, 32, 37,
		28, 32, 37, 42,
	}
	Default4x4Inter = [16]uint8{
		10, 14, 20, 24,
		14, 20, 24, 27,
		20, 24, 27, 30,
		24, 27, 30, 34,
	}
	Default8x8Intra = [64]uint8{
		6, 10, 13, 16, 18, 23, 25, 27,
		10, 11, 16, 18, 23, 25, 27, 29,
		13, 16, 18, 23, 25, 27, 29, 31,
		16, 18, 23, 25, 27, 29, 31, 33,
		18, 23, 25, 27, 29, 31, 33, 36,
		23, 25, 27, 29, 31, 33, 36, 38,
		25, 27, 29, 31, 33, 36, 38, 40,
		27, 29, 31, 33, 36, 38, 40, 42,
	}
	Default8x8Inter = [64]uint8{
		9, 13, 15, 17, 19, 21, 22, 24,
		13, 13, 17, 19, 21, 22, 24, 25,
		15, 17, 19, 21, 22, 24, 25, 27,
		17, 19, 21, 22, 24, 25, 27, 28,
		19, 21, 22, 24, 25, 27, 28, 30,
		21, 22, 24, 25, 27, 28, 30, 32,
		22, 24, 25, 27, 28, 30, 32, 33,
		24, 25, 27, 28, 30, 32, 33, 35,
	}
)

var zigzag4x4 = [16]uint8{0, 1, 4, 8, 5, 2, 3, 6, 9, 12, 13, 10, 7, 11, 14, 15}

var zigzag8x8 = [64]uint8{
	0, 1, 8, 16, 9, 2, 3, 10, 17, 24, 32, 25, 18, 11, 4, 5,
	12, 19, 26, 33, 40, 48, 41, 34, 27, 20, 13, 6, 7, 14, 21, 28,
	35, 42, 49, 56, 57, 50, 43, 36, 29, 22, 15, 23, 30, 37, 44, 51,
	58, 59, 52, 45, 38, 31, 39, 46, 53, 60, 61, 54, 47, 55, 62, 63,
}

// default4x4 returns the coded default for 4x4 list i: intra for lists 0 and 3, inter otherwise.
// The engine pairs its built-in tables with list indices this way.
func default4x4(i int) [16]uint8 {
	if i == 0 || i == 3 { //nolint:mnd
		return Default4x4Intra
	}
	return Default4x4Inter
}

// default8x8 returns the coded default for 8x8 list i: even lists are intra.
func default8x8(i int) [64]uint8 {
	if i%2 == 0 {
		return Default8x8Intra
	}
	return Default8x8Inter
}

// ScalingMatrix holds the scaling lists signalled by one SPS or PPS.
// ListPresent indexes the twelve syntax lists: 0..5 are 4x4, 6..11 are 8x8.
type ScalingMatrix struct {
	Present     bool
	ListPresent [12]bool
	List4x4     [6][16]uint8
	List8x8     [6][64]uint8
}

// parseScalingMatrix reads count scaling_list() structures guarded by their present flags.
func parseScalingMatrix(r *fieldReader, m *ScalingMatrix, count int) {
	m.Present = true
	for i := range count {
		m.ListPresent[i] = r.flag()
		if !m.ListPresent[i] {
			continue
		}
		if i < 6 { //nolint:mnd
			m.List4x4[i] = parseScalingList4x4(r, i)
		} else {
			m.List8x8[i-6] = parseScalingList8x8(r, i-6)
		}
	}
}

// scalingDeltas decodes one scaling_list() of size entries into raster positions.
// It reports useDefault when the first delta selects the default matrix.
func scalingDeltas(r *fieldReader, out []uint8, scan []uint8) (useDefault bool) {
	last, next := int32(8), int32(8) //nolint:mnd
	for j := range scan {
		if next != 0 {
			delta := r.seRange("delta_scale", -128, 127) //nolint:mnd
			next = (last + delta + 256) % 256            //nolint:mnd
			if j == 0 && next == 0 {
				return true
			}
		}
		if next != 0 {
			last = next
		}
		out[scan[j]] = uint8(last) //nolint:gosec
	}
	return false
}

func parseScalingList4x4(r *fieldReader, i int) [16]uint8 {
	var l [16]uint8
	if scalingDeltas(r, l[:], zigzag4x4[:]) {
		return default4x4(i)
	}
	return l
}

func parseScalingList8x8(r *fieldReader, i int) [64]uint8 {
	var l [64]uint8
	if scalingDeltas(r, l[:], zigzag8x8[:]) {
		return default8x8(i)
	}
	return l
}

// ScalingLists is the resolved set the engine consumes: six 4x4 and two 8x8 lists.
type ScalingLists struct {
	List4x4 [6][16]uint8
	List8x8 [2][64]uint8
	Default bool // Every signalled list equals its coded default; the engine uses its built-in tables.
}

// ResolveScalingLists picks, for every list, the PPS override, else the SPS override,
// else the coded default.
func ResolveScalingLists(sps *SPS, pps *PPS) ScalingLists {
	var out ScalingLists
	out.Default = true

	spsHas := func(i int) bool { return sps != nil && sps.Scaling.Present && sps.Scaling.ListPresent[i] }
	ppsHas := func(i int) bool {
		if pps == nil || !pps.Scaling.Present || !pps.Scaling.ListPresent[i] {
			return false
		}
		return i < 6 || pps.Transform8x8Mode
	}

	for i := range 6 {
		def := default4x4(i)
		switch {
		case ppsHas(i):
			out.List4x4[i] = pps.Scaling.List4x4[i]
		case spsHas(i):
			out.List4x4[i] = sps.Scaling.List4x4[i]
		default:
			out.List4x4[i] = def
		}
		if out.List4x4[i] != def {
			out.Default = false
		}
	}
	for i := range 2 {
		def := default8x8(i)
		switch {
		case ppsHas(6 + i):
			out.List8x8[i] = pps.Scaling.List8x8[i]
		case spsHas(6 + i):
			out.List8x8[i] = sps.Scaling.List8x8[i]
		default:
			out.List8x8[i] = def
		}
		if out.List8x8[i] != def {
			out.Default = false
		}
	}
	return out
}

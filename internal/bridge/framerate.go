package bridge

import "math"

// knownRates maps the float frame rates camera clips report to exact
// rational forms, covering the NTSC-family rates whose floats would
// otherwise round to the wrong rational.
var knownRates = []struct {
	rate float64
	num  uint32
	den  uint32
}{
	{23.976, 24000, 1001},
	{24.0, 24, 1},
	{25.0, 25, 1},
	{29.97, 30000, 1001},
	{30.0, 30, 1},
	{47.952, 48000, 1001},
	{48.0, 48, 1},
	{50.0, 50, 1},
	{59.94, 60000, 1001},
	{60.0, 60, 1},
	{119.88, 120000, 1001},
	{120.0, 120, 1},
}

// rationalRate converts an engine-reported float frame rate to a rational
// numerator/denominator pair. The first table entry within a 0.05 tolerance
// wins, so rates near an NTSC pair resolve to the fractional form; rates
// matching no entry round to an integer rate.
func rationalRate(fps float64) (num, den uint32) {
	for _, kr := range knownRates {
		if math.Abs(fps-kr.rate) < 0.05 {
			return kr.num, kr.den
		}
	}
	return uint32(math.Round(fps)), 1
}

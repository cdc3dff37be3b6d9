package bridge

import "testing"

func TestRationalRate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		fps float64
		num uint32
		den uint32
	}{
		{23.976, 24000, 1001},
		{23.98, 24000, 1001}, // within tolerance
		{24.0, 24000, 1001},  // 23.976 entry wins first-match
		{24.04, 24, 1},       // past 23.976 tolerance, inside 24.0's
		{25.0, 25, 1},
		{29.97, 30000, 1001},
		{30.0, 30000, 1001}, // 29.97 entry wins first-match
		{59.94, 60000, 1001},
		{60.0, 60, 1}, // 59.94 is 0.06 away, outside tolerance
		{119.88, 120000, 1001},
		{120.0, 120, 1},
		{17.0, 17, 1}, // unknown rate rounds
		{33.4, 33, 1}, // unknown rate rounds down
		{33.6, 34, 1}, // unknown rate rounds up
	}

	for _, tc := range cases {
		num, den := rationalRate(tc.fps)
		if num != tc.num || den != tc.den {
			t.Errorf("rationalRate(%v) = %d/%d, want %d/%d", tc.fps, num, den, tc.num, tc.den)
		}
	}
}

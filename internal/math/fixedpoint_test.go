package math_test

import (
	stdmath "math"
	"testing"

	fpmath "CDPLedger/internal/math"
)

func TestMulRate(t *testing.T) {
	// 1000 units of debit at rate 0.1 is 100 units of value.
	debit := int64(1000 * fpmath.Unit)
	rate := int64(100_000) // 0.1
	got := fpmath.MulRate(debit, rate)
	want := int64(100 * fpmath.Unit)
	if got != want {
		t.Errorf("MulRate: got %d, want %d", got, want)
	}
}

func TestRatio(t *testing.T) {
	// 1000 collateral value over 100 debit value is ratio 10.
	got := fpmath.Ratio(1000*fpmath.Unit, 100*fpmath.Unit)
	want := int64(10 * fpmath.Unit)
	if got != want {
		t.Errorf("Ratio: got %d, want %d", got, want)
	}
}

func TestRatioBankersRounding(t *testing.T) {
	// 1 / 3 at 6 decimals: 333333.33... rounds to 333333
	got := fpmath.Ratio(1*fpmath.Unit, 3*fpmath.Unit)
	if got != 333_333 {
		t.Errorf("Ratio(1/3): got %d, want 333333", got)
	}
	// 2 / 3: 666666.66... rounds to 666667
	got = fpmath.Ratio(2*fpmath.Unit, 3*fpmath.Unit)
	if got != 666_667 {
		t.Errorf("Ratio(2/3): got %d, want 666667", got)
	}
}

func TestApplyDelta(t *testing.T) {
	got, err := fpmath.ApplyDelta(500, 250)
	if err != nil || got != 750 {
		t.Errorf("ApplyDelta(500, 250): got (%d, %v), want (750, nil)", got, err)
	}

	got, err = fpmath.ApplyDelta(500, -500)
	if err != nil || got != 0 {
		t.Errorf("ApplyDelta(500, -500): got (%d, %v), want (0, nil)", got, err)
	}

	if _, err := fpmath.ApplyDelta(500, -501); err != fpmath.ErrUnderflow {
		t.Errorf("ApplyDelta(500, -501): got err %v, want ErrUnderflow", err)
	}
}

func TestCheckedAddOverflow(t *testing.T) {
	if _, err := fpmath.CheckedAdd(int64(1)<<62, int64(1)<<62); err != fpmath.ErrOverflow {
		t.Errorf("CheckedAdd overflow: got err %v, want ErrOverflow", err)
	}
	if _, err := fpmath.CheckedAdd(stdmath.MinInt64, -1); err != fpmath.ErrOverflow {
		t.Errorf("CheckedAdd negative overflow: got err %v, want ErrOverflow", err)
	}
	// -2^62 + -2^62 is exactly MinInt64, which is representable.
	got, err := fpmath.CheckedAdd(-(int64(1) << 62), -(int64(1) << 62))
	if err != nil || got != stdmath.MinInt64 {
		t.Errorf("CheckedAdd at MinInt64 boundary: got (%d, %v), want (%d, nil)", got, err, int64(stdmath.MinInt64))
	}
}

func TestMulDivRoundingModes(t *testing.T) {
	cases := []struct {
		a, b, denom int64
		mode        fpmath.RoundingMode
		want        int64
	}{
		{7, 1, 2, fpmath.RoundUp, 4},
		{7, 1, 2, fpmath.RoundDown, 3},
		{6, 1, 2, fpmath.RoundUp, 3},
		{6, 1, 2, fpmath.RoundDown, 3},
		{1, 1, 3, fpmath.RoundUp, 1},
		{1, 1, 3, fpmath.RoundDown, 0},
		{7, 1, 2, fpmath.RoundHalfEven, 4}, // 3.5 rounds to even 4
		{5, 1, 2, fpmath.RoundHalfEven, 2}, // 2.5 rounds to even 2
	}
	for _, tc := range cases {
		if got := fpmath.MulDiv(tc.a, tc.b, tc.denom, tc.mode); got != tc.want {
			t.Errorf("MulDiv(%d, %d, %d, mode %d): got %d, want %d",
				tc.a, tc.b, tc.denom, tc.mode, got, tc.want)
		}
	}
}

func TestSaturatingSub(t *testing.T) {
	if got := fpmath.SaturatingSub(100, 30); got != 70 {
		t.Errorf("SaturatingSub(100, 30): got %d, want 70", got)
	}
	if got := fpmath.SaturatingSub(30, 100); got != 0 {
		t.Errorf("SaturatingSub(30, 100): got %d, want 0", got)
	}
}

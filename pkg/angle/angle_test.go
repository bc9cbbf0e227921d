package angle

import (
	"math"
	"testing"
)

func TestFromFloatRange(t *testing.T) {
	inputs := []float64{0, 1, -1, 179.9, 180, -180, 180.1, -180.1, 359, 360,
		361, -359, -360, -361, 720.5, -720.5, 1234567.89, -1234567.89}
	for _, f := range inputs {
		got := FromFloat(f).Float()
		if got <= -180 || got > 180 {
			t.Errorf("FromFloat(%v) = %v, outside (-180, 180]", f, got)
		}
	}
}

func TestFromFloatIdempotent(t *testing.T) {
	inputs := []float64{0, 45, -45, 179.99, 180, -179.99, 90.125}
	for _, f := range inputs {
		once := FromFloat(f).Float()
		twice := FromFloat(once).Float()
		if once != twice {
			t.Errorf("FromFloat not idempotent for %v: %v != %v", f, once, twice)
		}
	}
}

func TestFromFloatValues(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{0, 0},
		{180, 180},
		{-180, 180},
		{181, -179},
		{-181, 179},
		{360, 0},
		{450, 90},
		{-450, -90},
		{540, 180},
	}
	for _, c := range cases {
		if got := FromFloat(c.in).Float(); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("FromFloat(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestDiff(t *testing.T) {
	cases := []struct{ a, b, want float64 }{
		{10, 5, 5},
		{5, 10, -5},
		{179, -179, -2},
		{-179, 179, 2},
		{90, -90, 180},
		{0, 0, 0},
	}
	for _, c := range cases {
		if got := Diff(c.a, c.b); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("Diff(%v, %v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestSubMatchesDiff(t *testing.T) {
	pairs := [][2]float64{{170, -170}, {-90, 90}, {30, 10}, {359, 1}}
	for _, p := range pairs {
		viaType := FromFloat(p[0]).Sub(FromFloat(p[1])).Float()
		viaDiff := Diff(p[0], p[1])
		if math.Abs(viaType-viaDiff) > 1e-9 {
			t.Errorf("Sub/Diff disagree for %v: %v vs %v", p, viaType, viaDiff)
		}
	}
}

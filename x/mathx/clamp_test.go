package mathx

import "testing"

func TestClamp(t *testing.T) {
	cases := []struct{ v, lo, hi, want int }{
		{5, 0, 10, 5},
		{-1, 0, 10, 0},
		{11, 0, 10, 10},
		{5, 10, 0, 5}, // swapped bounds
	}
	for _, c := range cases {
		if got := Clamp(c.v, c.lo, c.hi); got != c.want {
			t.Errorf("Clamp(%d, %d, %d) = %d, want %d", c.v, c.lo, c.hi, got, c.want)
		}
	}
}

func TestBetween(t *testing.T) {
	if !Between(5, 0, 10) {
		t.Fatalf("Between(5, 0, 10) = false, want true")
	}
	if Between(-1, 0, 10) {
		t.Fatalf("Between(-1, 0, 10) = true, want false")
	}
	if !Between(5, 10, 0) {
		t.Fatalf("Between(5, 10, 0) = false, want true (swapped bounds)")
	}
}

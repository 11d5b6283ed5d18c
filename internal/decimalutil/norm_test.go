package decimalutil

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNorm(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"5.00", "5"},
		{"3", "3"},
		{"0.00000024", "0.00000024"},
		{"0.00000000024", "0"},
		{"1.2345678987654", "1.2345679"},
		{"1.23450000000", "1.2345"},
		{"0.000000001", "0"},
	}
	for _, c := range cases {
		d, err := decimal.NewFromString(c.in)
		if err != nil {
			t.Fatalf("parse %q: %v", c.in, err)
		}
		if got := Norm(d); got != c.want {
			t.Errorf("Norm(%s) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormProduct(t *testing.T) {
	x, _ := decimal.NewFromString("1.2345678987654")
	got := Norm(x.Mul(x))
	want := "1.5241579"
	if got != want {
		t.Errorf("Norm(x*x) = %q, want %q", got, want)
	}
}

func BenchmarkNorm(b *testing.B) {
	d := decimal.NewFromFloat(1.2345678987654)
	for i := 0; i < b.N; i++ {
		Norm(d)
	}
}

package conv

import "testing"

func TestItoa(t *testing.T) {
	var buf [24]byte
	cases := map[int64]string{0: "0", 7: "7", 42: "42", -5: "-5", 1234567: "1234567"}
	for n, want := range cases {
		if got := string(Itoa(buf[:], n)); got != want {
			t.Fatalf("Itoa(%d)=%q want %q", n, got, want)
		}
	}
}

func TestDeci(t *testing.T) {
	cases := map[int32]string{
		0:     "0.0",
		5:     "0.5",
		200:   "20.0",
		231:   "23.1",
		-5:    "-0.5",
		-101:  "-10.1",
		32869: "3286.9",
	}
	for v, want := range cases {
		if got := string(AppendDeci(nil, v)); got != want {
			t.Fatalf("Deci(%d)=%q want %q", v, got, want)
		}
	}
}

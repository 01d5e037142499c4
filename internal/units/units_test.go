package units

import "testing"

func TestIsValid(t *testing.T) {
	for _, s := range ValidScales {
		if !IsValid(s) {
			t.Errorf("IsValid(%q) = false, want true", s)
		}
	}
	if IsValid("volts") {
		t.Error("IsValid(volts) = true, want false")
	}
	if IsValid("") {
		t.Error("IsValid(\"\") = true, want false")
	}
}

func TestConvertIntensity(t *testing.T) {
	cases := []struct {
		norm  float64
		scale string
		want  float64
	}{
		{0.5, Byte, 127.5},
		{1, Byte, 255},
		{0.25, Percent, 25},
		{0.7, Norm, 0.7},
		{0.7, "unknown", 0.7},
	}
	for _, tc := range cases {
		if got := ConvertIntensity(tc.norm, tc.scale); got != tc.want {
			t.Errorf("ConvertIntensity(%v, %q) = %v, want %v", tc.norm, tc.scale, got, tc.want)
		}
	}
}

func TestConvertField(t *testing.T) {
	in := []float64{0, 0.5, 1}
	got := ConvertField(in, Byte)
	want := []float64{0, 127.5, 255}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ConvertField[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	// input must not be mutated
	if in[1] != 0.5 {
		t.Error("ConvertField mutated its input")
	}
}

package serialmux

import "testing"

func TestPortOptions_NormalizeDefaults(t *testing.T) {
	opts, err := PortOptions{}.Normalize()
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if opts.BaudRate != 115200 {
		t.Errorf("baud = %d, want 115200", opts.BaudRate)
	}
	if opts.DataBits != 8 || opts.StopBits != 1 || opts.Parity != "N" {
		t.Errorf("defaults = %+v, want 8N1", opts)
	}
}

func TestPortOptions_NormalizeInvalid(t *testing.T) {
	cases := []PortOptions{
		{DataBits: 4},
		{DataBits: 9},
		{StopBits: 3},
		{Parity: "mark"},
	}
	for _, o := range cases {
		if _, err := o.Normalize(); err == nil {
			t.Errorf("Normalize(%+v): expected error", o)
		}
	}
}

func TestPortOptions_ParityAliases(t *testing.T) {
	for in, want := range map[string]string{
		"none": "N", "EVEN": "E", "odd": "O", " n ": "N",
	} {
		opts, err := PortOptions{Parity: in}.Normalize()
		if err != nil {
			t.Fatalf("Normalize(parity=%q): %v", in, err)
		}
		if opts.Parity != want {
			t.Errorf("parity %q normalized to %q, want %q", in, opts.Parity, want)
		}
	}
}

func TestPortOptions_Equal(t *testing.T) {
	a := PortOptions{BaudRate: 115200, Parity: "none"}
	b := PortOptions{BaudRate: 115200, Parity: "N", DataBits: 8, StopBits: 1}
	if !a.Equal(b) {
		t.Error("expected normalized-equal options to compare equal")
	}
	c := PortOptions{BaudRate: 9600}
	if a.Equal(c) {
		t.Error("expected different baud rates to compare unequal")
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{BaudRate: 9600, Parity: "even", StopBits: 2}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode: %v", err)
	}
	if mode.BaudRate != 9600 {
		t.Errorf("baud = %d, want 9600", mode.BaudRate)
	}
}

func TestIsAllowedCommand(t *testing.T) {
	for _, c := range []string{"??", "R1", "R0", "A1", "S5", "X!"} {
		if !IsAllowedCommand(c) {
			t.Errorf("IsAllowedCommand(%q) = false, want true", c)
		}
	}
	for _, c := range []string{"", "ZZ", "R1\n", "reset"} {
		if IsAllowedCommand(c) {
			t.Errorf("IsAllowedCommand(%q) = true, want false", c)
		}
	}
}

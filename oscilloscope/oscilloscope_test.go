package oscilloscope

import (
	"bytes"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPhysicalScalesAboutReference(t *testing.T) {
	ch := Channel{Data: []int8{-2, 0, 2}, Scale: 0.5, Offset: 1, Reference: 0}
	expected := []float64{0, 1, 2}
	if diff := cmp.Diff(expected, ch.Physical()); diff != "" {
		t.Errorf("physical mismatch (-want +got):\n%s", diff)
	}
}

func TestPhysicalInt16(t *testing.T) {
	ch := Channel{Data: []int16{100, 200}, Scale: 2, Offset: 0, Reference: 100}
	expected := []float64{0, 200}
	if diff := cmp.Diff(expected, ch.Physical()); diff != "" {
		t.Errorf("physical mismatch (-want +got):\n%s", diff)
	}
}

func TestLen(t *testing.T) {
	if Len([]int16{1, 2, 3}) != 3 {
		t.Error("expected 3 samples")
	}
	if Len("abc") != -1 {
		t.Error("expected -1 for non numerical data")
	}
}

func TestEncodeCSVSortsChannels(t *testing.T) {
	wav := Waveform{
		DT: 0.5,
		Channels: map[string]Channel{
			"CH2": {Data: []int8{3, 4}, Scale: 1},
			"CH1": {Data: []int8{1, 2, 5}, Scale: 1},
		},
	}
	buf := &bytes.Buffer{}
	if err := wav.EncodeCSV(buf); err != nil {
		t.Fatal(err)
	}
	expected := "time,CH1,CH2\n0,1,3\n0.5,2,4\n1,5,\n"
	if got := buf.String(); got != expected {
		t.Errorf("expected %q got %q", expected, got)
	}
}

func TestParseQuantity(t *testing.T) {
	inputs := []struct {
		in  string
		out float64
	}{
		{"0.006", 0.006},
		{"10E-3", 10e-3},
		{"5mv", 5e-3},
		{"5 mV", 5e-3},
		{"500us", 500e-6},
		{"2.5k", 2500},
		{"1V", 1},
		{"20ns", 20e-9},
		{"-1.5", -1.5},
	}
	for _, tc := range inputs {
		got, err := ParseQuantity(tc.in)
		if err != nil {
			t.Errorf("%q: %v", tc.in, err)
			continue
		}
		if math.Abs(got-tc.out) > 1e-15 {
			t.Errorf("%q: expected %g got %g", tc.in, tc.out, got)
		}
	}
}

func TestParseQuantityRejectsJunk(t *testing.T) {
	for _, in := range []string{"", "volts", "5xV", "5mA"} {
		if _, err := ParseQuantity(in); err == nil {
			t.Errorf("expected %q to be rejected", in)
		}
	}
}

func TestNormalizeSource(t *testing.T) {
	inputs := map[string]string{
		"1":     "CH1",
		"ch1":   "CH1",
		"Ch 4":  "CH4",
		"CH2":   "CH2",
		"math1": "MATH1",
		"ref2":  "REF2",
	}
	for in, expected := range inputs {
		got, err := NormalizeSource(in)
		if err != nil {
			t.Errorf("%q: %v", in, err)
			continue
		}
		if got != expected {
			t.Errorf("%q: expected %s got %s", in, expected, got)
		}
	}
	for _, in := range []string{"", "5", "ch0", "math4", "ref5", "aux"} {
		if _, err := NormalizeSource(in); err == nil {
			t.Errorf("expected %q to be rejected", in)
		}
	}
}

func TestNormalizeChannelOnlyInputs(t *testing.T) {
	got, err := NormalizeChannel("ch 3")
	if err != nil || got != "CH3" {
		t.Errorf("expected CH3, got %s %v", got, err)
	}
	for _, in := range []string{"math1", "REF2", "ch5"} {
		if _, err := NormalizeChannel(in); err == nil {
			t.Errorf("expected %q to be rejected", in)
		}
	}
}

func TestSplitSources(t *testing.T) {
	got, err := SplitSources("ch1, 2;math3")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"CH1", "CH2", "MATH3"}, got); diff != "" {
		t.Errorf("sources mismatch (-want +got):\n%s", diff)
	}
}

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	yml "gopkg.in/yaml.v2"

	"github.com/budker-phys/gpiblab/tektronix"
)

func TestLoadConfigMissingFileGivesDefaults(t *testing.T) {
	_, c, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(Defaults(), c); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigLayersFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tdsctl.yml")
	conf := `Addr: ":9000"
Instrument:
  Addr: /dev/ttyUSB0
  Serial: true
  Timeout: 500ms
`
	if err := os.WriteFile(path, []byte(conf), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TDSCTL_INSTRUMENT__GPIBADDRESS", "7")
	t.Setenv("TDSCTL_MOCK", "true")

	_, c, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	expected := Defaults()
	expected.Addr = ":9000"
	expected.Mock = true
	expected.Instrument.Addr = "/dev/ttyUSB0"
	expected.Instrument.Serial = true
	expected.Instrument.Timeout = 500 * time.Millisecond
	expected.Instrument.GPIBAddress = 7
	if diff := cmp.Diff(expected, c); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tdsctl.yml")
	if err := os.WriteFile(path, []byte("Addr: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := LoadConfig(path); err == nil {
		t.Error("expected an error for malformed YAML")
	}
}

func TestMkconfRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tdsctl.yml")
	written := Defaults()
	written.Instrument.WriteInterval = 25 * time.Millisecond
	b, err := yml.Marshal(written)
	if err != nil {
		t.Fatal(err)
	}
	if err = os.WriteFile(path, b, 0644); err != nil {
		t.Fatal(err)
	}
	_, c, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(written, c); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenMockUsesSimulator(t *testing.T) {
	c := Defaults()
	c.Mock = true
	scope, dev, err := c.Open()
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()
	idn, err := scope.Raw("*idn?")
	if err != nil {
		t.Fatal(err)
	}
	if idn != tektronix.IDN {
		t.Errorf("expected %q got %q", tektronix.IDN, idn)
	}
}

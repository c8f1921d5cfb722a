package client

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/budker-phys/gpiblab/gpib"
	"github.com/budker-phys/gpiblab/server"
	"github.com/budker-phys/gpiblab/tektronix"
)

func newClient(t *testing.T) *Client {
	t.Helper()
	scope, err := tektronix.New(gpib.NewDevice("tds540", tektronix.NewSimulator()))
	if err != nil {
		t.Fatal(err)
	}
	mux := server.BuildMux(server.Node{Endpoint: "scope", HTTPer: tektronix.NewHTTPWrapper(scope)})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(srv.URL + "/scope/")
}

func TestClientSettingsAndSetters(t *testing.T) {
	c := newClient(t)
	s, err := c.Settings()
	if err != nil {
		t.Fatal(err)
	}
	if s.DataMode != tektronix.EncodingRIB {
		t.Errorf("expected data mode %s got %s", tektronix.EncodingRIB, s.DataMode)
	}

	ok, err := c.SetAcquireMode("peakdetect")
	if err != nil || !ok {
		t.Errorf("expected peakdetect to be accepted, got %v %v", ok, err)
	}
	ok, err = c.SetHorizontalScale(3e-4)
	if err != nil || ok {
		t.Errorf("expected 300us/div to be snapped, got %v %v", ok, err)
	}
	ok, err = c.SetVerticalScale("CH2", 0.02)
	if err != nil || !ok {
		t.Errorf("expected 20mV/div to be accepted, got %v %v", ok, err)
	}
	ok, err = c.SetReadChannels("CH1", "CH2")
	if err != nil || !ok {
		t.Errorf("expected CH1,CH2 to be accepted, got %v %v", ok, err)
	}

	s, err = c.Sync()
	if err != nil {
		t.Fatal(err)
	}
	if s.AcquireMode != tektronix.AcquirePeakDetect || s.HorizontalScale != "2.0E-4" || s.DataSource != "CH1,CH2" {
		t.Errorf("unexpected settings after sync %+v", s)
	}
	ok, err = c.Verify()
	if err != nil || !ok {
		t.Errorf("expected every setting to verify, got %v %v", ok, err)
	}
}

func TestClientCurveAndRaw(t *testing.T) {
	c := newClient(t)
	curve, err := c.Curve()
	if err != nil {
		t.Fatal(err)
	}
	if len(curve.Frames) != 1 || curve.Frames[0].Source != "CH1" {
		t.Errorf("expected one CH1 frame, got %+v", curve.Frames)
	}
	idn, err := c.Raw("*idn?")
	if err != nil {
		t.Fatal(err)
	}
	if idn != tektronix.IDN {
		t.Errorf("expected %q got %q", tektronix.IDN, idn)
	}
	resp, err := c.Raw("acquire:mode envelope")
	if err != nil || resp != "" {
		t.Errorf("expected an empty reply to a command, got %q %v", resp, err)
	}
}

func TestClientEscapesChannelNames(t *testing.T) {
	c := newClient(t)
	ok, err := c.SetVerticalPosition("ch 3", 1)
	if err != nil || !ok {
		t.Errorf("expected a spaced channel name to reach CH3, got %v %v", ok, err)
	}
	if _, err = c.SetVerticalScale("math1", 0.1); err == nil || !strings.Contains(err.Error(), "400") {
		t.Errorf("expected a 400 for a math trace, got %v", err)
	}
}

func TestClientWaveformCSV(t *testing.T) {
	c := newClient(t)
	buf := &bytes.Buffer{}
	if err := c.WaveformCSV(buf, "CH3"); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "time,CH3\n") {
		t.Errorf("expected a CH3 CSV, got %.40q", buf.String())
	}
}

func TestClientLock(t *testing.T) {
	c := newClient(t)
	if err := c.Lock(true); err != nil {
		t.Fatal(err)
	}
	if _, err := c.SetAcquireMode("sample"); err == nil || !strings.Contains(err.Error(), "423") {
		t.Errorf("expected a locked error, got %v", err)
	}
	// reads still work while locked
	if _, err := c.Settings(); err != nil {
		t.Errorf("expected settings to be readable while locked, got %v", err)
	}
	if err := c.Lock(false); err != nil {
		t.Fatal(err)
	}
	if _, err := c.SetAcquireMode("sample"); err != nil {
		t.Errorf("expected unlocked scope to accept changes, got %v", err)
	}
}

func TestClientErrorsCarryStatus(t *testing.T) {
	c := newClient(t)
	_, err := c.SetAcquireMode("turbo")
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("expected a 500 error, got %v", err)
	}
}

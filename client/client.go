// Package client talks to a scope served by tdsctl serve over HTTP
package client

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/imroc/req"

	"github.com/budker-phys/gpiblab/generichttp"
	"github.com/budker-phys/gpiblab/oscilloscope"
	"github.com/budker-phys/gpiblab/tektronix"
)

// Client is a remote TDS540.  It implements oscilloscope.Scope, so code
// written against a local scope runs unchanged against a served one.
type Client struct {
	// Prefix is the URL the scope is mounted at, e.g. http://lab:8000/scope
	Prefix string
}

var _ oscilloscope.Scope = (*Client)(nil)

// New returns a client for the scope mounted at baseURL
func New(baseURL string) *Client {
	return &Client{Prefix: strings.TrimRight(baseURL, "/")}
}

func (c *Client) url(path string) string {
	return c.Prefix + path
}

func check(r *req.Resp) error {
	if code := r.Response().StatusCode; code != http.StatusOK && code != http.StatusNoContent {
		return fmt.Errorf("%s: %s", r.Response().Status, strings.TrimSpace(r.String()))
	}
	return nil
}

func (c *Client) get(path string, v interface{}, params ...interface{}) error {
	r, err := req.Get(c.url(path), params...)
	if err != nil {
		return err
	}
	if err = check(r); err != nil {
		return err
	}
	return r.ToJSON(v)
}

// post sends body and decodes the {"bool": ok} reply
func (c *Client) post(path string, body interface{}) (bool, error) {
	r, err := req.Post(c.url(path), req.BodyJSON(body))
	if err != nil {
		return false, err
	}
	if err = check(r); err != nil {
		return false, err
	}
	b := generichttp.BoolT{}
	err = r.ToJSON(&b)
	return b.Bool, err
}

// Settings returns the server's cached scope configuration
func (c *Client) Settings() (tektronix.Settings, error) {
	s := tektronix.Settings{}
	err := c.get("/settings", &s)
	return s, err
}

// Sync has the server re-read its cache from the scope
func (c *Client) Sync() (tektronix.Settings, error) {
	s := tektronix.Settings{}
	r, err := req.Post(c.url("/sync"))
	if err != nil {
		return s, err
	}
	if err = check(r); err != nil {
		return s, err
	}
	err = r.ToJSON(&s)
	return s, err
}

// Verify reconciles every setting on the server and reports whether all agreed
func (c *Client) Verify() (bool, error) {
	return c.post("/verify", struct{}{})
}

// SetAcquireMode sets the acquire mode
func (c *Client) SetAcquireMode(mode string) (bool, error) {
	return c.post("/acquire-mode", generichttp.StrT{Str: mode})
}

// SetTriggerLevel sets the trigger level in volts
func (c *Client) SetTriggerLevel(volts float64) (bool, error) {
	return c.post("/trigger/level", generichttp.FloatT{F64: volts})
}

// SetTriggerChannel sets the trigger source
func (c *Client) SetTriggerChannel(source string) (bool, error) {
	return c.post("/trigger/channel", generichttp.StrT{Str: source})
}

// SetReadChannels selects the sources a waveform read returns
func (c *Client) SetReadChannels(sources ...string) (bool, error) {
	return c.post("/read-channels", generichttp.StrT{Str: strings.Join(sources, ",")})
}

// SetVerticalScale sets a channel's scale in volts per division
func (c *Client) SetVerticalScale(channel string, voltsPerDiv float64) (bool, error) {
	return c.post("/channel/"+url.PathEscape(channel)+"/scale", generichttp.FloatT{F64: voltsPerDiv})
}

// SetVerticalPosition sets a channel's position in divisions
func (c *Client) SetVerticalPosition(channel string, divisions float64) (bool, error) {
	return c.post("/channel/"+url.PathEscape(channel)+"/position", generichttp.FloatT{F64: divisions})
}

// SetHorizontalScale sets the timebase in seconds per division
func (c *Client) SetHorizontalScale(secondsPerDiv float64) (bool, error) {
	return c.post("/horizontal/scale", generichttp.FloatT{F64: secondsPerDiv})
}

// SetReadLength sets how many points a waveform read returns
func (c *Client) SetReadLength(points int) (bool, error) {
	return c.post("/read-points", generichttp.IntT{Int: points})
}

// Curve reads the waveform in the scope's current encoding
func (c *Client) Curve() (tektronix.Curve, error) {
	curve := tektronix.Curve{}
	err := c.get("/curve", &curve)
	return curve, err
}

// Raw sends a command and returns the reply, empty if it was not a query
func (c *Client) Raw(command string) (string, error) {
	r, err := req.Post(c.url("/raw"), req.BodyJSON(generichttp.StrT{Str: command}))
	if err != nil {
		return "", err
	}
	if err = check(r); err != nil {
		return "", err
	}
	if r.Response().StatusCode == http.StatusNoContent {
		return "", nil
	}
	s := generichttp.StrT{}
	err = r.ToJSON(&s)
	return s.Str, err
}

// Lock locks or unlocks the scope against changes from other clients
func (c *Client) Lock(locked bool) error {
	r, err := req.Post(c.url("/lock"), req.BodyJSON(generichttp.BoolT{Bool: locked}))
	if err != nil {
		return err
	}
	return check(r)
}

// WaveformCSV copies a scaled waveform of the given sources, or the
// configured ones if none are given, to w as CSV
func (c *Client) WaveformCSV(w io.Writer, sources ...string) error {
	var params []interface{}
	if len(sources) > 0 {
		params = append(params, req.Param{"sources": strings.Join(sources, ",")})
	}
	r, err := req.Get(c.url("/waveform.csv"), params...)
	if err != nil {
		return err
	}
	if err = check(r); err != nil {
		return err
	}
	_, err = w.Write(r.Bytes())
	return err
}

// Package gpib is a thin transport wrapper over a link to one GPIB instrument.
//
// A Device exposes three primitives, Write, Read, and ReadBinary, which map
// directly onto the bus: commands are ASCII text, replies are either ASCII up
// to a newline or a fixed count of raw bytes.  Nothing in this package knows
// about any particular instrument.
package gpib

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/budker-phys/gpiblab/comm"
)

const (
	// DefaultReadLength is the number of bytes Read and ReadBinary request when
	// called with a length of zero
	DefaultReadLength = 1000

	// Terminator ends both commands and ASCII replies
	Terminator = '\n'
)

// Device is a single instrument on the bus.  It is not safe for concurrent use;
// one owner issues commands and reads their replies in order.
type Device struct {
	// Name identifies the device in errors and logs
	Name string

	readLength int
	link       io.ReadWriteCloser
	br         *bufio.Reader
	pacer      *rate.Limiter
}

// NewDevice wraps a link which is already addressed to the instrument
func NewDevice(name string, link io.ReadWriteCloser) *Device {
	return &Device{
		Name:       name,
		readLength: DefaultReadLength,
		link:       link,
		br:         bufio.NewReader(link),
	}
}

// SetReadLength sets the length used by Read(0) and ReadBinary(0)
func (d *Device) SetReadLength(length int) {
	if length <= 0 {
		length = DefaultReadLength
	}
	d.readLength = length
}

// ReadLength returns the default read length
func (d *Device) ReadLength() int {
	return d.readLength
}

// SetWriteInterval enforces a minimum spacing between commands.  Some older
// instruments drop commands that arrive back to back.  Zero disables pacing.
func (d *Device) SetWriteInterval(interval time.Duration) {
	if interval <= 0 {
		d.pacer = nil
		return
	}
	d.pacer = rate.NewLimiter(rate.Every(interval), 1)
}

// Write sends a command to the instrument, appending the terminator
func (d *Device) Write(command string) error {
	if d.pacer != nil {
		if err := d.pacer.Wait(context.Background()); err != nil {
			return errors.Wrapf(err, "gpib %s: write pacing", d.Name)
		}
	}
	cmd := strings.TrimRight(command, "\r\n") + string(Terminator)
	if _, err := io.WriteString(d.link, cmd); err != nil {
		return errors.Wrapf(err, "gpib %s: write %q", d.Name, strings.TrimSpace(command))
	}
	return nil
}

// Read returns up to length bytes of an ASCII reply, stopping after the first
// terminator, which is included.  A length of zero uses the default.
func (d *Device) Read(length int) (string, error) {
	if length <= 0 {
		length = d.readLength
	}
	buf := make([]byte, 0, length)
	for len(buf) < length {
		b, err := d.br.ReadByte()
		if err != nil {
			return string(buf), errors.Wrapf(err, "gpib %s: read", d.Name)
		}
		buf = append(buf, b)
		if b == Terminator {
			break
		}
	}
	return string(buf), nil
}

// ReadBinary returns exactly length raw bytes.  A length of zero uses the default.
func (d *Device) ReadBinary(length int) ([]byte, error) {
	if length <= 0 {
		length = d.readLength
	}
	buf := make([]byte, length)
	n, err := io.ReadFull(d.br, buf)
	if err != nil {
		return buf[:n], errors.Wrapf(err, "gpib %s: read %d binary bytes", d.Name, length)
	}
	return buf, nil
}

// Drain discards the rest of the reply in progress and returns how many bytes
// were thrown away.  It reads until the link has nothing more to give: an
// empty read, io.EOF, or a read timeout.  Use it to get back in step with the
// instrument after a reply could not be parsed.
func (d *Device) Drain() (int, error) {
	n, _ := d.br.Discard(d.br.Buffered())
	buf := make([]byte, 4096)
	for {
		m, err := d.br.Read(buf)
		n += m
		if err != nil {
			if err == io.EOF || isTimeout(err) {
				return n, nil
			}
			return n, errors.Wrapf(err, "gpib %s: drain", d.Name)
		}
		if m == 0 {
			return n, nil
		}
	}
}

func isTimeout(err error) bool {
	t, ok := errors.Cause(err).(interface{ Timeout() bool })
	return ok && t.Timeout()
}

// Close releases the link
func (d *Device) Close() error {
	return d.link.Close()
}

// Config describes how to reach an instrument through a Prologix adapter
type Config struct {
	// Name identifies the instrument
	Name string `koanf:"Name" yaml:"Name"`

	// Addr is the adapter's host:port, or its serial port when Serial is true
	Addr string `koanf:"Addr" yaml:"Addr"`

	// Serial selects a serial/USB adapter instead of an Ethernet one
	Serial bool `koanf:"Serial" yaml:"Serial"`

	// Baud is the serial baud rate, ignored for Ethernet
	Baud int `koanf:"Baud" yaml:"Baud"`

	// GPIBAddress is the instrument's primary address, 0-30
	GPIBAddress int `koanf:"GPIBAddress" yaml:"GPIBAddress"`

	// Timeout bounds each read and write on the link
	Timeout time.Duration `koanf:"Timeout" yaml:"Timeout"`

	// WriteInterval is the minimum spacing between commands
	WriteInterval time.Duration `koanf:"WriteInterval" yaml:"WriteInterval"`
}

// Link returns the comm.Link for the adapter connection
func (c Config) Link() comm.Link {
	return comm.Link{Addr: c.Addr, Serial: c.Serial, Baud: c.Baud, Timeout: c.Timeout}
}

// Open connects to the adapter, addresses the instrument and returns its Device
func Open(c Config) (*Device, error) {
	conn, err := c.Link().Open()
	if err != nil {
		return nil, errors.Wrapf(err, "gpib %s: open %s", c.Name, c.Addr)
	}
	link, err := NewPrologix(conn, c.GPIBAddress)
	if err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "gpib %s: configure adapter", c.Name)
	}
	d := NewDevice(c.Name, link)
	d.SetWriteInterval(c.WriteInterval)
	return d, nil
}

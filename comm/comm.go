/*Package comm opens the byte links that lab hardware sits behind.

Instruments in this module are reached through a GPIB adapter which is
plugged in either over a serial (or USB virtual COM) port, or over TCP.
Both appear to callers as an io.ReadWriteCloser:

	link := comm.Link{Addr: "192.168.1.50:1234", Timeout: 3 * time.Second}
	conn, err := link.Open()
	if err != nil {
		return err
	}
	defer conn.Close()

TCP connections are retried with an exponential backoff, and every Read or
Write on them gets a fresh deadline so a silent instrument cannot hang the
caller forever.
*/
package comm

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

const (
	// DefaultTimeout is used when a Link has no timeout configured
	DefaultTimeout = 3 * time.Second

	// DefaultBaud is the baud rate used for serial links with no baud configured
	DefaultBaud = 115200
)

var (
	// ErrNotConnected is generated when Read or Write is called on a closed conn
	ErrNotConnected = errors.New("conn is nil, not connected to remote")

	// ErrConnTimeout is generated when the remote never accepted a connection
	ErrConnTimeout = errors.New("connection timeout")
)

// Link describes how to reach a remote.  If Serial is true, Addr is a
// filesystem path like /dev/ttyUSB0 or COM3, else a host:port.
type Link struct {
	Addr    string        `koanf:"Addr" yaml:"Addr"`
	Serial  bool          `koanf:"Serial" yaml:"Serial"`
	Baud    int           `koanf:"Baud" yaml:"Baud"`
	Timeout time.Duration `koanf:"Timeout" yaml:"Timeout"`
}

// Open establishes the link
func (l Link) Open() (io.ReadWriteCloser, error) {
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if l.Serial {
		baud := l.Baud
		if baud <= 0 {
			baud = DefaultBaud
		}
		return OpenSerial(l.Addr, baud, timeout)
	}
	return Dial(l.Addr, timeout)
}

// OpenSerial opens a serial port with the given read timeout
func OpenSerial(name string, baud int, timeout time.Duration) (io.ReadWriteCloser, error) {
	conf := &serial.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: timeout,
	}
	return serial.OpenPort(conf)
}

// Dial opens a TCP connection, retrying with exponential backoff.  A refused
// connection is not retried.
func Dial(addr string, timeout time.Duration) (io.ReadWriteCloser, error) {
	var (
		conn       net.Conn
		wasTimeout bool
	)
	op := func() error {
		c, err := net.DialTimeout("tcp", addr, timeout)
		if err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "refused") {
				return backoff.Permanent(err)
			}
			wasTimeout = true
			return err
		}
		wasTimeout = false
		conn = c
		return nil
	}

	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock})
	if err == nil {
		return NewTimeout(conn, timeout), nil
	}
	if wasTimeout {
		return nil, fmt.Errorf("%w to %s: %v", ErrConnTimeout, addr, err)
	}
	return nil, err
}

// Deadliner is something that takes read and write deadlines, usually a net.Conn
type Deadliner interface {
	io.ReadWriteCloser
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

// Timeout refreshes the deadline of the underlying conn before every operation
type Timeout struct {
	conn    Deadliner
	timeout time.Duration
}

// NewTimeout wraps conn so each Read and Write must complete within timeout
func NewTimeout(conn Deadliner, timeout time.Duration) *Timeout {
	return &Timeout{conn: conn, timeout: timeout}
}

// Read implements io.Reader
func (t *Timeout) Read(b []byte) (int, error) {
	if t.conn == nil {
		return 0, ErrNotConnected
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(t.timeout)); err != nil {
		return 0, err
	}
	return t.conn.Read(b)
}

// Write implements io.Writer
func (t *Timeout) Write(b []byte) (int, error) {
	if t.conn == nil {
		return 0, ErrNotConnected
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.timeout)); err != nil {
		return 0, err
	}
	return t.conn.Write(b)
}

// Close closes the conn; later calls return ErrNotConnected
func (t *Timeout) Close() error {
	if t.conn == nil {
		return ErrNotConnected
	}
	err := t.conn.Close()
	if err == nil {
		t.conn = nil
	}
	return err
}

package gpib

import (
	"io"

	"github.com/gotmc/prologix"
)

const esc = 0x1b

// Prologix is a link through a Prologix GPIB-USB or GPIB-ETHERNET adapter.
//
// The adapter runs with read-after-write disabled, so it only talks the
// instrument into sending after "++read eoi".  Prologix issues that request
// on the first read following each write, which lets a caller read a reply
// in as many pieces as it likes.
type Prologix struct {
	rw      io.ReadWriteCloser
	pending bool
}

// NewPrologix puts the adapter into controller mode addressed at addr
func NewPrologix(rw io.ReadWriteCloser, addr int) (*Prologix, error) {
	if _, err := prologix.NewController(rw, addr, false); err != nil {
		return nil, err
	}
	// instruments like the TDS series send their own LF with EOI; a second
	// one from the adapter would land at the front of the next reply
	if _, err := io.WriteString(rw, "++eot_enable 0\n"); err != nil {
		return nil, err
	}
	return &Prologix{rw: rw}, nil
}

// Write forwards one terminated command to the instrument
func (p *Prologix) Write(b []byte) (int, error) {
	if _, err := p.rw.Write(escape(b)); err != nil {
		return 0, err
	}
	p.pending = true
	return len(b), nil
}

// Read requests the reply if it has not been requested yet, then reads it
func (p *Prologix) Read(b []byte) (int, error) {
	if p.pending {
		if _, err := io.WriteString(p.rw, "++read eoi\n"); err != nil {
			return 0, err
		}
		p.pending = false
	}
	return p.rw.Read(b)
}

// Close closes the adapter connection
func (p *Prologix) Close() error {
	return p.rw.Close()
}

// escape protects bytes the adapter would otherwise interpret.  A trailing
// LF is left alone; it terminates the command.
func escape(b []byte) []byte {
	body := b
	var term []byte
	if n := len(b); n > 0 && b[n-1] == Terminator {
		body, term = b[:n-1], b[n-1:]
	}
	out := make([]byte, 0, len(b)+4)
	for _, c := range body {
		switch c {
		case '\r', '\n', esc, '+':
			out = append(out, esc)
		}
		out = append(out, c)
	}
	return append(out, term...)
}

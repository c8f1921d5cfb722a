package gpib

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// loopLink records what is written and replays a canned reply
type loopLink struct {
	written bytes.Buffer
	reply   *bytes.Reader
	closed  bool
}

func newLoopLink(reply string) *loopLink {
	return &loopLink{reply: bytes.NewReader([]byte(reply))}
}

func (l *loopLink) Write(b []byte) (int, error) { return l.written.Write(b) }
func (l *loopLink) Read(b []byte) (int, error)  { return l.reply.Read(b) }
func (l *loopLink) Close() error                { l.closed = true; return nil }

func TestWriteAppendsSingleTerminator(t *testing.T) {
	link := newLoopLink("")
	d := NewDevice("scope", link)
	for _, cmd := range []string{"acquire:mode SAM", "acquire:mode SAM\n"} {
		if err := d.Write(cmd); err != nil {
			t.Fatal(err)
		}
	}
	expected := "acquire:mode SAM\nacquire:mode SAM\n"
	if got := link.written.String(); got != expected {
		t.Errorf("expected %q got %q", expected, got)
	}
}

func TestReadStopsAtTerminator(t *testing.T) {
	d := NewDevice("scope", newLoopLink("SAM\nRIB\n"))
	first, err := d.Read(10)
	if err != nil {
		t.Fatal(err)
	}
	second, err := d.Read(10)
	if err != nil {
		t.Fatal(err)
	}
	if first != "SAM\n" || second != "RIB\n" {
		t.Errorf("expected SAM\\n and RIB\\n, got %q and %q", first, second)
	}
}

func TestReadHonoursLength(t *testing.T) {
	d := NewDevice("scope", newLoopLink("1,2,3,4,5\n"))
	chunk, err := d.Read(4)
	if err != nil {
		t.Fatal(err)
	}
	if chunk != "1,2," {
		t.Errorf("expected 4 byte chunk, got %q", chunk)
	}
	rest, err := d.Read(0)
	if err != nil {
		t.Fatal(err)
	}
	if rest != "3,4,5\n" {
		t.Errorf("expected remainder, got %q", rest)
	}
}

func TestReadBinaryExactAndShort(t *testing.T) {
	d := NewDevice("scope", newLoopLink("#15\x01\x02\x03\x04\x05"))
	hdr, err := d.ReadBinary(3)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte("#15"), hdr); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	_, err = d.ReadBinary(10)
	if err == nil {
		t.Fatal("expected short binary read to error")
	}
}

func TestDrainDiscardsRestOfReply(t *testing.T) {
	d := NewDevice("scope", newLoopLink("#15ab\ncd,#12ef\n"))
	if _, err := d.ReadBinary(3); err != nil {
		t.Fatal(err)
	}
	n, err := d.Drain()
	if err != nil {
		t.Fatal(err)
	}
	if n != 12 {
		t.Errorf("expected 12 bytes drained, got %d", n)
	}
	if _, err = d.Read(10); err == nil {
		t.Error("expected nothing left to read after a drain")
	}
}

// timeoutErr is what a link with a read deadline returns once it runs dry
type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type dryLink struct{ *loopLink }

func (d dryLink) Read(b []byte) (int, error) {
	n, err := d.loopLink.Read(b)
	if err == io.EOF {
		return n, timeoutErr{}
	}
	return n, err
}

func TestDrainStopsAtTimeout(t *testing.T) {
	d := NewDevice("scope", dryLink{newLoopLink("leftover\n")})
	n, err := d.Drain()
	if err != nil {
		t.Fatalf("expected a timeout to end the drain cleanly, got %v", err)
	}
	if n != 9 {
		t.Errorf("expected 9 bytes drained, got %d", n)
	}
}

func TestReadLengthDefault(t *testing.T) {
	d := NewDevice("scope", newLoopLink(""))
	if d.ReadLength() != DefaultReadLength {
		t.Errorf("expected default %d got %d", DefaultReadLength, d.ReadLength())
	}
	d.SetReadLength(50)
	if d.ReadLength() != 50 {
		t.Errorf("expected 50 got %d", d.ReadLength())
	}
	d.SetReadLength(-1)
	if d.ReadLength() != DefaultReadLength {
		t.Errorf("expected non-positive length to restore default, got %d", d.ReadLength())
	}
}

func TestWriteIntervalPacesCommands(t *testing.T) {
	d := NewDevice("scope", newLoopLink(""))
	d.SetWriteInterval(20 * time.Millisecond)
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := d.Write("*CLS"); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 35*time.Millisecond {
		t.Errorf("expected three paced writes to take >= 40ms, took %v", elapsed)
	}
}

func TestPrologixRequestsReplyOncePerCommand(t *testing.T) {
	link := newLoopLink("SAM\n")
	p := &Prologix{rw: link}
	d := NewDevice("scope", p)

	if err := d.Write("acquire:mode?"); err != nil {
		t.Fatal(err)
	}
	resp, err := d.Read(10)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "SAM\n" {
		t.Errorf("expected SAM\\n got %q", resp)
	}
	expected := "acquire:mode?\n++read eoi\n"
	if got := link.written.String(); got != expected {
		t.Errorf("expected %q on the adapter, got %q", expected, got)
	}
}

func TestPrologixEscapesControlBytes(t *testing.T) {
	got := escape([]byte("trigger:main:level 1E+0\n"))
	expected := []byte("trigger:main:level 1E\x1b+0\n")
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Errorf("escape mismatch (-want +got):\n%s", diff)
	}
}

func TestCloseClosesLink(t *testing.T) {
	link := newLoopLink("")
	d := NewDevice("scope", link)
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if !link.closed {
		t.Error("expected link to be closed")
	}
}

var _ io.ReadWriteCloser = (*Prologix)(nil)

package tektronix

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/snksoft/crc"

	"github.com/budker-phys/gpiblab/log"
	"github.com/budker-phys/gpiblab/oscilloscope"
)

const (
	blockStart = '#'
	blockMore  = ','
	blockEnd   = '\n'

	// the TDS540 tops out at 50000 points of two bytes; anything claiming
	// far more than that is a corrupt header
	maxBlockBytes = 1 << 24
)

var (
	// ErrOutOfSync is returned when a block does not start with # or is not
	// followed by a comma or newline
	ErrOutOfSync = errors.New("tektronix: waveform out of sync")

	// ErrBadHeader is returned when the digit count or byte count of a block is
	// not a decimal number
	ErrBadHeader = errors.New("tektronix: bad binary block header")

	// ErrPartialSample is returned when the byte count is not a multiple of the
	// data width
	ErrPartialSample = errors.New("tektronix: byte count is not a multiple of the data width")

	ccitt = crc.NewTable(crc.CCITT)
)

// BinaryReader reads exactly n raw bytes
type BinaryReader interface {
	ReadBinary(n int) ([]byte, error)
}

// Frame is one channel of a binary curve? response
type Frame struct {
	// Source is the data source the frame was requested from, if known
	Source string `json:"source,omitempty"`

	// Samples is []int8 for a data width of 1 and []int16 for 2
	Samples oscilloscope.Data `json:"samples"`

	// CRC is the CRC-CCITT of the raw payload
	CRC uint64 `json:"crc"`
}

// DecodeCurve reads #<y><len><bytes> blocks from r until one is followed by a
// newline.  Frames are returned in the order the scope sent them, which is the
// order of data:source.  On error the frames decoded so far are returned.
//
// A block whose byte count is not a multiple of width still ends on a whole
// block, so decoding carries on to the end of the reply with the odd byte
// dropped and ErrPartialSample is returned afterwards.  Any other error leaves
// part of the reply unread.
func DecodeCurve(r BinaryReader, width int) ([]Frame, error) {
	if width != 1 && width != 2 {
		return nil, errors.Errorf("tektronix: data width must be 1 or 2, got %d", width)
	}
	var (
		frames  []Frame
		partial error
	)
	for {
		payload, err := readBlock(r)
		if err != nil {
			return frames, err
		}
		samples, err := unpack(payload, width)
		if err != nil && partial == nil {
			partial = err
		}
		frames = append(frames, Frame{Samples: samples, CRC: ccitt.CalculateCRC(payload)})

		term, err := r.ReadBinary(1)
		if err != nil {
			return frames, err
		}
		switch term[0] {
		case blockMore:
			continue
		case blockEnd:
			return frames, partial
		default:
			return frames, errors.Wrapf(ErrOutOfSync, "terminator %q after frame %d", term[0], len(frames))
		}
	}
}

// readBlock reads one IEEE 488.2 definite length block and returns its payload
func readBlock(r BinaryReader) ([]byte, error) {
	start, err := r.ReadBinary(1)
	if err != nil {
		return nil, err
	}
	if start[0] != blockStart {
		return nil, errors.Wrapf(ErrOutOfSync, "block starts with %q", start[0])
	}
	digit, err := r.ReadBinary(1)
	if err != nil {
		return nil, err
	}
	y := int(digit[0] - '0')
	if y < 1 || y > 9 {
		return nil, errors.Wrapf(ErrBadHeader, "digit count %q", digit[0])
	}
	count, err := r.ReadBinary(y)
	if err != nil {
		return nil, err
	}
	n, err := strconv.ParseUint(string(count), 10, 32)
	if err != nil || n > maxBlockBytes {
		return nil, errors.Wrapf(ErrBadHeader, "byte count %q", count)
	}
	log.Debug("curve block #%d%s", y, count)
	if n == 0 {
		return []byte{}, nil
	}
	return r.ReadBinary(int(n))
}

// unpack converts a payload to big endian signed samples.  A trailing
// partial sample is dropped and reported.
func unpack(payload []byte, width int) (oscilloscope.Data, error) {
	var err error
	if odd := len(payload) % width; odd != 0 {
		err = errors.Wrapf(ErrPartialSample, "%d bytes at width %d", len(payload), width)
		payload = payload[:len(payload)-odd]
	}
	if width == 1 {
		out := make([]int8, len(payload))
		for i, b := range payload {
			out[i] = int8(b)
		}
		return out, err
	}
	out := make([]int16, len(payload)/2)
	for i := range out {
		out[i] = int16(binary.BigEndian.Uint16(payload[2*i:]))
	}
	return out, err
}

// ETag combines the CRCs of a set of frames into an HTTP entity tag
func ETag(frames []Frame) string {
	buf := make([]byte, 0, 8*len(frames))
	for _, f := range frames {
		buf = binary.BigEndian.AppendUint64(buf, f.CRC)
	}
	return fmt.Sprintf("\"%04x\"", ccitt.CalculateCRC(buf))
}

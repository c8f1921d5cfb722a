package tektronix

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/budker-phys/gpiblab/log"
	"github.com/budker-phys/gpiblab/oscilloscope"
)

// ErrUnsupportedEncoding is returned by ReadWaveform when the scope is set to
// an encoding the driver does not decode
var ErrUnsupportedEncoding = errors.New("tektronix: unsupported data encoding")

// Curve is the result of ReadWaveform.  Text is set for ASCII transfers,
// Frames for binary.
type Curve struct {
	Encoding string  `json:"encoding"`
	Text     string  `json:"text,omitempty"`
	Frames   []Frame `json:"frames,omitempty"`
}

// ReadWaveform reads the waveform in whichever encoding the driver currently
// has cached
func (t *TDS540) ReadWaveform() (Curve, error) {
	mode := strings.ToUpper(t.s.DataMode)
	switch mode {
	case EncodingASCII:
		txt, err := t.ReadASCIIWaveform()
		return Curve{Encoding: mode, Text: txt}, err
	case EncodingRIB:
		frames, err := t.ReadBinaryWaveform()
		return Curve{Encoding: mode, Frames: frames}, err
	default:
		return Curve{Encoding: mode}, errors.Wrapf(ErrUnsupportedEncoding, "%q", t.s.DataMode)
	}
}

// ReadASCIIWaveform switches the scope to ASCII transfer if needed and returns
// the curve as the comma separated text the scope sends
func (t *TDS540) ReadASCIIWaveform() (string, error) {
	if !strings.EqualFold(t.s.DataMode, EncodingASCII) {
		if err := t.dev.Write(setCmd(cmdDataEncoding, "ascii")); err != nil {
			return "", err
		}
		t.s.DataMode = EncodingASCII
	}
	if err := t.dev.Write(cmdCurve); err != nil {
		return "", err
	}
	var b strings.Builder
	for {
		chunk, err := t.dev.Read(lenCurveChunk)
		b.WriteString(chunk)
		if err != nil {
			return b.String(), err
		}
		if strings.HasSuffix(chunk, "\n") {
			break
		}
	}
	return strings.TrimRight(b.String(), "\r\n"), nil
}

// ReadBinaryWaveform switches the scope to signed binary transfer if needed
// and returns one frame per data source
func (t *TDS540) ReadBinaryWaveform() ([]Frame, error) {
	if !strings.EqualFold(t.s.DataMode, EncodingRIB) {
		if err := t.dev.Write(setCmd(cmdDataEncoding, "ribinary")); err != nil {
			return nil, err
		}
		t.s.DataMode = EncodingRIB
	}
	if _, err := t.VerifyDataWidth(); err != nil {
		return nil, err
	}
	width, err := strconv.Atoi(t.s.DataWidth)
	if err != nil {
		return nil, errors.Errorf("tektronix: data width %q is not a number", t.s.DataWidth)
	}
	if err := t.dev.Write(cmdCurve); err != nil {
		return nil, err
	}
	frames, err := DecodeCurve(t.dev, width)
	sources := t.s.Sources()
	for i := range frames {
		if i < len(sources) {
			frames[i].Source = sources[i]
		}
	}
	if err != nil {
		t.resync(err)
		return frames, err
	}
	if len(frames) != len(sources) {
		log.Warning("read %d frames but %d data sources are configured (%s)",
			len(frames), len(sources), t.s.DataSource)
	}
	return frames, nil
}

// resync throws away what is left of a reply the decoder gave up on, so the
// next query reads its own reply and not the tail of the curve
func (t *TDS540) resync(err error) {
	if !errors.Is(err, ErrOutOfSync) && !errors.Is(err, ErrBadHeader) {
		return
	}
	d, ok := t.dev.(Drainer)
	if !ok {
		return
	}
	n, derr := d.Drain()
	if derr != nil {
		log.Error("draining after %v: %v", err, derr)
		return
	}
	log.Warning("discarded %d bytes after %v", n, err)
}

// queryFloat queries a numeric value
func (t *TDS540) queryFloat(q string, length int) (float64, error) {
	resp, err := t.query(q, length)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(resp, 64)
	if err != nil {
		return 0, errors.Errorf("tektronix: %s replied %q, not a number", q, resp)
	}
	return f, nil
}

// AcquireWaveform reads the given sources in binary and scales them with the
// preamble of each source.  With no sources, the configured ones are read.
func (t *TDS540) AcquireWaveform(sources ...string) (oscilloscope.Waveform, error) {
	wav := oscilloscope.Waveform{Channels: map[string]oscilloscope.Channel{}}
	if len(sources) > 0 {
		if _, err := t.SetReadChannels(sources...); err != nil {
			return wav, err
		}
	}
	frames, err := t.ReadBinaryWaveform()
	if err != nil {
		return wav, err
	}
	for i, f := range frames {
		src := f.Source
		if src == "" {
			src = "FRAME" + strconv.Itoa(i+1)
		}
		pre := func(field string, length int) (float64, error) {
			return t.queryFloat(queryCmd(cmdPreamble+":"+src+":"+field), length)
		}
		var ch oscilloscope.Channel
		ch.Data = f.Samples
		if i == 0 {
			if wav.DT, err = pre("xincr", lenHorizScale); err != nil {
				return wav, err
			}
		}
		if ch.Scale, err = pre("ymult", lenHorizScale); err != nil {
			return wav, err
		}
		if ch.Reference, err = pre("yoff", lenHorizScale); err != nil {
			return wav, err
		}
		if ch.Offset, err = pre("yzero", lenHorizScale); err != nil {
			return wav, err
		}
		wav.Channels[src] = ch
	}
	return wav, nil
}

// Package tektronix contains a driver for the Tektronix TDS540 series of
// digitizing oscilloscopes.
//
// The driver mirrors the scope's configuration in a local cache.  Setters
// write a command, update the cache, and read the value back; the scope's
// reply always wins.  Controls on the front panel therefore take precedence
// over the driver, and a setter reporting false means the cache was resynced
// to what the scope actually holds.
package tektronix

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/budker-phys/gpiblab/generichttp/ascii"
	"github.com/budker-phys/gpiblab/log"
	"github.com/budker-phys/gpiblab/oscilloscope"
)

// Instrument is the transport the driver talks through.  *gpib.Device
// satisfies it.
type Instrument interface {
	Write(command string) error
	Read(length int) (string, error)
	ReadBinary(length int) ([]byte, error)
}

// Drainer is implemented by instruments which can discard the rest of a
// reply, as *gpib.Device does
type Drainer interface {
	Drain() (int, error)
}

// Settings is the driver's view of the scope's configuration.  Every value is
// the text the scope last replied with, without the terminator.
type Settings struct {
	DataMode           string            `json:"dataMode" yaml:"DataMode"`
	AcquireMode        string            `json:"acquireMode" yaml:"AcquireMode"`
	DataWidth          string            `json:"dataWidth" yaml:"DataWidth"`
	HorizontalScale    string            `json:"horizontalScale" yaml:"HorizontalScale"`
	HorizontalPosition string            `json:"horizontalPosition" yaml:"HorizontalPosition"`
	RecordLength       string            `json:"recordLength" yaml:"RecordLength"`
	StartPoint         string            `json:"startPoint" yaml:"StartPoint"`
	StopPoint          string            `json:"stopPoint" yaml:"StopPoint"`
	NumPoints          int               `json:"numPoints" yaml:"NumPoints"`
	DataSource         string            `json:"dataSource" yaml:"DataSource"`
	VerticalScale      map[string]string `json:"verticalScale" yaml:"VerticalScale"`
	VerticalPosition   map[string]string `json:"verticalPosition" yaml:"VerticalPosition"`
	TriggerChannel     string            `json:"triggerChannel" yaml:"TriggerChannel"`
	TriggerLevel       string            `json:"triggerLevel" yaml:"TriggerLevel"`
	TriggerType        string            `json:"triggerType" yaml:"TriggerType"`
}

func (s Settings) clone() Settings {
	out := s
	out.VerticalScale = make(map[string]string, len(s.VerticalScale))
	for k, v := range s.VerticalScale {
		out.VerticalScale[k] = v
	}
	out.VerticalPosition = make(map[string]string, len(s.VerticalPosition))
	for k, v := range s.VerticalPosition {
		out.VerticalPosition[k] = v
	}
	return out
}

// Sources returns the data sources as a list
func (s Settings) Sources() []string {
	if s.DataSource == "" {
		return nil
	}
	return strings.Split(s.DataSource, ",")
}

// TDS540 is a Tektronix TDS540 oscilloscope
type TDS540 struct {
	dev Instrument
	s   Settings
}

var _ oscilloscope.Scope = (*TDS540)(nil)

// New syncs a driver to the scope behind dev.  Nothing on the scope is
// changed; every field of the cache is read from the instrument.
func New(dev Instrument) (*TDS540, error) {
	t := &TDS540{
		dev: dev,
		s: Settings{
			VerticalScale:    make(map[string]string, len(Channels)),
			VerticalPosition: make(map[string]string, len(Channels)),
		},
	}
	if err := t.Sync(); err != nil {
		return nil, err
	}
	return t, nil
}

// Sync re-reads every field of the cache from the scope
func (t *TDS540) Sync() error {
	var err error
	read := func(dst *string, header string, length int) {
		if err != nil {
			return
		}
		*dst, err = t.query(queryCmd(header), length)
	}
	read(&t.s.DataMode, cmdDataEncoding, lenDataMode)
	read(&t.s.AcquireMode, cmdAcquireMode, lenAcquireMode)
	read(&t.s.DataWidth, cmdDataWidth, lenDataWidth)
	read(&t.s.HorizontalScale, cmdHorizScale, lenHorizScale)
	read(&t.s.RecordLength, cmdHorizRecordLen, lenRecordLength)
	read(&t.s.StartPoint, cmdDataStart, lenStartPoint)
	read(&t.s.StopPoint, cmdDataStop, lenStopPoint)
	read(&t.s.DataSource, cmdDataSource, lenDataSource)
	for _, ch := range Channels {
		var v string
		read(&v, channelHeader(ch, cmdVerticalScale), lenVertical)
		t.s.VerticalScale[ch] = v
		read(&v, channelHeader(ch, cmdVerticalPosition), lenVertical)
		t.s.VerticalPosition[ch] = v
	}
	read(&t.s.HorizontalPosition, cmdHorizPosition, lenHorizPos)
	read(&t.s.TriggerChannel, cmdTriggerSource, lenTriggerChan)
	read(&t.s.TriggerLevel, cmdTriggerLevel, lenTriggerLevel)
	read(&t.s.TriggerType, cmdTriggerType, lenTriggerType)
	if err != nil {
		return err
	}
	t.s.NumPoints = numPoints(t.s.StartPoint, t.s.StopPoint)
	return nil
}

// Settings returns a copy of the cache
func (t *TDS540) Settings() Settings {
	return t.s.clone()
}

// query writes a query and reads the reply, in chunks of length until the
// terminator arrives
func (t *TDS540) query(q string, length int) (string, error) {
	if err := t.dev.Write(q); err != nil {
		return "", err
	}
	var b strings.Builder
	for {
		chunk, err := t.dev.Read(length)
		if err != nil {
			return "", errors.Wrapf(err, "tektronix: %s", q)
		}
		b.WriteString(chunk)
		if strings.HasSuffix(chunk, "\n") || chunk == "" {
			break
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// verify reads header back from the scope and reconciles *field with it
func (t *TDS540) verify(field *string, header string, length int) (bool, error) {
	actual, err := t.query(queryCmd(header), length)
	if err != nil {
		return false, err
	}
	if sameValue(actual, *field) {
		*field = actual
		return true, nil
	}
	log.Warning("%s is %q on the scope, driver had %q; resynced", header, actual, *field)
	*field = actual
	return false, nil
}

// setVerify writes header arg, caches arg, and verifies it
func (t *TDS540) setVerify(field *string, header, arg string, length int) (bool, error) {
	if err := t.dev.Write(setCmd(header, arg)); err != nil {
		return false, err
	}
	*field = arg
	return t.verify(field, header, length)
}

// sameValue compares a reply to the cached value.  Replies are case
// insensitive, and numbers come back in NR3 form (5.0E-3 for 0.005), so two
// values that parse as the same float are the same.
func sameValue(actual, cached string) bool {
	if strings.EqualFold(actual, cached) {
		return true
	}
	a, errA := strconv.ParseFloat(actual, 64)
	c, errC := strconv.ParseFloat(cached, 64)
	return errA == nil && errC == nil && a == c
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func numPoints(start, stop string) int {
	st, err1 := strconv.Atoi(start)
	sp, err2 := strconv.Atoi(stop)
	if err1 != nil || err2 != nil {
		return 0
	}
	return sp - st + 1
}

// SetDataMode sets the waveform encoding; ascii, ribinary, or one of the
// other tokens
func (t *TDS540) SetDataMode(mode string) (bool, error) {
	tok, err := EncodingToken(mode)
	if err != nil {
		return false, err
	}
	return t.setVerify(&t.s.DataMode, cmdDataEncoding, tok, lenDataMode)
}

// SetDataModeASCII selects ASCII waveform transfer
func (t *TDS540) SetDataModeASCII() (bool, error) {
	return t.SetDataMode(EncodingASCII)
}

// SetDataModeBinary selects signed big endian binary waveform transfer
func (t *TDS540) SetDataModeBinary() (bool, error) {
	return t.SetDataMode(EncodingRIB)
}

// QueryDataMode returns the scope's data encoding
func (t *TDS540) QueryDataMode() (string, error) {
	return t.query(queryCmd(cmdDataEncoding), lenDataMode)
}

// VerifyDataMode reconciles the cached data encoding with the scope
func (t *TDS540) VerifyDataMode() (bool, error) {
	return t.verify(&t.s.DataMode, cmdDataEncoding, lenDataMode)
}

// SetAcquireMode sets the acquire mode; sample, hires, average, peakdetect, or envelope
func (t *TDS540) SetAcquireMode(mode string) (bool, error) {
	tok, err := AcquireModeToken(mode)
	if err != nil {
		return false, err
	}
	return t.setVerify(&t.s.AcquireMode, cmdAcquireMode, tok, lenAcquireMode)
}

// QueryAcquireMode returns the scope's acquire mode
func (t *TDS540) QueryAcquireMode() (string, error) {
	return t.query(queryCmd(cmdAcquireMode), lenAcquireMode)
}

// VerifyAcquireMode reconciles the cached acquire mode with the scope
func (t *TDS540) VerifyAcquireMode() (bool, error) {
	return t.verify(&t.s.AcquireMode, cmdAcquireMode, lenAcquireMode)
}

// SetDataWidth sets the number of bytes per binary sample, 1 or 2
func (t *TDS540) SetDataWidth(width int) (bool, error) {
	if width != 1 && width != 2 {
		return false, errors.Errorf("tektronix: data width must be 1 or 2, got %d", width)
	}
	return t.setVerify(&t.s.DataWidth, cmdDataWidth, strconv.Itoa(width), lenDataWidth)
}

// QueryDataWidth returns the scope's data width
func (t *TDS540) QueryDataWidth() (string, error) {
	return t.query(queryCmd(cmdDataWidth), lenDataWidth)
}

// VerifyDataWidth reconciles the cached data width with the scope
func (t *TDS540) VerifyDataWidth() (bool, error) {
	return t.verify(&t.s.DataWidth, cmdDataWidth, lenDataWidth)
}

// SetHorizontalScale sets the main timebase in seconds per division.
// The scope snaps to its 1-2-5 sequence, so arbitrary values come back false.
func (t *TDS540) SetHorizontalScale(secondsPerDiv float64) (bool, error) {
	return t.setVerify(&t.s.HorizontalScale, cmdHorizScale, formatFloat(secondsPerDiv), lenHorizScale)
}

// QueryHorizontalScale returns the scope's timebase
func (t *TDS540) QueryHorizontalScale() (string, error) {
	return t.query(queryCmd(cmdHorizScale), lenHorizScale)
}

// VerifyHorizontalScale reconciles the cached timebase with the scope
func (t *TDS540) VerifyHorizontalScale() (bool, error) {
	return t.verify(&t.s.HorizontalScale, cmdHorizScale, lenHorizScale)
}

// SetHorizontalPosition sets the trigger position within the record, in percent
func (t *TDS540) SetHorizontalPosition(percent float64) (bool, error) {
	return t.setVerify(&t.s.HorizontalPosition, cmdHorizPosition, formatFloat(percent), lenHorizPos)
}

// QueryHorizontalPosition returns the scope's horizontal position
func (t *TDS540) QueryHorizontalPosition() (string, error) {
	return t.query(queryCmd(cmdHorizPosition), lenHorizPos)
}

// VerifyHorizontalPosition reconciles the cached horizontal position with the scope
func (t *TDS540) VerifyHorizontalPosition() (bool, error) {
	return t.verify(&t.s.HorizontalPosition, cmdHorizPosition, lenHorizPos)
}

// SetRecordLength sets the number of points the scope acquires
func (t *TDS540) SetRecordLength(points int) (bool, error) {
	if points <= 0 {
		return false, errors.Errorf("tektronix: record length must be positive, got %d", points)
	}
	return t.setVerify(&t.s.RecordLength, cmdHorizRecordLen, strconv.Itoa(points), lenRecordLength)
}

// QueryRecordLength returns the scope's record length
func (t *TDS540) QueryRecordLength() (string, error) {
	return t.query(queryCmd(cmdHorizRecordLen), lenRecordLength)
}

// VerifyRecordLength reconciles the cached record length with the scope
func (t *TDS540) VerifyRecordLength() (bool, error) {
	return t.verify(&t.s.RecordLength, cmdHorizRecordLen, lenRecordLength)
}

// SetReadLength reads points 1 through points of the record
func (t *TDS540) SetReadLength(points int) (bool, error) {
	return t.SetReadLengthPoints(1, points)
}

// SetReadLengthPoints sets the window of the record a waveform read returns.
// Both ends are inclusive.
func (t *TDS540) SetReadLengthPoints(start, stop int) (bool, error) {
	if start < 1 || stop < start {
		return false, errors.Errorf("tektronix: bad read window %d to %d", start, stop)
	}
	if err := t.dev.Write(setCmd(cmdDataStart, strconv.Itoa(start))); err != nil {
		return false, err
	}
	if err := t.dev.Write(setCmd(cmdDataStop, strconv.Itoa(stop))); err != nil {
		return false, err
	}
	t.s.StartPoint = strconv.Itoa(start)
	t.s.StopPoint = strconv.Itoa(stop)
	t.s.NumPoints = stop - start + 1
	return t.VerifyReadLength()
}

// QueryReadStartStopPoints returns the scope's read window
func (t *TDS540) QueryReadStartStopPoints() (start, stop string, err error) {
	start, err = t.query(queryCmd(cmdDataStart), lenStartPoint)
	if err != nil {
		return
	}
	stop, err = t.query(queryCmd(cmdDataStop), lenStopPoint)
	return
}

// QueryReadLength returns the number of points in the scope's read window
func (t *TDS540) QueryReadLength() (int, error) {
	start, stop, err := t.QueryReadStartStopPoints()
	if err != nil {
		return 0, err
	}
	return numPoints(start, stop), nil
}

// VerifyReadLength reconciles the cached read window with the scope
func (t *TDS540) VerifyReadLength() (bool, error) {
	start, stop, err := t.QueryReadStartStopPoints()
	if err != nil {
		return false, err
	}
	n := numPoints(start, stop)
	if sameValue(start, t.s.StartPoint) && sameValue(stop, t.s.StopPoint) && n == t.s.NumPoints {
		return true, nil
	}
	log.Warning("read window is %s-%s on the scope, driver had %s-%s; resynced",
		start, stop, t.s.StartPoint, t.s.StopPoint)
	t.s.StartPoint, t.s.StopPoint, t.s.NumPoints = start, stop, n
	return false, nil
}

// SetReadChannels selects the sources curve? returns, in order.  Any of
// CH1-CH4, MATH1-MATH3, REF1-REF4 are allowed, in the forms NormalizeSource
// understands.
func (t *TDS540) SetReadChannels(sources ...string) (bool, error) {
	if len(sources) == 0 {
		return false, errors.Errorf("tektronix: no data sources given")
	}
	norm := make([]string, len(sources))
	for i, s := range sources {
		src, err := oscilloscope.NormalizeSource(s)
		if err != nil {
			return false, err
		}
		norm[i] = src
	}
	return t.setVerify(&t.s.DataSource, cmdDataSource, strings.Join(norm, ","), lenDataSource)
}

// QueryReadChannels returns the scope's data sources
func (t *TDS540) QueryReadChannels() (string, error) {
	return t.query(queryCmd(cmdDataSource), lenDataSource)
}

// VerifyReadChannels reconciles the cached data sources with the scope
func (t *TDS540) VerifyReadChannels() (bool, error) {
	return t.verify(&t.s.DataSource, cmdDataSource, lenDataSource)
}

// SetVerticalScale sets a channel's scale in volts per division
func (t *TDS540) SetVerticalScale(channel string, voltsPerDiv float64) (bool, error) {
	ch, err := channelToken(channel)
	if err != nil {
		return false, err
	}
	v := t.s.VerticalScale[ch]
	ok, err := t.setVerify(&v, channelHeader(ch, cmdVerticalScale), formatFloat(voltsPerDiv), lenVertical)
	t.s.VerticalScale[ch] = v
	return ok, err
}

// QueryVerticalScale returns a channel's scale
func (t *TDS540) QueryVerticalScale(channel string) (string, error) {
	ch, err := channelToken(channel)
	if err != nil {
		return "", err
	}
	return t.query(queryCmd(channelHeader(ch, cmdVerticalScale)), lenVertical)
}

// VerifyVerticalScale reconciles a channel's cached scale with the scope
func (t *TDS540) VerifyVerticalScale(channel string) (bool, error) {
	ch, err := channelToken(channel)
	if err != nil {
		return false, err
	}
	v := t.s.VerticalScale[ch]
	ok, err := t.verify(&v, channelHeader(ch, cmdVerticalScale), lenVertical)
	t.s.VerticalScale[ch] = v
	return ok, err
}

// VerifyAllVerticalScales verifies every channel, even after one fails
func (t *TDS540) VerifyAllVerticalScales() (bool, error) {
	return t.verifyAll(t.VerifyVerticalScale)
}

// SetVerticalPosition sets a channel's position in divisions
func (t *TDS540) SetVerticalPosition(channel string, divisions float64) (bool, error) {
	ch, err := channelToken(channel)
	if err != nil {
		return false, err
	}
	v := t.s.VerticalPosition[ch]
	ok, err := t.setVerify(&v, channelHeader(ch, cmdVerticalPosition), formatFloat(divisions), lenVertical)
	t.s.VerticalPosition[ch] = v
	return ok, err
}

// QueryVerticalPosition returns a channel's position
func (t *TDS540) QueryVerticalPosition(channel string) (string, error) {
	ch, err := channelToken(channel)
	if err != nil {
		return "", err
	}
	return t.query(queryCmd(channelHeader(ch, cmdVerticalPosition)), lenVertical)
}

// VerifyVerticalPosition reconciles a channel's cached position with the scope
func (t *TDS540) VerifyVerticalPosition(channel string) (bool, error) {
	ch, err := channelToken(channel)
	if err != nil {
		return false, err
	}
	v := t.s.VerticalPosition[ch]
	ok, err := t.verify(&v, channelHeader(ch, cmdVerticalPosition), lenVertical)
	t.s.VerticalPosition[ch] = v
	return ok, err
}

// VerifyAllVerticalPositions verifies every channel, even after one fails
func (t *TDS540) VerifyAllVerticalPositions() (bool, error) {
	return t.verifyAll(t.VerifyVerticalPosition)
}

func (t *TDS540) verifyAll(verify func(string) (bool, error)) (bool, error) {
	all := true
	for _, ch := range Channels {
		ok, err := verify(ch)
		if err != nil {
			return false, err
		}
		all = all && ok
	}
	return all, nil
}

// SetTriggerChannel sets the edge trigger source; CH1-CH4, line, or aux
func (t *TDS540) SetTriggerChannel(source string) (bool, error) {
	tok, err := TriggerSourceToken(source)
	if err != nil {
		return false, err
	}
	return t.setVerify(&t.s.TriggerChannel, cmdTriggerSource, tok, lenTriggerChan)
}

// QueryTriggerChannel returns the scope's trigger source
func (t *TDS540) QueryTriggerChannel() (string, error) {
	return t.query(queryCmd(cmdTriggerSource), lenTriggerChan)
}

// VerifyTriggerChannel reconciles the cached trigger source with the scope
func (t *TDS540) VerifyTriggerChannel() (bool, error) {
	return t.verify(&t.s.TriggerChannel, cmdTriggerSource, lenTriggerChan)
}

// SetTriggerLevel sets the main trigger level in volts
func (t *TDS540) SetTriggerLevel(volts float64) (bool, error) {
	return t.setVerify(&t.s.TriggerLevel, cmdTriggerLevel, formatFloat(volts), lenTriggerLevel)
}

// QueryTriggerLevel returns the scope's trigger level
func (t *TDS540) QueryTriggerLevel() (string, error) {
	return t.query(queryCmd(cmdTriggerLevel), lenTriggerLevel)
}

// VerifyTriggerLevel reconciles the cached trigger level with the scope
func (t *TDS540) VerifyTriggerLevel() (bool, error) {
	return t.verify(&t.s.TriggerLevel, cmdTriggerLevel, lenTriggerLevel)
}

// SetTriggerType sets the main trigger type; edge, logic, pulse, communication, or video
func (t *TDS540) SetTriggerType(typ string) (bool, error) {
	tok, err := TriggerTypeToken(typ)
	if err != nil {
		return false, err
	}
	return t.setVerify(&t.s.TriggerType, cmdTriggerType, tok, lenTriggerType)
}

// QueryTriggerType returns the scope's trigger type
func (t *TDS540) QueryTriggerType() (string, error) {
	return t.query(queryCmd(cmdTriggerType), lenTriggerType)
}

// VerifyTriggerType reconciles the cached trigger type with the scope
func (t *TDS540) VerifyTriggerType() (bool, error) {
	return t.verify(&t.s.TriggerType, cmdTriggerType, lenTriggerType)
}

// VerifyAllFields verifies every cached setting and returns true only if none
// needed resyncing
func (t *TDS540) VerifyAllFields() (bool, error) {
	checks := []func() (bool, error){
		t.VerifyDataMode,
		t.VerifyAcquireMode,
		t.VerifyDataWidth,
		t.VerifyHorizontalScale,
		t.VerifyRecordLength,
		t.VerifyReadLength,
		t.VerifyReadChannels,
		t.VerifyAllVerticalScales,
		t.VerifyAllVerticalPositions,
		t.VerifyHorizontalPosition,
		t.VerifyTriggerChannel,
		t.VerifyTriggerLevel,
		t.VerifyTriggerType,
	}
	all := true
	for _, check := range checks {
		ok, err := check()
		if err != nil {
			return false, err
		}
		all = all && ok
	}
	return all, nil
}

// QueryWaveformPreamble returns the waveform preamble of a source
func (t *TDS540) QueryWaveformPreamble(source string) (string, error) {
	src, err := oscilloscope.NormalizeSource(source)
	if err != nil {
		return "", err
	}
	return t.query(queryCmd(cmdPreamble+":"+src), lenPreamble)
}

// Raw sends a command and, if it is a query, returns the reply
func (t *TDS540) Raw(command string) (string, error) {
	if !ascii.IsQuery(command) {
		return "", t.dev.Write(command)
	}
	return t.query(command, lenCurveChunk)
}

package tektronix

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/budker-phys/gpiblab/oscilloscope"
)

// IDN is the identification string the simulator replies to *idn? with
const IDN = "TEKTRONIX,TDS 540,0,CF:91.1CT FV:v2.1e (simulated)"

// RecordLengths are the record lengths the TDS540 supports
var RecordLengths = []int{500, 1000, 2500, 5000, 15000, 50000}

const (
	minHorizScale = 500e-12
	maxHorizScale = 10
	minVertScale  = 1e-3
	maxVertScale  = 10

	// digitizer levels per division at each data width
	dnPerDiv8  = 25
	dnPerDiv16 = 25 * 256
)

// Simulator behaves like a TDS540 on the far side of a link.  Commands
// written to it change its state, and replies to queries are read back from
// it.  Settings the scope would clamp or snap are clamped or snapped, and
// arguments it would not understand are ignored.
type Simulator struct {
	mu       sync.Mutex
	in       bytes.Buffer
	out      bytes.Buffer
	received []string
	closed   bool

	encoding     string
	acquire      string
	width        int
	horizScale   float64
	horizPos     float64
	recordLength int
	start, stop  int
	sources      []string
	vertScale    map[string]float64
	vertPos      map[string]float64
	trigSource   string
	trigLevel    float64
	trigType     string
	curves       map[string][]int16
}

// NewSimulator returns a simulator in a typical power on state
func NewSimulator() *Simulator {
	s := &Simulator{
		encoding:     EncodingRIB,
		acquire:      AcquireSample,
		width:        1,
		horizScale:   500e-6,
		horizPos:     50,
		recordLength: 500,
		start:        1,
		stop:         500,
		sources:      []string{"CH1"},
		vertScale:    map[string]float64{},
		vertPos:      map[string]float64{},
		trigSource:   "CH1",
		trigType:     TriggerEdge,
		curves:       map[string][]int16{},
	}
	for _, ch := range Channels {
		s.vertScale[ch] = 1
		s.vertPos[ch] = 0
	}
	return s
}

// Write accepts newline terminated commands, several to a line if separated
// by semicolons
func (s *Simulator) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	s.in.Write(b)
	for {
		line, err := s.in.ReadString('\n')
		if err != nil {
			// incomplete command, keep it for the next write
			s.in.Reset()
			s.in.WriteString(line)
			break
		}
		for _, cmd := range strings.Split(strings.TrimSpace(line), ";") {
			if cmd = strings.TrimSpace(cmd); cmd != "" {
				s.received = append(s.received, cmd)
				s.handle(cmd)
			}
		}
	}
	return len(b), nil
}

// Read returns pending reply bytes, or io.EOF if there are none
func (s *Simulator) Read(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	return s.out.Read(b)
}

// Close stops the simulator
func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Received returns every command the simulator has been sent
func (s *Simulator) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

// FrontPanel changes a setting as an operator at the scope would.  header is
// a set command header such as "acquire:mode" or "CH2:scale".  Nothing is
// recorded as received.
func (s *Simulator) FrontPanel(header, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(strings.ToLower(header), value)
}

// LoadCurve replaces the generated trace of a source with fixed samples.
// At a data width of 1 only the low byte of each sample is sent.
func (s *Simulator) LoadCurve(source string, samples []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if src, err := oscilloscope.NormalizeSource(source); err == nil {
		s.curves[src] = append([]int16(nil), samples...)
	}
}

func (s *Simulator) handle(cmd string) {
	header, arg := cmd, ""
	if i := strings.IndexByte(cmd, ' '); i >= 0 {
		header, arg = cmd[:i], strings.TrimSpace(cmd[i+1:])
	}
	header = strings.ToLower(header)
	if strings.HasSuffix(header, "?") {
		if reply, ok := s.reply(strings.TrimSuffix(header, "?")); ok {
			s.out.WriteString(reply)
		}
		return
	}
	s.apply(header, arg)
}

// apply changes state.  The caller holds the lock.
func (s *Simulator) apply(header, arg string) {
	switch header {
	case cmdAcquireMode:
		if tok, err := AcquireModeToken(arg); err == nil {
			s.acquire = tok
		}
	case cmdDataEncoding:
		if tok, err := EncodingToken(arg); err == nil {
			s.encoding = tok
		}
	case cmdDataWidth:
		if w, err := strconv.Atoi(arg); err == nil && (w == 1 || w == 2) {
			s.width = w
		}
	case cmdDataStart:
		if n, err := strconv.Atoi(arg); err == nil {
			s.start = clampInt(n, 1, s.recordLength)
		}
	case cmdDataStop:
		if n, err := strconv.Atoi(arg); err == nil {
			s.stop = clampInt(n, 1, s.recordLength)
		}
	case cmdDataSource:
		srcs, err := oscilloscope.SplitSources(arg)
		if err == nil && len(srcs) > 0 {
			s.sources = srcs
		}
	case cmdTriggerSource:
		if tok, err := TriggerSourceToken(arg); err == nil {
			s.trigSource = tok
		}
	case cmdTriggerLevel:
		if f, err := strconv.ParseFloat(arg, 64); err == nil {
			lim := 10.
			if sc, ok := s.vertScale[s.trigSource]; ok {
				lim = 10 * sc
			}
			s.trigLevel = math.Max(-lim, math.Min(lim, f))
		}
	case cmdTriggerType:
		if tok, err := TriggerTypeToken(arg); err == nil {
			s.trigType = tok
		}
	case cmdHorizPosition:
		if f, err := strconv.ParseFloat(arg, 64); err == nil {
			s.horizPos = math.Max(0, math.Min(100, f))
		}
	case cmdHorizScale:
		if f, err := strconv.ParseFloat(arg, 64); err == nil && f > 0 {
			s.horizScale = snap125(f, minHorizScale, maxHorizScale)
		}
	case cmdHorizRecordLen:
		if n, err := strconv.Atoi(arg); err == nil {
			s.recordLength = nearestRecordLength(n)
			s.start = clampInt(s.start, 1, s.recordLength)
			s.stop = clampInt(s.stop, 1, s.recordLength)
		}
	default:
		ch, field, ok := splitChannelHeader(header)
		if !ok {
			return
		}
		f, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return
		}
		switch field {
		case cmdVerticalScale:
			if f > 0 {
				s.vertScale[ch] = snap125(f, minVertScale, maxVertScale)
			}
		case cmdVerticalPosition:
			s.vertPos[ch] = math.Max(-5, math.Min(5, f))
		}
	}
}

// reply answers a query header, without the ?.  The caller holds the lock.
func (s *Simulator) reply(header string) (string, bool) {
	var r string
	switch header {
	case "*idn":
		r = IDN
	case "curve":
		return s.curve(), true
	case cmdAcquireMode:
		r = s.acquire
	case cmdDataEncoding:
		r = s.encoding
	case cmdDataWidth:
		r = strconv.Itoa(s.width)
	case cmdDataStart:
		r = strconv.Itoa(s.start)
	case cmdDataStop:
		r = strconv.Itoa(s.stop)
	case cmdDataSource:
		r = strings.Join(s.sources, ",")
	case cmdTriggerSource:
		r = s.trigSource
	case cmdTriggerLevel:
		r = nr3(s.trigLevel)
	case cmdTriggerType:
		r = s.trigType
	case cmdHorizPosition:
		r = nr3(s.horizPos)
	case cmdHorizScale:
		r = nr3(s.horizScale)
	case cmdHorizRecordLen:
		r = strconv.Itoa(s.recordLength)
	default:
		if strings.HasPrefix(header, cmdPreamble+":") {
			return s.preamble(strings.TrimPrefix(header, cmdPreamble+":"))
		}
		ch, field, ok := splitChannelHeader(header)
		if !ok {
			return "", false
		}
		switch field {
		case cmdVerticalScale:
			r = nr3(s.vertScale[ch])
		case cmdVerticalPosition:
			r = nr3(s.vertPos[ch])
		default:
			return "", false
		}
	}
	return r + "\n", true
}

func (s *Simulator) dnPerDiv() float64 {
	if s.width == 2 {
		return dnPerDiv16
	}
	return dnPerDiv8
}

// preamble answers wfmpre:<src>? and wfmpre:<src>:<field>?
func (s *Simulator) preamble(rest string) (string, bool) {
	parts := strings.SplitN(rest, ":", 2)
	src, err := oscilloscope.NormalizeSource(parts[0])
	if err != nil {
		return "", false
	}
	scale, pos := 1., 0.
	if v, ok := s.vertScale[src]; ok {
		scale, pos = v, s.vertPos[src]
	}
	fields := map[string]string{
		"xincr": nr3(s.horizScale * 10 / float64(s.recordLength)),
		"ymult": nr3(scale / s.dnPerDiv()),
		"yoff":  nr3(pos * s.dnPerDiv()),
		"yzero": nr3(0),
	}
	if len(parts) == 2 {
		v, ok := fields[parts[1]]
		return v + "\n", ok
	}
	bnFmt, encdg := "RI", "BIN"
	if s.encoding == EncodingASCII {
		encdg = "ASC"
	}
	pre := fmt.Sprintf("BYT_NR %d;BIT_NR %d;ENCDG %s;BN_FMT %s;BYT_OR MSB;NR_PT %d;"+
		"WFID \"%s DC coupling, %sV/div, %ss/div, %d points, %s mode\";"+
		"PT_FMT Y;XINCR %s;PT_OFF 0;XUNIT \"s\";YMULT %s;YZERO %s;YOFF %s;YUNIT \"V\"",
		s.width, 8*s.width, encdg, bnFmt, s.stop-s.start+1,
		src, nr3(scale), nr3(s.horizScale), s.recordLength, s.acquire,
		fields["xincr"], fields["ymult"], fields["yzero"], fields["yoff"])
	return pre + "\n", true
}

// trace returns the samples for a source, full width
func (s *Simulator) trace(src string, n int) []int16 {
	if c, ok := s.curves[src]; ok {
		out := make([]int16, n)
		copy(out, c)
		return out
	}
	// a sine per source, a few cycles across the window
	phase := float64(sort.SearchStrings([]string{"CH1", "CH2", "CH3", "CH4"}, src))
	amp := 100.
	if s.width == 2 {
		amp *= 256
	}
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amp * math.Sin(2*math.Pi*float64(i)/100+phase))
	}
	return out
}

// curve renders a curve? response in the current encoding
func (s *Simulator) curve() string {
	n := s.stop - s.start + 1
	if n < 0 {
		n = 0
	}
	var b strings.Builder
	for i, src := range s.sources {
		if i > 0 {
			b.WriteByte(blockMore)
		}
		tr := s.trace(src, n)
		if s.encoding == EncodingASCII {
			for j, v := range tr {
				if j > 0 {
					b.WriteByte(',')
				}
				if s.width == 1 {
					v = int16(int8(v))
				}
				b.WriteString(strconv.Itoa(int(v)))
			}
			continue
		}
		payload := make([]byte, 0, n*s.width)
		for _, v := range tr {
			if s.width == 2 {
				payload = append(payload, byte(uint16(v)>>8))
			}
			payload = append(payload, byte(v))
		}
		count := strconv.Itoa(len(payload))
		b.WriteByte(blockStart)
		b.WriteString(strconv.Itoa(len(count)))
		b.WriteString(count)
		b.Write(payload)
	}
	b.WriteByte(blockEnd)
	return b.String()
}

// splitChannelHeader splits ch1:scale into CH1 and scale
func splitChannelHeader(header string) (string, string, bool) {
	parts := strings.SplitN(header, ":", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	ch, err := channelToken(parts[0])
	if err != nil || len(parts[0]) < 3 {
		return "", "", false
	}
	return ch, parts[1], true
}

// nr3 formats f the way the scope does, 5.0E-3
func nr3(f float64) string {
	str := strconv.FormatFloat(f, 'E', -1, 64)
	i := strings.IndexByte(str, 'E')
	mant, exp := str[:i], str[i+1:]
	if !strings.Contains(mant, ".") {
		mant += ".0"
	}
	e, _ := strconv.Atoi(exp)
	return mant + "E" + strconv.Itoa(e)
}

// snap125 returns the member of the 1-2-5 sequence nearest v, within [lo,hi]
func snap125(v, lo, hi float64) float64 {
	if v <= lo {
		return lo
	}
	if v >= hi {
		return hi
	}
	exp := int(math.Floor(math.Log10(v)))
	best, bestErr := v, math.Inf(1)
	for _, m := range []int{1, 2, 5, 10} {
		c, _ := strconv.ParseFloat(fmt.Sprintf("%de%d", m, exp), 64)
		if e := math.Abs(math.Log(v / c)); e < bestErr {
			best, bestErr = c, e
		}
	}
	return best
}

func nearestRecordLength(n int) int {
	best := RecordLengths[0]
	for _, l := range RecordLengths {
		if abs(n-l) < abs(n-best) {
			best = l
		}
	}
	return best
}

func clampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

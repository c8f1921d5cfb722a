package tektronix

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi"

	"github.com/budker-phys/gpiblab/generichttp"
	"github.com/budker-phys/gpiblab/generichttp/ascii"
	"github.com/budker-phys/gpiblab/generichttp/tmc"
	"github.com/budker-phys/gpiblab/oscilloscope"
)

// ReadWindow is the JSON form of the read window
type ReadWindow struct {
	Start  int `json:"start"`
	Stop   int `json:"stop"`
	Points int `json:"points,omitempty"`
}

// HTTPWrapper provides an HTTP interface to a TDS540.  The scope has one
// logical owner, so requests are handled one at a time.
type HTTPWrapper struct {
	// TDS is the underlying scope
	TDS *TDS540

	mu sync.Mutex

	// RouteTable maps routes to http handlers
	RouteTable generichttp.RouteTable
}

// NewHTTPWrapper returns a new HTTP wrapper with the route table pre-configured
func NewHTTPWrapper(t *TDS540) *HTTPWrapper {
	w := &HTTPWrapper{TDS: t, RouteTable: generichttp.RouteTable{}}
	rt := w.RouteTable
	tmc.HTTPScope(t, rt)
	ascii.InjectRawComm(w, t)

	get := func(path string, h http.HandlerFunc) {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: path}] = h
	}
	post := func(path string, h http.HandlerFunc) {
		rt[generichttp.MethodPath{Method: http.MethodPost, Path: path}] = h
	}

	get("/settings", w.settings)
	post("/sync", w.resync)
	post("/verify", generichttp.Verify(t.VerifyAllFields))

	get("/data-mode", generichttp.GetString(t.QueryDataMode))
	post("/data-mode", generichttp.SetString(t.SetDataMode))
	get("/data-width", generichttp.GetString(t.QueryDataWidth))
	post("/data-width", generichttp.SetInt(t.SetDataWidth))
	get("/horizontal-position", generichttp.GetString(t.QueryHorizontalPosition))
	post("/horizontal-position", generichttp.SetFloat(t.SetHorizontalPosition))
	get("/record-length", generichttp.GetString(t.QueryRecordLength))
	post("/record-length", generichttp.SetInt(t.SetRecordLength))
	get("/trigger/type", generichttp.GetString(t.QueryTriggerType))
	post("/trigger/type", generichttp.SetString(t.SetTriggerType))
	get("/read-length", w.readLength)
	post("/read-length", w.setReadLength)

	// readbacks for the generic scope setters
	get("/read-channels", generichttp.GetString(t.QueryReadChannels))
	get("/acquire-mode", generichttp.GetString(t.QueryAcquireMode))
	get("/trigger/channel", generichttp.GetString(t.QueryTriggerChannel))
	get("/read-points", generichttp.GetInt(t.QueryReadLength))
	get("/trigger/level", generichttp.GetFloat(numeric(t.QueryTriggerLevel)))
	get("/horizontal/scale", generichttp.GetFloat(numeric(t.QueryHorizontalScale)))
	get("/channel/{channel}/scale", w.channelQuery(t.QueryVerticalScale))
	get("/channel/{channel}/position", w.channelQuery(t.QueryVerticalPosition))

	get("/preamble/{source}", w.preamble)
	get("/curve", w.curve)
	get("/waveform", w.waveform)
	get("/waveform.csv", w.waveformCSV)

	for k, h := range rt {
		rt[k] = w.serialize(h)
	}
	return w
}

// RT satisfies generichttp.HTTPer
func (h *HTTPWrapper) RT() generichttp.RouteTable {
	return h.RouteTable
}

func (h *HTTPWrapper) serialize(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		defer h.mu.Unlock()
		next(w, r)
	}
}

// numeric adapts a query to a float getter
func numeric(query func() (string, error)) func() (float64, error) {
	return func() (float64, error) {
		resp, err := query()
		if err != nil {
			return 0, err
		}
		return strconv.ParseFloat(resp, 64)
	}
}

func (h *HTTPWrapper) settings(w http.ResponseWriter, r *http.Request) {
	generichttp.ReplyWithJSON(w, h.TDS.Settings())
}

func (h *HTTPWrapper) resync(w http.ResponseWriter, r *http.Request) {
	if err := h.TDS.Sync(); err != nil {
		generichttp.InternalError(w, err)
		return
	}
	generichttp.ReplyWithJSON(w, h.TDS.Settings())
}

func (h *HTTPWrapper) readLength(w http.ResponseWriter, r *http.Request) {
	start, stop, err := h.TDS.QueryReadStartStopPoints()
	if err != nil {
		generichttp.InternalError(w, err)
		return
	}
	st, _ := strconv.Atoi(start)
	sp, _ := strconv.Atoi(stop)
	generichttp.ReplyWithJSON(w, ReadWindow{Start: st, Stop: sp, Points: numPoints(start, stop)})
}

func (h *HTTPWrapper) setReadLength(w http.ResponseWriter, r *http.Request) {
	rw := ReadWindow{}
	err := json.NewDecoder(r.Body).Decode(&rw)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if rw.Start == 0 {
		rw.Start = 1
	}
	ok, err := h.TDS.SetReadLengthPoints(rw.Start, rw.Stop)
	if err != nil {
		generichttp.InternalError(w, err)
		return
	}
	generichttp.ReplyWithJSON(w, generichttp.BoolT{Bool: ok})
}

func (h *HTTPWrapper) channelQuery(fcn func(string) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, err := tmc.ChannelParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		generichttp.GetString(func() (string, error) { return fcn(ch) })(w, r)
	}
}

func (h *HTTPWrapper) preamble(w http.ResponseWriter, r *http.Request) {
	src := chi.URLParam(r, "source")
	generichttp.GetString(func() (string, error) { return h.TDS.QueryWaveformPreamble(src) })(w, r)
}

// curve reads the waveform in the cached encoding.  Binary reads carry an
// ETag built from the frame CRCs.
func (h *HTTPWrapper) curve(w http.ResponseWriter, r *http.Request) {
	c, err := h.TDS.ReadWaveform()
	if err != nil {
		generichttp.InternalError(w, err)
		return
	}
	if len(c.Frames) > 0 {
		tag := ETag(c.Frames)
		w.Header().Set("ETag", tag)
		if r.Header.Get("If-None-Match") == tag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	generichttp.ReplyWithJSON(w, c)
}

func (h *HTTPWrapper) acquire(r *http.Request) (oscilloscope.Waveform, error) {
	var srcs []string
	if q := r.URL.Query().Get("sources"); q != "" {
		var err error
		if srcs, err = oscilloscope.SplitSources(q); err != nil {
			return oscilloscope.Waveform{}, err
		}
	}
	return h.TDS.AcquireWaveform(srcs...)
}

func (h *HTTPWrapper) waveform(w http.ResponseWriter, r *http.Request) {
	wav, err := h.acquire(r)
	if err != nil {
		generichttp.InternalError(w, err)
		return
	}
	generichttp.ReplyWithJSON(w, wav)
}

func (h *HTTPWrapper) waveformCSV(w http.ResponseWriter, r *http.Request) {
	wav, err := h.acquire(r)
	if err != nil {
		generichttp.InternalError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=waveform.csv")
	if err := wav.EncodeCSV(w); err != nil {
		generichttp.InternalError(w, err)
	}
}

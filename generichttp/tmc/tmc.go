// Package tmc provides an HTTP interface to test and measurement devices
package tmc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi"

	"github.com/budker-phys/gpiblab/generichttp"
	"github.com/budker-phys/gpiblab/oscilloscope"
)

// quantity is the body of a numeric setter.  Either {"f64": 0.005} or
// {"str": "5mV"} is accepted.
type quantity struct {
	F64 *float64 `json:"f64"`
	Str string   `json:"str"`
}

func decodeQuantity(r *http.Request) (float64, error) {
	q := quantity{}
	err := json.NewDecoder(r.Body).Decode(&q)
	defer r.Body.Close()
	if err != nil {
		return 0, err
	}
	if q.F64 != nil {
		return *q.F64, nil
	}
	if q.Str == "" {
		return 0, fmt.Errorf("body must contain f64 or str")
	}
	return oscilloscope.ParseQuantity(q.Str)
}

func reply(w http.ResponseWriter, r *http.Request, ok bool, err error) {
	if err != nil {
		generichttp.InternalError(w, err)
		return
	}
	generichttp.ReplyWithJSON(w, generichttp.BoolT{Bool: ok})
}

func setQuantity(fcn func(float64) (bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := decodeQuantity(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ok, err := fcn(f)
		reply(w, r, ok, err)
	}
}

func setChannelQuantity(fcn func(string, float64) (bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ch, err := ChannelParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, err := decodeQuantity(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ok, err := fcn(ch, f)
		reply(w, r, ok, err)
	}
}

// ChannelParam returns the {channel} of the route as an analog input
func ChannelParam(r *http.Request) (string, error) {
	raw, err := url.PathUnescape(chi.URLParam(r, "channel"))
	if err != nil {
		return "", err
	}
	return oscilloscope.NormalizeChannel(raw)
}

// HTTPScope injects an HTTP interface to an oscilloscope into a route table.
// Every route is a POST which replies {"bool": ok}, false meaning the scope
// holds a different value than requested.
func HTTPScope(s oscilloscope.Scope, table generichttp.RouteTable) {
	rt := table
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/read-channels"}] = SetReadChannels(s)
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/read-points"}] = SetReadLength(s)

	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/trigger/channel"}] = SetTriggerChannel(s)
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/trigger/level"}] = SetTriggerLevel(s)

	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/channel/{channel}/scale"}] = SetVerticalScale(s)
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/channel/{channel}/position"}] = SetVerticalPosition(s)

	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/horizontal/scale"}] = SetHorizontalScale(s)
	rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/acquire-mode"}] = SetAcquireMode(s)
}

// SetReadChannels exposes an HTTP interface to the SetReadChannels method.
// The body is {"str": "CH1,CH2"}.
func SetReadChannels(s oscilloscope.Scope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		str := generichttp.StrT{}
		err := json.NewDecoder(r.Body).Decode(&str)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		srcs, err := oscilloscope.SplitSources(str.Str)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ok, err := s.SetReadChannels(srcs...)
		reply(w, r, ok, err)
	}
}

// SetReadLength exposes an HTTP interface to the SetReadLength method
func SetReadLength(s oscilloscope.Scope) http.HandlerFunc {
	return generichttp.SetInt(s.SetReadLength)
}

// SetTriggerChannel exposes an HTTP interface to the SetTriggerChannel method
func SetTriggerChannel(s oscilloscope.Scope) http.HandlerFunc {
	return generichttp.SetString(func(src string) (bool, error) {
		return s.SetTriggerChannel(strings.TrimSpace(src))
	})
}

// SetTriggerLevel exposes an HTTP interface to the SetTriggerLevel method
func SetTriggerLevel(s oscilloscope.Scope) http.HandlerFunc {
	return setQuantity(s.SetTriggerLevel)
}

// SetVerticalScale exposes an HTTP interface to the SetVerticalScale method
func SetVerticalScale(s oscilloscope.Scope) http.HandlerFunc {
	return setChannelQuantity(s.SetVerticalScale)
}

// SetVerticalPosition exposes an HTTP interface to the SetVerticalPosition method
func SetVerticalPosition(s oscilloscope.Scope) http.HandlerFunc {
	return setChannelQuantity(s.SetVerticalPosition)
}

// SetHorizontalScale exposes an HTTP interface to the SetHorizontalScale method
func SetHorizontalScale(s oscilloscope.Scope) http.HandlerFunc {
	return setQuantity(s.SetHorizontalScale)
}

// SetAcquireMode exposes an HTTP interface to the SetAcquireMode method
func SetAcquireMode(s oscilloscope.Scope) http.HandlerFunc {
	return generichttp.SetString(s.SetAcquireMode)
}

// Package ascii exposes the raw command line of an ASCII instrument over HTTP
package ascii

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/budker-phys/gpiblab/generichttp"
)

// RawCommunicator sends a command verbatim and returns the instrument's reply,
// which is empty for anything that is not a query
type RawCommunicator interface {
	Raw(string) (string, error)
}

// IsQuery reports whether a command line expects a reply.  A line holding
// several ;-separated commands is a query if any of them is.
func IsQuery(command string) bool {
	return strings.Contains(command, "?")
}

// RawWrapper serves POST /raw for a RawCommunicator
type RawWrapper struct {
	Comm RawCommunicator
}

// HTTPRaw sends {"str": "command"} to the instrument.  Queries are answered
// with {"str": "reply"}; other commands with 204 No Content.
func (rw *RawWrapper) HTTPRaw(w http.ResponseWriter, r *http.Request) {
	str := generichttp.StrT{}
	err := json.NewDecoder(r.Body).Decode(&str)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cmd := strings.TrimSpace(str.Str)
	if cmd == "" {
		http.Error(w, "empty command", http.StatusBadRequest)
		return
	}
	resp, err := rw.Comm.Raw(cmd)
	if err != nil {
		generichttp.InternalError(w, err)
		return
	}
	if !IsQuery(cmd) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	generichttp.ReplyWithJSON(w, generichttp.StrT{Str: resp})
}

// InjectRawComm adds POST /raw to the route table of an HTTPer
func InjectRawComm(other generichttp.HTTPer, raw RawCommunicator) {
	wrap := RawWrapper{Comm: raw}
	other.RT()[generichttp.MethodPath{Method: http.MethodPost, Path: "/raw"}] = wrap.HTTPRaw
}

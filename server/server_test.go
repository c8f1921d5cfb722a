package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/budker-phys/gpiblab/generichttp"
)

type fixed struct {
	rt generichttp.RouteTable
}

func (f fixed) RT() generichttp.RouteTable { return f.rt }

func newFixed() fixed {
	return fixed{rt: generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/ping"}: func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("pong"))
		},
	}}
}

func TestBuildMuxMountsNodesAndListsEndpoints(t *testing.T) {
	mux := BuildMux(Node{Endpoint: "lab/scope", HTTPer: newFixed()})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/lab/scope/ping")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/endpoints")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	graph := map[string][]string{}
	if err := json.NewDecoder(resp.Body).Decode(&graph); err != nil {
		t.Fatal(err)
	}
	expected := map[string][]string{"/lab/scope": {"GET /lock", "POST /lock", "GET /ping"}}
	if diff := cmp.Diff(expected, graph); diff != "" {
		t.Errorf("endpoints mismatch (-want +got):\n%s", diff)
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ListenAndServe(ctx, "127.0.0.1:0", http.NotFoundHandler()) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected a clean shutdown, got %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("server did not shut down")
	}
}

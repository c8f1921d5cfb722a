package locker

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCheckBouncesChangesWhileLocked(t *testing.T) {
	l := New()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := l.Check(ok)

	inputs := []struct {
		method, path string
		locked       int
	}{
		{http.MethodPost, "/scope/acquire-mode", http.StatusLocked},
		{http.MethodGet, "/scope/settings", http.StatusOK},
		{http.MethodPost, "/scope/lock", http.StatusOK},
	}
	l.Lock()
	for _, tc := range inputs {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		if w.Code != tc.locked {
			t.Errorf("%s %s: expected %d got %d", tc.method, tc.path, tc.locked, w.Code)
		}
	}
	l.Unlock()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/scope/acquire-mode", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 once unlocked, got %d", w.Code)
	}
}

func TestHTTPSetAndGet(t *testing.T) {
	l := New()
	w := httptest.NewRecorder()
	l.HTTPSet(w, httptest.NewRequest(http.MethodPost, "/lock", strings.NewReader(`{"bool": true}`)))
	if w.Code != http.StatusOK || !l.Locked() {
		t.Fatalf("expected the lock to engage, got %d", w.Code)
	}
	w = httptest.NewRecorder()
	l.HTTPGet(w, httptest.NewRequest(http.MethodGet, "/lock", nil))
	if got := strings.TrimSpace(w.Body.String()); got != `{"bool":true}` {
		t.Errorf("expected {\"bool\":true} got %s", got)
	}
}

package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wanderwise/edge/internal/cache"
	"github.com/wanderwise/edge/internal/lifecycle"
	"github.com/wanderwise/edge/internal/logging"
)

type okOrigin struct{}

func (okOrigin) Fetch(ctx context.Context, ref string, headers http.Header) (cache.Response, error) {
	return cache.Response{Status: http.StatusOK, Type: cache.TypeBasic, Body: []byte(ref)}, nil
}

func TestStatusAndReadiness(t *testing.T) {
	w := lifecycle.NewWorker(cache.NewMemoryStore(), okOrigin{}, nil, logging.Discard())
	h := &Handler{Registry: w.Registry}

	rr := httptest.NewRecorder()
	h.Ready(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready before activation = %d", rr.Code)
	}

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	rr = httptest.NewRecorder()
	h.Ready(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("ready after activation = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, StatusPath, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d", rr.Code)
	}
	var snap lifecycle.Snapshot
	if err := json.NewDecoder(rr.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Version != lifecycle.CacheName || snap.Phase != lifecycle.PhaseActivated || !snap.Controlling {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestStatusRejectsWrites(t *testing.T) {
	h := &Handler{Registry: lifecycle.NewRegistry(lifecycle.CacheName)}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, StatusPath, nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rr.Code)
	}
}

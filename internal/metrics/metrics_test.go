package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestIncResolution(t *testing.T) {
	before := testutil.ToFloat64(resolutions.WithLabelValues("cache-first", "HIT"))
	IncResolution("cache-first", "HIT")
	IncResolution("cache-first", "HIT")
	after := testutil.ToFloat64(resolutions.WithLabelValues("cache-first", "HIT"))
	if after-before != 2 {
		t.Fatalf("resolution counter moved by %v, want 2", after-before)
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()
}

func TestAddGenerationsDeleted(t *testing.T) {
	before := testutil.ToFloat64(generationsDeleted)
	AddGenerationsDeleted(3)
	if got := testutil.ToFloat64(generationsDeleted) - before; got != 3 {
		t.Fatalf("generations deleted moved by %v, want 3", got)
	}
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if httpRequestsTotal == nil || storeOperationsTotal == nil || extractionsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveStoreOp(t *testing.T) {
	Init()
	before := testutil.ToFloat64(storeOperationsTotal.WithLabelValues("get_bookmark", "not_found"))
	ObserveStoreOp("get_bookmark", "not_found", 3*time.Millisecond)
	after := testutil.ToFloat64(storeOperationsTotal.WithLabelValues("get_bookmark", "not_found"))
	if after-before != 1 {
		t.Errorf("expected store op counter to grow by 1, got %f", after-before)
	}
}

func TestObserveExtractionLabelsStatusOnly(t *testing.T) {
	Init()
	before := testutil.CollectAndCount(extractionsTotal)
	for i := 0; i < 50; i++ {
		ObserveExtraction("ok", time.Second)
	}
	if val := testutil.ToFloat64(extractionsTotal.WithLabelValues("ok")); val < 50 {
		t.Errorf("expected extraction counter >= 50, got %f", val)
	}
	if after := testutil.CollectAndCount(extractionsTotal); after > before+1 {
		t.Errorf("expected at most one new series, got %d -> %d", before, after)
	}
	ObserveCacheLookup("hit")
	if val := testutil.ToFloat64(extractionCacheTotal.WithLabelValues("hit")); val < 1 {
		t.Errorf("expected cache hit counter, got %f", val)
	}
}

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterOnFreshRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)

	CacheHitsTotal.WithLabelValues("test_register").Inc()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, family := range families {
		if family.GetName() == "metasearch_cache_hits_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected metasearch_cache_hits_total in gathered families")
	}
}

func TestRegisterTwicePanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected duplicate registration to panic")
		}
	}()
	Register(reg)
}

func TestEngineCounterLabels(t *testing.T) {
	before := testutil.ToFloat64(EngineRequestsTotal.WithLabelValues("labels-engine", "timeout"))
	EngineRequestsTotal.WithLabelValues("labels-engine", "timeout").Inc()
	after := testutil.ToFloat64(EngineRequestsTotal.WithLabelValues("labels-engine", "timeout"))
	if after-before != 1 {
		t.Fatalf("expected counter to advance by 1, got %v", after-before)
	}
}

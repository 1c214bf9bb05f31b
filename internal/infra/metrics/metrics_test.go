//go:build !integration

package metrics_test

import (
	"testing"

	"ai-reply-assistant/internal/infra/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegister_ExposesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}

	metrics.SetDBPoolStats(10, 7, 3)
	metrics.IncCacheRequest("Guardrail_Policy ", metrics.CacheHit)
	metrics.SetBuildInfo("v1.2.3", "abc123")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	byName := map[string]bool{}
	for _, f := range families {
		byName[f.GetName()] = true
		if f.GetName() != "cache_lookups_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "cache" && l.GetValue() != "guardrail_policy" {
					t.Errorf("cache label not normalized: %q", l.GetValue())
				}
			}
		}
	}
	for _, name := range []string{"db_pool_connections", "cache_lookups_total", "build_info"} {
		if !byName[name] {
			t.Errorf("expected %s to be gathered", name)
		}
	}
}

func TestRegister_TwiceOnSameRegistryFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := metrics.Register(reg); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

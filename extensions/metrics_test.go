package extensions

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	featurea "github.com/featurea/featurea-go"
)

func findFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() == name {
			return fam
		}
	}
	t.Fatalf("metric family %q not found", name)
	return nil
}

func counterValue(fam *dto.MetricFamily, labels map[string]string) float64 {
	for _, m := range fam.GetMetric() {
		matched := 0
		for _, lp := range m.GetLabel() {
			if labels[lp.GetName()] == lp.GetValue() {
				matched++
			}
		}
		if matched == len(labels) {
			return m.GetCounter().GetValue()
		}
	}
	return -1
}

func TestMetricsExtension_CountsOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	ext, err := NewMetricsExtension(reg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	root := featurea.NewArtifact("app", func(b *featurea.DependencyBuilder) {
		b.Bind("ok", func(*featurea.ResolveCtx) (any, error) { return 1, nil })
		b.Bind("bad", func(*featurea.ResolveCtx) (any, error) { return nil, errors.New("bad") })
	})

	c := newTestContainer(t, root, ext)
	m, _ := c.NewModule("main")

	m.ImportComponent("ok")
	m.ImportComponent("ok")
	m.ImportComponent("bad")

	fam := findFamily(t, reg, "featurea_operations_total")
	if got := counterValue(fam, map[string]string{"operation": "resolve", "status": "ok"}); got != 1 {
		t.Errorf("expected 1 successful resolve, got %v", got)
	}
	if got := counterValue(fam, map[string]string{"operation": "resolve", "status": "failed"}); got != 1 {
		t.Errorf("expected 1 failed resolve, got %v", got)
	}
	if got := counterValue(fam, map[string]string{"operation": "reload", "status": "ok"}); got != 0 {
		t.Errorf("expected pre-initialized reload counter at 0, got %v", got)
	}

	gauge := findFamily(t, reg, "featurea_live_modules")
	if v := gauge.GetMetric()[0].GetGauge().GetValue(); v != 1 {
		t.Errorf("expected 1 live module, got %v", v)
	}
}

func TestMetricsExtension_CleanupFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	ext, err := NewMetricsExtension(reg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	root := featurea.NewArtifact("app", func(b *featurea.DependencyBuilder) {
		b.Bind("socket", func(ctx *featurea.ResolveCtx) (any, error) {
			ctx.OnCleanup(func() error { return errors.New("already closed") })
			return "socket", nil
		})
	})

	c := newTestContainer(t, root, ext)
	m, _ := c.NewModule("main")
	m.ImportComponent("socket")

	if err := c.Reload("main"); err == nil {
		t.Error("expected unhandled cleanup error")
	}

	fam := findFamily(t, reg, "featurea_cleanup_failures_total")
	if got := counterValue(fam, map[string]string{"context": "reload"}); got != 1 {
		t.Errorf("expected 1 reload cleanup failure, got %v", got)
	}
}

func TestMetricsExtension_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewMetricsExtension(reg); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := NewMetricsExtension(reg); err == nil {
		t.Error("expected second registration on the same registry to fail")
	}
}

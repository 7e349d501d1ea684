package resilience

import (
	"testing"
	"time"
)

func TestBundles_Validate(t *testing.T) {
	tests := []struct {
		name   string
		policy interface{ Validate() error }
	}{
		{"http", HTTPBundle("svc")},
		{"file io", FileIOBundle()},
		{"database", DatabaseBundle("db")},
		{"external api", ExternalAPIBundle("api")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.policy.Validate(); err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}

func TestBundles_Shape(t *testing.T) {
	h := HTTPBundle("svc")
	if h.Retry.MaxAttempts != 3 || !h.Retry.UseJitter || h.CircuitBreaker.Name != "svc" {
		t.Errorf("HTTPBundle = %+v", h.CompositePolicy)
	}
	if h.HTTPTimeout != 60*time.Second || h.ConnectTimeout != 10*time.Second {
		t.Errorf("HTTPBundle timeouts = %v/%v", h.HTTPTimeout, h.ConnectTimeout)
	}

	f := FileIOBundle()
	if f.CircuitBreaker != nil || f.Bulkhead != nil || f.Retry.Strategy != BackoffLinear {
		t.Errorf("FileIOBundle = %+v", f)
	}

	d := DatabaseBundle("db")
	if d.Bulkhead.Name != "db" || d.Bulkhead.MaxParallelization != 10 || d.Bulkhead.MaxQueuingActions != 50 {
		t.Errorf("DatabaseBundle bulkhead = %+v", d.Bulkhead)
	}
	if len(d.Layers()) != 4 {
		t.Errorf("DatabaseBundle layers = %v", d.Layers())
	}

	x := ExternalAPIBundle("api")
	if x.Retry.MaxAttempts != 5 || x.Timeout.Timeout != 60*time.Second {
		t.Errorf("ExternalAPIBundle = %+v", x)
	}
}

func TestBundles_Independent(t *testing.T) {
	a := HTTPBundle("a")
	a.Retry.MaxAttempts = 9
	if b := HTTPBundle("a"); b.Retry.MaxAttempts != 3 {
		t.Error("bundles share policy values")
	}
}

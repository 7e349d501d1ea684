package resilience

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// BundleFile is the YAML document holding named policy bundles.
//
//	bundles:
//	  payments:
//	    preset: http
//	    retry:
//	      max_attempts: 4
//	      base_delay: 250ms
//	      strategy: exponential
//	      jitter: true
//	    circuit_breaker:
//	      failure_ratio: 0.5
//	      minimum_throughput: 20
//	    order: [retry, circuit_breaker, timeout]
type BundleFile struct {
	Bundles map[string]BundleConfig `yaml:"bundles"`
}

// BundleConfig is one bundle. A preset supplies the starting policy; each
// section present in the file replaces the preset's section whole.
type BundleConfig struct {
	Preset string `yaml:"preset"` // http|file_io|database|external_api

	Retry          *RetryConfig          `yaml:"retry"`
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuit_breaker"`
	Timeout        *TimeoutConfig        `yaml:"timeout"`
	Bulkhead       *BulkheadConfig       `yaml:"bulkhead"`
	RateLimit      *RateLimitConfig      `yaml:"rate_limit"`

	// Order lists the layers outermost first. When omitted, the preset's
	// order is kept, or the canonical order rate_limit, retry,
	// circuit_breaker, bulkhead, timeout is used.
	Order []PolicyKind `yaml:"order"`

	HTTPTimeout    time.Duration `yaml:"http_timeout"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// RetryConfig is the YAML form of RetryPolicy.
type RetryConfig struct {
	MaxAttempts int             `yaml:"max_attempts"`
	BaseDelay   time.Duration   `yaml:"base_delay"`
	MaxDelay    time.Duration   `yaml:"max_delay"`
	Strategy    BackoffStrategy `yaml:"strategy"`
	Jitter      bool            `yaml:"jitter"`
}

// CircuitBreakerConfig is the YAML form of CircuitBreakerPolicy. Name
// defaults to the bundle name.
type CircuitBreakerConfig struct {
	Name              string        `yaml:"name"`
	FailureThreshold  int           `yaml:"failure_threshold"`
	FailureRatio      float64       `yaml:"failure_ratio"`
	MinimumThroughput int           `yaml:"minimum_throughput"`
	SamplingDuration  time.Duration `yaml:"sampling_duration"`
	BreakDuration     time.Duration `yaml:"break_duration"`
}

// TimeoutConfig is the YAML form of TimeoutPolicy.
type TimeoutConfig struct {
	Timeout  time.Duration   `yaml:"timeout"`
	Strategy TimeoutStrategy `yaml:"strategy"`
}

// BulkheadConfig is the YAML form of BulkheadPolicy. Name defaults to the
// bundle name.
type BulkheadConfig struct {
	Name               string `yaml:"name"`
	MaxParallelization int    `yaml:"max_parallelization"`
	MaxQueuingActions  int    `yaml:"max_queuing_actions"`
}

// RateLimitConfig is the YAML form of RateLimitPolicy. Name defaults to the
// bundle name.
type RateLimitConfig struct {
	Name    string        `yaml:"name"`
	Rate    float64       `yaml:"rate"`
	Burst   int           `yaml:"burst"`
	MaxWait time.Duration `yaml:"max_wait"`
}

var canonicalOrder = []PolicyKind{
	PolicyRateLimit,
	PolicyRetry,
	PolicyCircuitBreaker,
	PolicyBulkhead,
	PolicyTimeout,
}

// LoadBundles decodes and validates a bundle document. Unknown keys are
// rejected.
func LoadBundles(r io.Reader) (map[string]*HTTPCompositePolicy, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f BundleFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]*HTTPCompositePolicy{}, nil
		}
		return nil, fmt.Errorf("resilience: decode bundles: %w", err)
	}

	out := make(map[string]*HTTPCompositePolicy, len(f.Bundles))
	for name, bc := range f.Bundles {
		p, err := bc.Policy(name)
		if err != nil {
			return nil, fmt.Errorf("bundle %q: %w", name, err)
		}
		out[name] = p
	}
	return out, nil
}

// LoadBundlesFile reads bundles from a YAML file.
func LoadBundlesFile(path string) (map[string]*HTTPCompositePolicy, error) {
	f, err := os.Open(path) // #nosec G304 -- path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("resilience: open bundles: %w", err)
	}
	defer f.Close()
	return LoadBundles(f)
}

// Policy builds the validated policy for the bundle called name.
func (c BundleConfig) Policy(name string) (*HTTPCompositePolicy, error) {
	if name == "" {
		return nil, ErrEmptyName
	}

	p, err := preset(c.Preset, name)
	if err != nil {
		return nil, err
	}

	if c.Retry != nil {
		p.Retry = &RetryPolicy{
			MaxAttempts: c.Retry.MaxAttempts,
			BaseDelay:   c.Retry.BaseDelay,
			MaxDelay:    c.Retry.MaxDelay,
			Strategy:    c.Retry.Strategy,
			UseJitter:   c.Retry.Jitter,
		}
	}
	if c.CircuitBreaker != nil {
		p.CircuitBreaker = &CircuitBreakerPolicy{
			Name:              orDefault(c.CircuitBreaker.Name, name),
			FailureThreshold:  c.CircuitBreaker.FailureThreshold,
			FailureRatio:      c.CircuitBreaker.FailureRatio,
			MinimumThroughput: c.CircuitBreaker.MinimumThroughput,
			SamplingDuration:  c.CircuitBreaker.SamplingDuration,
			DurationOfBreak:   c.CircuitBreaker.BreakDuration,
		}
	}
	if c.Timeout != nil {
		p.Timeout = &TimeoutPolicy{
			Timeout:  c.Timeout.Timeout,
			Strategy: c.Timeout.Strategy,
		}
	}
	if c.Bulkhead != nil {
		p.Bulkhead = &BulkheadPolicy{
			Name:               orDefault(c.Bulkhead.Name, name),
			MaxParallelization: c.Bulkhead.MaxParallelization,
			MaxQueuingActions:  c.Bulkhead.MaxQueuingActions,
		}
	}
	if c.RateLimit != nil {
		p.RateLimit = &RateLimitPolicy{
			Name:    orDefault(c.RateLimit.Name, name),
			Rate:    c.RateLimit.Rate,
			Burst:   c.RateLimit.Burst,
			MaxWait: c.RateLimit.MaxWait,
		}
	}

	switch {
	case len(c.Order) > 0:
		p.ExecutionOrder = slices.Clone(c.Order)
	case c.Preset == "":
		p.ExecutionOrder = slices.Clone(canonicalOrder)
	}
	if c.HTTPTimeout != 0 {
		p.HTTPTimeout = c.HTTPTimeout
	}
	if c.ConnectTimeout != 0 {
		p.ConnectTimeout = c.ConnectTimeout
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func preset(kind, name string) (*HTTPCompositePolicy, error) {
	switch kind {
	case "":
		return &HTTPCompositePolicy{}, nil
	case "http":
		return HTTPBundle(name), nil
	case "file_io":
		return &HTTPCompositePolicy{CompositePolicy: *FileIOBundle()}, nil
	case "database":
		return &HTTPCompositePolicy{CompositePolicy: *DatabaseBundle(name)}, nil
	case "external_api":
		return &HTTPCompositePolicy{CompositePolicy: *ExternalAPIBundle(name)}, nil
	default:
		return nil, invalidf("unknown preset %q", kind)
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// UnmarshalYAML decodes a kind name such as "circuit_breaker".
func (k *PolicyKind) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := ParsePolicyKind(s)
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// UnmarshalYAML decodes "fixed", "linear" or "exponential".
func (s *BackoffStrategy) UnmarshalYAML(n *yaml.Node) error {
	var v string
	if err := n.Decode(&v); err != nil {
		return err
	}
	for _, c := range []BackoffStrategy{BackoffFixed, BackoffLinear, BackoffExponential} {
		if c.String() == v {
			*s = c
			return nil
		}
	}
	return invalidf("unknown backoff strategy %q", v)
}

// UnmarshalYAML decodes "cooperative" or "pessimistic".
func (s *TimeoutStrategy) UnmarshalYAML(n *yaml.Node) error {
	var v string
	if err := n.Decode(&v); err != nil {
		return err
	}
	for _, c := range []TimeoutStrategy{TimeoutCooperative, TimeoutPessimistic} {
		if c.String() == v {
			*s = c
			return nil
		}
	}
	return invalidf("unknown timeout strategy %q", v)
}

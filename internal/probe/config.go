package probe

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/jonwraymond/failguard/observe"
	"github.com/jonwraymond/failguard/resilience"
)

var (
	// ErrMissingTarget indicates no probe target URL was configured.
	ErrMissingTarget = errors.New("probe: target is required")

	// ErrInvalidTarget indicates the target is not an absolute http(s) URL.
	ErrInvalidTarget = errors.New("probe: target must be an absolute http or https URL")

	// ErrInvalidInterval indicates a non-positive probe interval.
	ErrInvalidInterval = errors.New("probe: interval must be > 0")

	// ErrUnknownBundle indicates the bundle is neither in the bundle file nor
	// a preset.
	ErrUnknownBundle = errors.New("probe: unknown bundle")
)

// Config configures a probe. Fields are read from FAILGUARD_PROBE_*
// environment variables by ConfigFromEnv; flags override them.
type Config struct {
	// Target is the URL fetched on every probe. Required.
	Target string `envconfig:"PROBE_TARGET"`

	// BundlesFile is an optional YAML bundle file.
	BundlesFile string `envconfig:"PROBE_CONFIG"`

	// Bundle names the policy bundle guarding each probe: a bundle from
	// BundlesFile or one of the presets http, file_io, database and
	// external_api.
	// Default: http
	Bundle string `envconfig:"PROBE_BUNDLE" default:"http"`

	// Interval is the time between probes.
	// Default: 10 seconds
	Interval time.Duration `envconfig:"PROBE_INTERVAL" default:"10s"`

	// Listen is the address of the health and metrics server.
	// Default: :9090
	Listen string `envconfig:"PROBE_LISTEN" default:":9090"`
}

// ConfigFromEnv loads Config from the environment without validating it.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process(observe.EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("probe: load config from env: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Target == "" {
		return ErrMissingTarget
	}
	u, err := url.Parse(c.Target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidTarget, c.Target)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w, got %v", ErrInvalidInterval, c.Interval)
	}
	return nil
}

// Policy resolves the configured bundle. Bundles from BundlesFile take
// precedence over presets of the same name. Presets are named after the
// target host.
func (c Config) Policy() (*resilience.HTTPCompositePolicy, error) {
	if c.BundlesFile != "" {
		bundles, err := resilience.LoadBundlesFile(c.BundlesFile)
		if err != nil {
			return nil, err
		}
		if p, ok := bundles[c.Bundle]; ok {
			return p, nil
		}
	}

	name := c.Bundle
	if u, err := url.Parse(c.Target); err == nil && u.Host != "" {
		name = u.Host
	}

	switch c.Bundle {
	case "http":
		return resilience.HTTPBundle(name), nil
	case "external_api":
		return &resilience.HTTPCompositePolicy{CompositePolicy: *resilience.ExternalAPIBundle(name)}, nil
	case "database":
		return &resilience.HTTPCompositePolicy{CompositePolicy: *resilience.DatabaseBundle(name)}, nil
	case "file_io":
		return &resilience.HTTPCompositePolicy{CompositePolicy: *resilience.FileIOBundle()}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBundle, c.Bundle)
	}
}

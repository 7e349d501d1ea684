package observe

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix of the environment variables read by ConfigFromEnv.
const EnvPrefix = "FAILGUARD"

// ConfigFromEnv loads Config from FAILGUARD_* environment variables,
// e.g. FAILGUARD_LOG_LEVEL or FAILGUARD_METRICS_EXPORTER.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	// Sub-configs are processed on their own so their keys stay
	// FAILGUARD_<TAG> rather than FAILGUARD_<FIELD>_<TAG>.
	for _, spec := range []any{&cfg, &cfg.Tracing, &cfg.Metrics, &cfg.Logging} {
		if err := envconfig.Process(EnvPrefix, spec); err != nil {
			return Config{}, fmt.Errorf("observe: load config from env: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

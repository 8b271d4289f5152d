package config

import "github.com/caarlos0/env/v11"

// EnvPrefix prefixes every environment variable read by FromEnv.
const EnvPrefix = "VIZSYNC_"

// FromEnv overlays VIZSYNC_* environment variables onto cfg, e.g.
// VIZSYNC_TIME_WINDOW, VIZSYNC_BUFFER_POLICY, VIZSYNC_STORAGE_DATA_DIR,
// VIZSYNC_LOG_LEVEL. Unset variables leave cfg untouched.
func FromEnv(cfg *Config) error {
	return env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix})
}

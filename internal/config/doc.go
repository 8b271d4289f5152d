// Package config provides loading and environment overlay for vizsync
// configuration. It exposes a Default() baseline; callers layer a file and
// the environment on top and validate once before constructing components.
//
// Example:
//
//	cfg, err := config.Load("/etc/vizsync.yaml")
//	if err != nil {
//	    return err
//	}
//	if err := config.FromEnv(&cfg); err != nil {
//	    return err
//	}
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//	rt, _ := runtime.Open(runtime.Options{Config: cfg})
//	defer rt.Close()
package config

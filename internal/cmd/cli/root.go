// Package cli contains the Cobra commands of the vizsync binary.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	cfgpkg "github.com/rzbill/vizsync/internal/config"
	"github.com/rzbill/vizsync/internal/runtime"
	logpkg "github.com/rzbill/vizsync/pkg/log"
)

// globals are the persistent flags shared by every command.
type globals struct {
	configPath string
	dataDir    string
	logLevel   string
	logFormat  string
}

// NewRoot constructs the root command with the session and replay groups.
func NewRoot() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:          "vizsync",
		Short:        "Replay and synchronize recorded vehicle sessions",
		Long:         "vizsync stores timestamped multi-stream recordings and replays them as synchronized frames.",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "Config file (.json, .yaml or .yml)")
	pf.StringVar(&g.dataDir, "data-dir", "", "Data directory (overrides storage.dataDir)")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	pf.StringVar(&g.logFormat, "log-format", "", "Log format: text|json")

	root.AddCommand(newSessionCommand(g), newReplayCommand(g))
	return root
}

// load builds the config (defaults, file, env, flags) and the process logger.
func (g *globals) load() (cfgpkg.Config, logpkg.Logger, error) {
	cfg, err := cfgpkg.Load(g.configPath)
	if err != nil {
		return cfgpkg.Config{}, nil, err
	}
	if err := cfgpkg.FromEnv(&cfg); err != nil {
		return cfgpkg.Config{}, nil, fmt.Errorf("config: env: %w", err)
	}
	if g.dataDir != "" {
		cfg.Storage.DataDir = g.dataDir
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return cfgpkg.Config{}, nil, err
	}
	logger, err := logpkg.ApplyConfig(&cfg.Log)
	if err != nil {
		return cfgpkg.Config{}, nil, err
	}
	// Pebble logs through the standard library logger.
	logpkg.RedirectStdLog(logger)
	return cfg, logger, nil
}

func (g *globals) openRuntime() (*runtime.Runtime, logpkg.Logger, error) {
	cfg, logger, err := g.load()
	if err != nil {
		return nil, nil, err
	}
	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: logger})
	if err != nil {
		return nil, nil, err
	}
	return rt, logger, nil
}

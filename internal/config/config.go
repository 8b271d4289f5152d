package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/rzbill/vizsync/pkg/log"
)

// Buffer policy names.
const (
	PolicyUnbounded = "unbounded"
	PolicyOffset    = "offset"
	PolicyFixed     = "fixed"
)

// Config is the top-level configuration loaded from file/env. It is built
// once and passed by value into constructors.
type Config struct {
	// TimeWindow is the trailing window, in seconds, searched for the most
	// recent datum of every stream.
	TimeWindow float64 `json:"timeWindow" yaml:"timeWindow" env:"TIME_WINDOW"`
	// HiResolution quantizes the time used for cheap high-frequency lookups
	// (vehicle pose). Zero disables quantization.
	HiResolution float64 `json:"hiResolution" yaml:"hiResolution" env:"HI_RESOLUTION"`
	// LoResolution quantizes the time used for slice assembly.
	LoResolution float64 `json:"loResolution" yaml:"loResolution" env:"LO_RESOLUTION"`
	// HiResPoseWindow bounds the hi-res pose lookup to (t-window, t].
	HiResPoseWindow float64 `json:"hiResPoseWindow" yaml:"hiResPoseWindow" env:"HI_RES_POSE_WINDOW"`

	PrimaryPoseStream       string `json:"primaryPoseStream" yaml:"primaryPoseStream" env:"PRIMARY_POSE_STREAM"`
	ObjectStream            string `json:"objectStream" yaml:"objectStream" env:"OBJECT_STREAM"`
	AllowMissingPrimaryPose bool   `json:"allowMissingPrimaryPose" yaml:"allowMissingPrimaryPose" env:"ALLOW_MISSING_PRIMARY_POSE"`

	// LookAheadRate converts a look-ahead offset in seconds to an index.
	LookAheadRate     float64 `json:"lookAheadRate" yaml:"lookAheadRate" env:"LOOK_AHEAD_RATE"`
	PlaybackFrameRate float64 `json:"playbackFrameRate" yaml:"playbackFrameRate" env:"PLAYBACK_FRAME_RATE"`
	// StreamBlacklist names streams dropped at import.
	StreamBlacklist []string `json:"streamBlacklist" yaml:"streamBlacklist" env:"STREAM_BLACKLIST" envSeparator:","`

	Buffer  Buffer     `json:"buffer" yaml:"buffer" envPrefix:"BUFFER_"`
	Storage Storage    `json:"storage" yaml:"storage" envPrefix:"STORAGE_"`
	Log     log.Config `json:"log" yaml:"log" envPrefix:"LOG_"`
}

// Buffer selects the stream buffer policy.
type Buffer struct {
	Policy      string  `json:"policy" yaml:"policy" env:"POLICY"`
	StartOffset float64 `json:"startOffset" yaml:"startOffset" env:"START_OFFSET"`
	EndOffset   float64 `json:"endOffset" yaml:"endOffset" env:"END_OFFSET"`
	Start       float64 `json:"start" yaml:"start" env:"START"`
	End         float64 `json:"end" yaml:"end" env:"END"`
	MaxLength   float64 `json:"maxLength" yaml:"maxLength" env:"MAX_LENGTH"`
}

// Storage configures the session archive.
type Storage struct {
	DataDir string `json:"dataDir" yaml:"dataDir" env:"DATA_DIR"`
	// Fsync is one of always, interval, never.
	Fsync           string `json:"fsync" yaml:"fsync" env:"FSYNC"`
	FsyncIntervalMs int    `json:"fsyncIntervalMs" yaml:"fsyncIntervalMs" env:"FSYNC_INTERVAL_MS"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		TimeWindow:        0.4,
		HiResolution:      0.01,
		LoResolution:      0.01,
		HiResPoseWindow:   1,
		PrimaryPoseStream: "/vehicle_pose",
		ObjectStream:      "/objects",
		LookAheadRate:     10,
		PlaybackFrameRate: 10,
		Buffer:            Buffer{Policy: PolicyUnbounded},
		Storage: Storage{
			DataDir:         DefaultDataDir(),
			Fsync:           "interval",
			FsyncIntervalMs: 5,
		},
		Log: log.Config{Level: "info", Format: "text", Outputs: []string{"console"}},
	}
}

// Load reads configuration from a JSON or YAML file (by extension) on top of
// the defaults. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case !(c.TimeWindow > 0):
		return fmt.Errorf("config: timeWindow must be > 0, got %v", c.TimeWindow)
	case c.HiResolution < 0 || c.LoResolution < 0:
		return fmt.Errorf("config: resolutions must be >= 0")
	case c.HiResPoseWindow < 0:
		return fmt.Errorf("config: hiResPoseWindow must be >= 0")
	case c.LookAheadRate < 0:
		return fmt.Errorf("config: lookAheadRate must be >= 0")
	case !(c.PlaybackFrameRate > 0):
		return fmt.Errorf("config: playbackFrameRate must be > 0, got %v", c.PlaybackFrameRate)
	}
	return c.Buffer.Validate()
}

// Validate checks the policy and its parameters.
func (b Buffer) Validate() error {
	if b.MaxLength < 0 {
		return fmt.Errorf("config: buffer.maxLength must be >= 0")
	}
	switch b.Policy {
	case "", PolicyUnbounded:
	case PolicyOffset:
		if b.StartOffset > 0 || b.EndOffset < 0 {
			return fmt.Errorf("config: buffer offsets must satisfy startOffset <= 0 <= endOffset")
		}
	case PolicyFixed:
		if !(b.Start < b.End) {
			return fmt.Errorf("config: buffer.start must be before buffer.end")
		}
	default:
		return fmt.Errorf("config: unknown buffer policy %q", b.Policy)
	}
	return nil
}

// Blacklisted reports whether stream is in StreamBlacklist.
func (c Config) Blacklisted(stream string) bool {
	for _, s := range c.StreamBlacklist {
		if s == stream {
			return true
		}
	}
	return false
}

package agent

import (
	"time"

	"github.com/mtconnect-go/agent/pkg/schema"
)

// Default values for an Agent's runtime configuration.
const (
	DefaultBufferSize           = 131072
	DefaultMaxAssets            = 1024
	DefaultReconnectInterval    = 10 * time.Second
	DefaultLegacyTimeout        = 600 * time.Second
	DefaultMaxSampleCount       = 1000
	DefaultCheckpointFrequency  = DefaultBufferSize / 16
)

// Config is the runtime configuration of an Agent, decoded from a
// schema.ProgramConfig after validation against the embedded JSON schema.
type Config struct {
	BufferSize          int
	MaxAssets           int
	CheckpointFrequency int
	ReconnectInterval   time.Duration
	LegacyTimeout       time.Duration
	IgnoreTimestamps    bool
	ConversionRequired  bool
	UpcaseDataItemValue bool
	FilterDuplicates    bool
	MaxSampleCount      int
}

// DefaultConfig returns a Config populated with the package defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:          DefaultBufferSize,
		MaxAssets:           DefaultMaxAssets,
		CheckpointFrequency: DefaultCheckpointFrequency,
		ReconnectInterval:   DefaultReconnectInterval,
		LegacyTimeout:       DefaultLegacyTimeout,
		FilterDuplicates:    true,
		MaxSampleCount:      DefaultMaxSampleCount,
	}
}

// FromProgramConfig starts from DefaultConfig and overrides each numeric or
// duration field that p sets (non-zero or non-empty); a zero
// CheckpointFrequency becomes BufferSize/16. The four boolean fields are
// always copied from p, so one that p leaves unset is false, including
// FilterDuplicates, whose default is true.
func FromProgramConfig(p *schema.ProgramConfig) (Config, error) {
	cfg := DefaultConfig()

	if p.BufferSize > 0 {
		cfg.BufferSize = p.BufferSize
	}
	if p.MaxAssets > 0 {
		cfg.MaxAssets = p.MaxAssets
	}
	if p.CheckpointFrequency > 0 {
		cfg.CheckpointFrequency = p.CheckpointFrequency
	} else {
		cfg.CheckpointFrequency = cfg.BufferSize / 16
		if cfg.CheckpointFrequency == 0 {
			cfg.CheckpointFrequency = 1
		}
	}
	if p.ReconnectInterval != "" {
		d, err := time.ParseDuration(p.ReconnectInterval)
		if err != nil {
			return cfg, newError(ErrConfigError, "invalid reconnectInterval %q", p.ReconnectInterval)
		}
		cfg.ReconnectInterval = d
	}
	if p.LegacyTimeout != "" {
		d, err := time.ParseDuration(p.LegacyTimeout)
		if err != nil {
			return cfg, newError(ErrConfigError, "invalid legacyTimeout %q", p.LegacyTimeout)
		}
		cfg.LegacyTimeout = d
	}
	if p.MaxSampleCount > 0 {
		cfg.MaxSampleCount = p.MaxSampleCount
	}

	cfg.IgnoreTimestamps = p.IgnoreTimestamps
	cfg.ConversionRequired = p.ConversionRequired
	cfg.UpcaseDataItemValue = p.UpcaseDataItemValue
	cfg.FilterDuplicates = p.FilterDuplicates

	return cfg, nil
}

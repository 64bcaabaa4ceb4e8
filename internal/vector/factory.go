package vector

import (
	"fmt"

	"github.com/anansi-ai/anansi/internal/types"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config selects and configures the vector backend.
type Config struct {
	Backend string `yaml:"backend" json:"backend" mapstructure:"backend"`
	Path    string `yaml:"path" json:"path" mapstructure:"path"`
	Metric  Metric `yaml:"metric" json:"metric" mapstructure:"metric"`
}

// ApplyDefaults fills in zero values.
func (c *Config) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	if c.Metric == "" {
		c.Metric = MetricCosine
	}
	if c.Backend == BackendSQLite && c.Path == "" {
		c.Path = "anansi-vectors.db"
	}
}

// Validate checks backend selection and settings.
func (c *Config) Validate() error {
	if !c.Metric.IsValid() {
		return types.NewError(types.CONFIG_LOAD_FAILED,
			fmt.Sprintf("unknown similarity metric: %s", c.Metric))
	}
	switch c.Backend {
	case BackendMemory, BackendSQLite:
		return nil
	default:
		return types.NewError(types.CONFIG_LOAD_FAILED,
			fmt.Sprintf("unknown vector backend: %s", c.Backend))
	}
}

// Open constructs the configured Store.
func Open(config Config) (Store, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	switch config.Backend {
	case BackendMemory:
		return NewMemoryStore(config.Metric), nil
	case BackendSQLite:
		return NewSQLiteStore(config.Path, config.Metric)
	default:
		return nil, types.NewError(types.CONFIG_LOAD_FAILED,
			fmt.Sprintf("unknown vector backend: %s", config.Backend))
	}
}

package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	"github.com/anansi-ai/anansi/internal/types"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads a YAML config file, interpolates ${VAR} references from the
// environment, applies defaults and validates. The file must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, types.WrapError(types.CONFIG_LOAD_FAILED, "read config file", err)
	}

	// Interpolate environment variables in the raw settings before
	// unmarshaling, so ${NEO4J_PASSWORD} style references work in any
	// string field without per-field plumbing.
	interpolated, _ := interpolateEnvVars(v.AllSettings()).(map[string]any)

	merged := viper.New()
	if err := merged.MergeConfigMap(interpolated); err != nil {
		return nil, types.WrapError(types.CONFIG_PARSE_FAILED, "merge interpolated settings", err)
	}

	var cfg Config
	if err := merged.Unmarshal(&cfg); err != nil {
		return nil, types.WrapError(types.CONFIG_PARSE_FAILED, "unmarshal config", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadWithDefaults behaves like Load but returns DefaultConfig when the
// file does not exist. An empty path always yields defaults.
func LoadWithDefaults(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	return Load(path)
}

// interpolateEnvVars recursively replaces ${VAR} in string values. Unset
// variables are left as-is so validation can surface them.
func interpolateEnvVars(data any) any {
	switch v := data.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, value := range v {
			out[key] = interpolateEnvVars(value)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, value := range v {
			out[i] = interpolateEnvVars(value)
		}
		return out
	case string:
		return interpolateString(v)
	default:
		return v
	}
}

func interpolateString(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}

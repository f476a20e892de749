package config

import (
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	serrors "github.com/jkassis/bbstore/internal/errors"
)

// Load reads, interpolates, defaults and validates the config file at path.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, serrors.Wrap(serrors.CodeConfigInvalid, "failed to read config file", err)
	}
	return Parse(content)
}

// Parse is Load for an in-memory document.
func Parse(content []byte) (*Config, error) {
	content = []byte(interpolateEnv(string(content)))

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, serrors.Wrap(serrors.CodeConfigInvalid, "failed to parse config", err)
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// interpolateEnv replaces ${VAR} with the value of VAR.
func interpolateEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

func applyDefaults(cfg *Config) {
	cfg.Core.StoreType = strings.ToLower(strings.TrimSpace(cfg.Core.StoreType))
	if cfg.Core.StoreType == "" {
		cfg.Core.StoreType = StoreTypeRedis
	}
	cfg.StoreDB.Table = strings.TrimSpace(cfg.StoreDB.Table)
	cfg.StoreDB.ID = strings.TrimSpace(cfg.StoreDB.ID)
}

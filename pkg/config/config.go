// Package config loads and mirrors the orchestration settings consulted by
// the scheduler and the operator-facing Protocol Directory: the
// `.orchestration/config.yaml` document described in spec section 6.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds a project's orchestration settings.
type Config struct {
	Version               string `yaml:"version"`
	SpecDir               string `yaml:"spec_dir"`
	MaxParallelExecutions int    `yaml:"max_parallel_executions"`
	MaxParallelResearch   int    `yaml:"max_parallel_research"`
	VerificationRequired  bool   `yaml:"verification_required"`
	AutoCommit            bool   `yaml:"auto_commit"`
}

// Default returns the harness's out-of-the-box settings.
func Default() Config {
	return Config{
		Version:               "1",
		SpecDir:               "spec",
		MaxParallelExecutions: 3,
		MaxParallelResearch:   2,
		VerificationRequired:  true,
		AutoCommit:            false,
	}
}

// Load reads config.yaml at path, falling back to Default for any field the
// file omits. A missing file is not an error: Default is returned as-is, so
// a freshly initialized project root works without first running a setup
// step.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg to path, overwriting it whole, matching the Protocol
// Directory's overwrite-whole convention for every mirrored file.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Embedded default configuration
// Use 'go generate ./pkg/config' to update from root config.toml
//
//go:generate cp ../../config.toml default_config.toml
//go:embed default_config.toml
var embeddedConfigData []byte

// Config holds the application configuration. A Config value is passed
// explicitly into each component's constructor; there is no process-wide
// configuration state.
type Config struct {
	Dataset  DatasetConfig  `toml:"dataset"`
	Detector DetectorConfig `toml:"detector"`
	Extract  ExtractConfig  `toml:"extract"`
}

// DatasetConfig locates the read-only feature dataset on disk. All entries
// other than Root are paths relative to Root.
type DatasetConfig struct {
	Root          string `toml:"root"`
	VulESSLines   string `toml:"vul_ess_lines"`
	VulDEPLines   string `toml:"vul_dep_lines"`
	NoOldESSLines string `toml:"no_old_ess_lines"`
	NoOldDEPLines string `toml:"no_old_dep_lines"`
	PatESSLines   string `toml:"pat_ess_lines"`
	VulBodySet    string `toml:"vul_body_set"`
	VulHashes     string `toml:"vul_hashes"`
	TargetFuncs   string `toml:"target_funcs"`
	OSSIndex      string `toml:"oss_index"`
	IdxToVersion  string `toml:"idx_to_version"`
}

// DetectorConfig holds the matching engine's fixed constants.
type DetectorConfig struct {
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	MinBodyLines        int     `toml:"min_body_lines"`
}

// ExtractConfig controls function extraction from a target source tree.
type ExtractConfig struct {
	Extensions  []string `toml:"extensions"`
	Encodings   []string `toml:"encodings"`
	Concurrency int      `toml:"concurrency"`
}

// DefaultConfig returns the embedded default configuration, overridden by a
// local config.toml when one exists beside the working directory.
func DefaultConfig() (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(embeddedConfigData, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse embedded config: %w", err)
	}

	localConfigPaths := []string{
		"config.toml",
		"../config.toml",
	}
	for _, path := range localConfigPaths {
		if _, err := os.Stat(path); err == nil {
			localConfig, err := LoadFromFile(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to load local config %s: %v\n", path, err)
				break
			}
			return localConfig, nil
		}
	}

	return &cfg, nil
}

// LoadFromFile loads configuration from a TOML file.
func LoadFromFile(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return &cfg, nil
}

// Path helpers resolve dataset entries against the dataset root.

func (d DatasetConfig) VulESSLineDir() string   { return filepath.Join(d.Root, d.VulESSLines) }
func (d DatasetConfig) VulDEPLineDir() string   { return filepath.Join(d.Root, d.VulDEPLines) }
func (d DatasetConfig) NoOldESSLineDir() string { return filepath.Join(d.Root, d.NoOldESSLines) }
func (d DatasetConfig) NoOldDEPLineDir() string { return filepath.Join(d.Root, d.NoOldDEPLines) }
func (d DatasetConfig) PatESSLineDir() string   { return filepath.Join(d.Root, d.PatESSLines) }
func (d DatasetConfig) VulBodyDir() string      { return filepath.Join(d.Root, d.VulBodySet) }
func (d DatasetConfig) VulHashDir() string      { return filepath.Join(d.Root, d.VulHashes) }
func (d DatasetConfig) TargetFuncDir() string   { return filepath.Join(d.Root, d.TargetFuncs) }
func (d DatasetConfig) OSSIndexPath() string    { return filepath.Join(d.Root, d.OSSIndex) }
func (d DatasetConfig) IdxToVersionPath() string {
	return filepath.Join(d.Root, d.IdxToVersion)
}

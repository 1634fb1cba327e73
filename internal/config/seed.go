package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ChainSeed is one entry of an operator-authored chain-seed file,
// mirroring the add-operation fields of spec.md §4.5/§3's ChainConfig.
type ChainSeed struct {
	ChainID         int64  `yaml:"chainId"`
	Name            string `yaml:"name"`
	RPCURL          string `yaml:"rpcUrl"`
	ContractAddress string `yaml:"contractAddress"`
	StartingBlock   int64  `yaml:"startingBlock"`
	ScanIntervalMS  int64  `yaml:"scanIntervalMs"`
	MaxBlockRange   int64  `yaml:"maxBlockRange"`
	RetryAttempts   int    `yaml:"retryAttempts"`
	Enabled         bool   `yaml:"enabled"`
}

// ScanInterval converts ScanIntervalMS to a time.Duration for callers
// that build a model.ChainConfig from the seed.
func (s ChainSeed) ScanInterval() time.Duration {
	return time.Duration(s.ScanIntervalMS) * time.Millisecond
}

// LoadChainSeeds reads and parses an operator-provided YAML file
// listing chains to add at startup. An empty path is not an error:
// it means no seed file was configured.
func LoadChainSeeds(path string) ([]ChainSeed, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chain seed file %s: %w", path, err)
	}

	var seeds []ChainSeed
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		return nil, fmt.Errorf("parse chain seed file %s: %w", path, err)
	}
	return seeds, nil
}

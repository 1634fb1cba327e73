package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadChainSeeds_EmptyPath(t *testing.T) {
	seeds, err := LoadChainSeeds("")
	require.NoError(t, err)
	assert.Nil(t, seeds)
}

func TestLoadChainSeeds_ParsesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	content := `
- chainId: 137
  name: polygon
  rpcUrl: https://polygon-rpc.example
  contractAddress: "0x1111111111111111111111111111111111111111"
  startingBlock: 70000000
  scanIntervalMs: 30000
  maxBlockRange: 1000
  retryAttempts: 3
  enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	seeds, err := LoadChainSeeds(path)
	require.NoError(t, err)
	require.Len(t, seeds, 1)
	assert.Equal(t, int64(137), seeds[0].ChainID)
	assert.Equal(t, "polygon", seeds[0].Name)
	assert.True(t, seeds[0].Enabled)
	assert.Equal(t, 30*time.Second, seeds[0].ScanInterval())
}

func TestLoadChainSeeds_MissingFile(t *testing.T) {
	_, err := LoadChainSeeds("/nonexistent/path/seed.yaml")
	assert.Error(t, err)
}

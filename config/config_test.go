package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
rpc: http://localhost:8899
ws: ws://localhost:8900
key: ./keys/user.json
admin_key: ./keys/admin.json
commitment: finalized
log:
  level: debug
  compress: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8899", cfg.Rpc)
	assert.Equal(t, "./keys/admin.json", cfg.AdminKey)
	assert.Equal(t, rpc.CommitmentFinalized, cfg.CommitmentType())
	assert.Equal(t, 30, cfg.ConfirmAttempts)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.True(t, cfg.Log.ToLogOption().Compress)
}

func TestLoadRejects(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "commitment: eventually\n"))
	assert.ErrorContains(t, err, "unknown commitment")

	_, err = Load(writeConfig(t, "confirm_attempts: 0\n"))
	assert.ErrorContains(t, err, "confirm_attempts")

	_, err = Load(writeConfig(t, "rpc: [\n"))
	assert.ErrorContains(t, err, "parse config")
}

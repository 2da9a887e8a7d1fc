package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8000", cfg.Server.Addr)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mpprefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
storage:
  driver: memory
raft:
  enabled: true
  local-id: node-7
  timeout: 5s
log:
  level: debug
`), 0o600))

	t.Setenv("MPPREFS_SERVER_ADDR", ":9100")
	t.Setenv("MPPREFS_CLIENT_TIMEOUT", "2s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Server.Addr, "env wins over the file")
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.True(t, cfg.Raft.Enabled)
	assert.Equal(t, "node-7", cfg.Raft.LocalID)
	assert.Equal(t, 5*time.Second, cfg.Raft.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 2*time.Second, cfg.Client.Timeout)
	assert.Equal(t, 3, cfg.Raft.MaxPool, "untouched fields keep their defaults")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Storage.Driver = "etcd"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Storage.Path = ""
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Raft.Enabled = true
	cfg.Raft.LocalID = ""
	assert.Error(t, cfg.Validate())
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

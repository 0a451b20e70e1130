package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileIsFine(t *testing.T) {
	v, err := Load(t.TempDir(), "absent")
	require.NoError(t, err)

	v.SetDefault("server.port", 3001)
	assert.Equal(t, 3001, v.GetInt("server.port"))
}

func TestLoadExplicitFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 4000\n  host: example\n"), 0o600))
	t.Setenv("PEERCAST_SERVER_HOST", "from-env")

	v, err := Load("./nowhere", "config", WithConfigFile(path), WithEnvPrefix("PEERCAST"))
	require.NoError(t, err)

	assert.Equal(t, 4000, v.GetInt("server.port"))
	assert.Equal(t, "from-env", v.GetString("server.host"))
}

func TestLoadBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [\n"), 0o600))

	_, err := Load(".", "config", WithConfigFile(path))
	assert.Error(t, err)
}

func TestGetEnv(t *testing.T) {
	t.Setenv("PEERCAST_TEST_VALUE", "x")
	assert.Equal(t, "x", GetEnv("PEERCAST_TEST_VALUE", "fallback"))
	assert.Equal(t, "fallback", GetEnv("PEERCAST_TEST_UNSET", "fallback"))
}

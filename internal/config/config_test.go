package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "./states", cfg.StatesDir)
	require.Equal(t, uint32(2), cfg.OperatorAccountID)
}

func TestLoadAppliesFlags(t *testing.T) {
	cfg, err := Load("", "--exchange-id", "7", "--operator-account-id", "42")
	require.NoError(t, err)
	require.Equal(t, uint32(7), cfg.ExchangeID)
	require.Equal(t, uint32(42), cfg.OperatorAccountID)
}

func TestLoadFlagOverridesYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("exchangeID: 5\nstatesDir: /var/states\n"), 0o644))

	cfg, err := Load(path, "--exchange-id", "9")
	require.NoError(t, err)
	require.Equal(t, uint32(9), cfg.ExchangeID)
	require.Equal(t, "/var/states", cfg.StatesDir)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.NotNil(t, cfg)
}

func TestLoadRejectsBadFlagValue(t *testing.T) {
	_, err := Load("", "--exchange-id", "not-a-number")
	require.Error(t, err)
}

func TestLoadRejectsDanglingFlag(t *testing.T) {
	_, err := Load("", "--exchange-id")
	require.Error(t, err)
}

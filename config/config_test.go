package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, "creditvault-local", cfg.NetworkName)
	require.NoError(t, cfg.Validate())

	// A second load round-trips the persisted file.
	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, again)
}

func TestValidateRejectsBadAddresses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)

	cfg.Underlying = "not-an-address"
	require.Error(t, cfg.Validate())

	cfg.Underlying = "0x6B175474E89094C44Da98b954EedeAC495271d0F"
	cfg.Admin = "0x123"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsInvertedDebtBounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)

	cfg.MinDebt = "1000"
	cfg.MaxDebt = "10"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsMalformedLossCap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)

	cfg.MaxCumulativeLoss = "-5"
	require.Error(t, cfg.Validate())

	cfg.MaxCumulativeLoss = "not-a-number"
	require.Error(t, cfg.Validate())
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("RPCAddress = 42\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

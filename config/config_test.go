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

	_, err = os.Stat(path)
	require.NoError(t, err, "default file must be written")
	require.Equal(t, ":8645", cfg.RPCAddress)
	require.Equal(t, uint64(1_000), cfg.CustodianReserve)
	require.Equal(t, int64(30*24*60*60), cfg.ListingWindowSeconds())
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := "CustodianReserve = 50\nListingWindowDays = 7\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(50), cfg.CustodianReserve)
	require.Equal(t, int64(7*24*60*60), cfg.ListingWindowSeconds())
	require.NotEmpty(t, cfg.RPCAddress)
	require.NotEmpty(t, cfg.DataDir)
	require.NotNil(t, cfg.GenesisAlloc)
}

func TestValidateRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("CustodianReserve = 0\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err, "zero reserve must be rejected")

	bad := "CustodianReserve = 10\n[GenesisAlloc]\n\"not-an-address\" = 100\n"
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o644))
	_, err = Load(path)
	require.Error(t, err, "malformed genesis address must be rejected")
}

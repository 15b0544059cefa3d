package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mikewadsten/wisun-router/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsAndOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "router.yaml")

	const doc = `
interface: wisun0
pan_id: 0x1234
network_name: "test-fan"
gak_key_index: 1
eui64: "0011223344556677"
timers:
  retrans_timer: 2s
`
	require.NoError(t, writeFile(path, doc))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wisun0", cfg.Interface)
	assert.EqualValues(t, 0x1234, cfg.PANID)
	assert.Equal(t, "test-fan", cfg.NetworkName)
	assert.Equal(t, 2*time.Second, cfg.Timers.RetransTimer)
	// Unset in the YAML; Default()'s value should survive.
	assert.Equal(t, 30*time.Second, cfg.Timers.BaseReachableTime)
}

func TestValidateRequiresInterfaceAndNetworkName(t *testing.T) {
	t.Parallel()

	err := config.Default().Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingInterface)
	assert.ErrorIs(t, err, config.ErrMissingNetworkName)
}

func writeFile(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o644)
}

package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/lcalzada-xor/wsensor/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(kv map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := kv[key]
		return v, ok
	}
}

// base keeps tests away from the home directory default.
func base(extra ...string) []string {
	return append([]string{"-db", ":memory:"}, extra...)
}

func TestLoadArgs_Defaults(t *testing.T) {
	cfg, err := LoadArgs(base(), envOf(nil))
	require.NoError(t, err)

	assert.Equal(t, "wlan0", cfg.Primary)
	assert.Empty(t, cfg.Secondary)
	assert.Equal(t, 250*time.Millisecond, cfg.Dwell)
	assert.Equal(t, 100*time.Millisecond, cfg.MinDwell)
	assert.Equal(t, 50*time.Millisecond, cfg.DwellStep)
	assert.Equal(t, 3, cfg.Epoch)
	assert.Equal(t, 1, cfg.MinWorkers)
	assert.Equal(t, 4, cfg.MaxWorkers)
	assert.Equal(t, 10.0, cfg.Threshold)
	assert.Equal(t, domain.StateScan, cfg.State())
	assert.Len(t, cfg.ScanList, 15)
	assert.Equal(t, domain.ScanEntry{Channel: 1, Width: domain.WidthNone}, cfg.ScanList[0])
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel())
}

func TestLoadArgs_EnvThenFlags(t *testing.T) {
	env := envOf(map[string]string{
		"WSENSOR_INTERFACE":   "wlan1",
		"WSENSOR_CHANNELS":    "1:HT20,6:HT40+",
		"WSENSOR_MAX_WORKERS": "8",
		"WSENSOR_DEBUG":       "true",
		"WSENSOR_DWELL":       "not-a-number",
	})

	cfg, err := LoadArgs(base("-i", "wlp2s0", "-min-workers", "2"), env)
	require.NoError(t, err)

	assert.Equal(t, "wlp2s0", cfg.Primary, "flag overrides env")
	assert.Equal(t, 2, cfg.MinWorkers)
	assert.Equal(t, 8, cfg.MaxWorkers, "env overrides default")
	assert.Equal(t, 250*time.Millisecond, cfg.Dwell, "bad env value falls back to default")
	assert.True(t, cfg.Debug)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel())
	assert.Equal(t, []domain.ScanEntry{
		{Channel: 1, Width: domain.WidthHT20},
		{Channel: 6, Width: domain.WidthHT40Plus},
	}, cfg.ScanList)
}

func TestLoadArgs_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"zero min workers", []string{"-min-workers", "0"}, "min workers must be at least 1"},
		{"min above max", []string{"-min-workers", "5", "-max-workers", "2"}, "max workers 2 below min workers 5"},
		{"empty channels", []string{"-channels", " , "}, "empty scan pattern"},
		{"unknown width", []string{"-channels", "1:HT80"}, "invalid channel width"},
		{"bad channel", []string{"-channels", "x"}, "invalid channel"},
		{"bad state", []string{"-state", "hold"}, "initial state must be scan or pause"},
		{"bad interface", []string{"-i", "wlan0;rm"}, "invalid interface name"},
		{"same secondary", []string{"-i2", "wlan0"}, "must differ"},
		{"bad spoof", []string{"-spoof", "zz:zz"}, "invalid MAC address"},
		{"low above high", []string{"-low", "0.5", "-high", "0.2"}, "thresholds must satisfy"},
		{"min dwell above dwell", []string{"-dwell", "50"}, "min dwell"},
		{"unknown flag", []string{"-nope"}, "flag provided but not defined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadArgs(base(tt.args...), envOf(nil))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	c := &Config{Primary: "", Channels: "", InitialState: "scan", Threshold: 1,
		Dwell: time.Second, MinDwell: time.Millisecond, DwellStep: time.Millisecond}
	err := c.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInterfaceName)
	assert.ErrorIs(t, err, domain.ErrEmptyScanList)
	assert.Contains(t, err.Error(), "min workers")
}

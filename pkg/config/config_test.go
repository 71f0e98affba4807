package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.30, cfg.Detect.CenterMin)
	assert.Equal(t, 0.70, cfg.Detect.CenterMax)
	assert.Equal(t, 5, cfg.Detect.MinFrames)
	assert.Equal(t, 300*time.Millisecond, cfg.Detect.MinStable)
	assert.Equal(t, 10, cfg.Record.MaxSeconds)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scanner.yaml")
	data := []byte(`
device:
  path: /dev/video2
detect:
  minFrames: 3
  minStable: 250ms
exposure:
  flashOnBelow: 40
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/video2", cfg.Device.Path)
	assert.Equal(t, 3, cfg.Detect.MinFrames)
	assert.Equal(t, 250*time.Millisecond, cfg.Detect.MinStable)
	assert.Equal(t, 40.0, cfg.Exposure.FlashOnBelow)
	// untouched keys keep their defaults
	assert.Equal(t, 1920, cfg.Device.Width)
	assert.Equal(t, 180.0, cfg.Exposure.FlashOffAbove)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"band":       func(c *Config) { c.Detect.CenterMin, c.Detect.CenterMax = 0.7, 0.3 },
		"frames":     func(c *Config) { c.Detect.MinFrames = 0 },
		"hysteresis": func(c *Config) { c.Exposure.FlashOnBelow = 200 },
		"record":     func(c *Config) { c.Record.MaxSeconds = 0 },
		"dir":        func(c *Config) { c.Server.Dir = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 22050, cfg.Audio.SampleRate)
	assert.Equal(t, 44100, cfg.Audio.FrameLength())
	assert.Equal(t, 2, cfg.Audio.WindowFrames)
	assert.Equal(t, 30, cfg.Features.MFCCCoefficients)
	assert.Equal(t, PolicyDrop, cfg.Features.FailurePolicy)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fatigue.yaml")
	body := `
audio:
  sample_rate: 16000
features:
  failure_policy: zero
  workers: 1
artifacts:
  model_path: /srv/model.msgpack
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 16000, cfg.Audio.SampleRate)
	assert.Equal(t, 2.0, cfg.Audio.FrameSeconds, "unset keys keep their defaults")
	assert.Equal(t, PolicyZero, cfg.Features.FailurePolicy)
	assert.Equal(t, 1, cfg.Features.Workers)
	assert.Equal(t, "/srv/model.msgpack", cfg.Artifacts.ModelPath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 30, cfg.Features.MFCCCoefficients)
}

func TestLoadFromEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.yaml")
	require.NoError(t, os.WriteFile(path, []byte("audio:\n  frame_seconds: 1\n"), 0o644))
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 22050, cfg.Audio.FrameLength())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"fractional frame": func(c *Config) { c.Audio.FrameSeconds = 0.00001 },
		"zero rate":        func(c *Config) { c.Audio.SampleRate = 0 },
		"no window":        func(c *Config) { c.Audio.WindowFrames = 0 },
		"policy":           func(c *Config) { c.Features.FailurePolicy = "guess" },
		"pitch range":      func(c *Config) { c.Features.PitchCeiling = 10 },
		"too many mfcc":    func(c *Config) { c.Features.MFCCCoefficients = 500 },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

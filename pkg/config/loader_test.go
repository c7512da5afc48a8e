package config_test

import (
	"errors"
	"testing"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/saasbilling/pkg/config"
)

type serverConfig struct {
	Addr    string `env:"ADDR" envDefault:":8080"`
	Workers int    `env:"WORKERS" envDefault:"4"`
	Debug   bool   `env:"DEBUG"`
}

type requiredConfig struct {
	APIKey string `env:"API_KEY,required,notEmpty"`
}

type validatedConfig struct {
	Limit int `env:"LIMIT" envDefault:"10"`
}

func (c *validatedConfig) Validate() error {
	if c.Limit > 50 {
		return errors.New("limit too large")
	}
	return nil
}

func TestLoadWithOptions(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()
		var cfg serverConfig
		require.NoError(t, config.LoadWithOptions(&cfg, env.Options{Environment: map[string]string{}}))
		assert.Equal(t, ":8080", cfg.Addr)
		assert.Equal(t, 4, cfg.Workers)
		assert.False(t, cfg.Debug)
	})

	t.Run("values from environment", func(t *testing.T) {
		t.Parallel()
		var cfg serverConfig
		err := config.LoadWithOptions(&cfg, env.Options{Environment: map[string]string{
			"ADDR":    ":9000",
			"WORKERS": "8",
			"DEBUG":   "true",
		}})
		require.NoError(t, err)
		assert.Equal(t, ":9000", cfg.Addr)
		assert.Equal(t, 8, cfg.Workers)
		assert.True(t, cfg.Debug)
	})

	t.Run("prefix", func(t *testing.T) {
		t.Parallel()
		var cfg serverConfig
		err := config.LoadWithOptions(&cfg, env.Options{
			Prefix:      "HTTP_",
			Environment: map[string]string{"HTTP_ADDR": ":7000"},
		})
		require.NoError(t, err)
		assert.Equal(t, ":7000", cfg.Addr)
	})

	t.Run("missing required", func(t *testing.T) {
		t.Parallel()
		var cfg requiredConfig
		err := config.LoadWithOptions(&cfg, env.Options{Environment: map[string]string{}})
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("parse error", func(t *testing.T) {
		t.Parallel()
		var cfg serverConfig
		err := config.LoadWithOptions(&cfg, env.Options{Environment: map[string]string{"WORKERS": "many"}})
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("validator", func(t *testing.T) {
		t.Parallel()
		var cfg validatedConfig
		err := config.LoadWithOptions(&cfg, env.Options{Environment: map[string]string{"LIMIT": "100"}})
		assert.ErrorIs(t, err, config.ErrInvalidConfig)

		err = config.LoadWithOptions(&cfg, env.Options{Environment: map[string]string{"LIMIT": "20"}})
		require.NoError(t, err)
		assert.Equal(t, 20, cfg.Limit)
	})

	t.Run("nil pointer", func(t *testing.T) {
		t.Parallel()
		var cfg *serverConfig
		assert.ErrorIs(t, config.Load(cfg), config.ErrNilPointer)
	})
}

func TestLoad(t *testing.T) {
	t.Setenv("API_KEY", "secret")

	var cfg requiredConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "secret", cfg.APIKey)
}

func TestMustLoadPanics(t *testing.T) {
	t.Setenv("API_KEY", "")

	assert.Panics(t, func() {
		var cfg requiredConfig
		config.MustLoad(&cfg)
	})
}

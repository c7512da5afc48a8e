package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Validator is implemented by config structs that check their own invariants.
type Validator interface {
	Validate() error
}

var dotenvOnce sync.Once

// Load parses environment variables into v according to its env tags.
func Load[T any](v *T) error {
	return LoadWithOptions(v, env.Options{})
}

// LoadWithOptions is Load with explicit caarlos0/env options, e.g. a variable prefix
// or an injected environment map in tests.
func LoadWithOptions[T any](v *T, opts env.Options) error {
	if v == nil {
		return ErrNilPointer
	}

	dotenvOnce.Do(func() {
		// a missing .env file is not an error
		_ = godotenv.Load()
	})

	if err := env.ParseWithOptions(v, opts); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}

	if val, ok := any(v).(Validator); ok {
		if err := val.Validate(); err != nil {
			return errors.Join(ErrInvalidConfig, err)
		}
	}

	return nil
}

// MustLoad is Load that panics on failure. Use it in main only.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

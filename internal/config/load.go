package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	apperrors "github.com/jrsteele09/epr-admin-frontend/internal/errors"
)

// Load reads optional dotenv files into the process environment and returns the env-backed config.
// Variables already set in the environment win over file values.
func Load(files ...string) (Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("[config Load] %s: %w", f, err)
		}
	}
	return New(), nil
}

type snapshot struct {
	BaseURL        string `validate:"required,url"`
	ClientID       string `validate:"required"`
	ClientSecret   string `validate:"required"`
	WellKnownURL   string `validate:"required,url"`
	Issuer         string `validate:"omitempty,url"`
	CookieName     string `validate:"required"`
	CookiePassword string `validate:"required,min=32"`
	CacheName      string `validate:"required"`
	CacheEngine    string `validate:"oneof=memory redis"`
	RedisAddr      string `validate:"required_if=CacheEngine redis"`
}

// Validate checks that everything the auth core needs at runtime is present.
func Validate(c Config) error {
	s := snapshot{
		BaseURL:        c.GetBaseURL(),
		ClientID:       c.GetClientID(),
		ClientSecret:   c.GetClientSecret(),
		WellKnownURL:   c.GetWellKnownURL(),
		Issuer:         c.GetIssuer(),
		CookieName:     c.GetCookieName(),
		CookiePassword: c.GetCookiePassword(),
		CacheName:      c.GetCacheName(),
		CacheEngine:    c.GetCacheEngine(),
		RedisAddr:      c.GetRedisAddr(),
	}

	err := validator.New().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return apperrors.Wrapf(err, "validating config")
	}
	fields := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", apperrors.ErrInvalidConfig, strings.Join(fields, ", "))
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Identra Contributors

// Package config loads and validates service configuration from defaults,
// YAML file, environment variables, and command-line flags, in that order of
// increasing precedence.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/identra/identra/internal/identity"
)

// Config holds all service settings.
type Config struct {
	DatabaseURL string `koanf:"database_url" json:"database_url" jsonschema:"title=Database URL,description=PostgreSQL connection string"`
	SecretKey   string `koanf:"secret_key" json:"secret_key" jsonschema:"title=Secret key,description=Token signing secret; at least 32 bytes"`

	JWTAlgorithm string `koanf:"jwt_algorithm" json:"jwt_algorithm" jsonschema:"title=JWT algorithm,enum=HS256"`

	AccessTokenExpiresMinutes      int `koanf:"access_token_expires_minutes" json:"access_token_expires_minutes" jsonschema:"title=Access token lifetime in minutes,minimum=0"`
	RefreshTokenExpiresDays        int `koanf:"refresh_token_expires_days" json:"refresh_token_expires_days" jsonschema:"title=Refresh token lifetime in days,minimum=0"`
	PasswordResetTokenExpiresHours int `koanf:"password_reset_token_expires_hours" json:"password_reset_token_expires_hours" jsonschema:"title=Password reset token lifetime in hours,minimum=0"`

	ObservabilityAddr string `koanf:"observability_addr" json:"observability_addr" jsonschema:"title=Metrics and health listen address"`
	LogFormat         string `koanf:"log_format" json:"log_format" jsonschema:"title=Log format,enum=json,enum=text"`
}

// envKeys maps environment variable names to config keys. Only these
// variables are consulted; arbitrary environment is not merged.
var envKeys = map[string]string{
	"DATABASE_URL":                       "database_url",
	"SECRET_KEY":                         "secret_key",
	"JWT_ALGORITHM":                      "jwt_algorithm",
	"ACCESS_TOKEN_EXPIRES_MINUTES":       "access_token_expires_minutes",
	"REFRESH_TOKEN_EXPIRES_DAYS":         "refresh_token_expires_days",
	"PASSWORD_RESET_TOKEN_EXPIRES_HOURS": "password_reset_token_expires_hours",
	"OBSERVABILITY_ADDR":                 "observability_addr",
	"LOG_FORMAT":                         "log_format",
}

// intKeys are the config keys whose environment values parse as integers.
var intKeys = map[string]bool{
	"access_token_expires_minutes":       true,
	"refresh_token_expires_days":         true,
	"password_reset_token_expires_hours": true,
}

var defaults = map[string]any{
	"jwt_algorithm":                      "HS256",
	"access_token_expires_minutes":       30,
	"refresh_token_expires_days":         7,
	"password_reset_token_expires_hours": 1,
	"observability_addr":                 "127.0.0.1:9100",
	"log_format":                         "json",
}

// Load builds a Config. path is an optional YAML file; flags is an optional
// pflag set whose changed flags take highest precedence (flag names use
// dashes, config keys use underscores).
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("key", key).Wrap(err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "load config file").
				With("path", path).
				Wrap(err)
		}
	}

	for env, key := range envKeys {
		raw, ok := os.LookupEnv(env)
		if !ok {
			continue
		}
		var val any = raw
		if intKeys[key] {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, oops.Code("CONFIG_INVALID").
					With("variable", env).
					Errorf("%s must be an integer, got %q", env, raw)
			}
			val = n
		}
		if err := k.Set(key, val); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("key", key).Wrap(err)
		}
	}

	if flags != nil {
		// Flag names use dashes; translate to underscore keys. Unchanged
		// flags never override file or environment values.
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("operation", "load flags").
				Wrap(err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").
			With("operation", "unmarshal config").
			Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against the generated schema plus the
// constraints the schema cannot express.
func (c *Config) Validate() error {
	if err := validateSchema(c); err != nil {
		return err
	}

	// An unset secret is tolerated here; commands that build the token codec
	// fail on it there. A set-but-short secret is always a config error.
	if c.SecretKey != "" && len(c.SecretKey) < identity.MinSecretLength {
		return oops.Code("CONFIG_INVALID").
			With("min_bytes", identity.MinSecretLength).
			Errorf("secret_key must be at least %d bytes", identity.MinSecretLength)
	}
	return nil
}

// CodecConfig converts the token settings for identity.NewCodec.
func (c *Config) CodecConfig() identity.CodecConfig {
	return identity.CodecConfig{
		Secret:     c.SecretKey,
		Algorithm:  c.JWTAlgorithm,
		AccessTTL:  time.Duration(c.AccessTokenExpiresMinutes) * time.Minute,
		RefreshTTL: time.Duration(c.RefreshTokenExpiresDays) * 24 * time.Hour,
		ResetTTL:   time.Duration(c.PasswordResetTokenExpiresHours) * time.Hour,
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Environment variables read by Load.
const (
	EnvDatabaseURL         = "MODELSTORE_DATABASE_URL"
	EnvDatabaseURLFallback = "DATABASE_URL"
	EnvJWTKey              = "MODELSTORE_JWT_KEY"
	EnvLogLevel            = "MODELSTORE_LOG_LEVEL"
)

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"database-url": "database.url",
	"log-format":   "log.format",
	"log-level":    "log.level",
	"metrics-addr": "metrics.addr",
	"jwt-issuer":   "jwt.issuer",
	"jwt-audience": "jwt.audience",
}

// BindFlags registers the flags that override configuration values.
func BindFlags(flags *pflag.FlagSet) {
	def := Default()
	flags.String("database-url", "", "PostgreSQL connection URL")
	flags.String("log-format", def.Log.Format, "log format (json, text)")
	flags.String("log-level", def.Log.Level, "log level (debug, info, warn, error)")
	flags.String("metrics-addr", def.Metrics.Addr, "metrics and health listen address (empty disables)")
	flags.String("jwt-issuer", def.JWT.Issuer, "access token issuer")
	flags.String("jwt-audience", def.JWT.Audience, "access token audience")
}

// Options controls where Load reads from.
type Options struct {
	// Path is the YAML config file. A missing file is an error only when
	// Required is set.
	Path     string
	Required bool
	// Flags holds flags registered with BindFlags. Only flags the user set
	// override file and environment values.
	Flags *pflag.FlagSet
	// Getenv looks up environment variables; os.Getenv when nil.
	Getenv func(string) string
}

// Load builds a Config from defaults, the config file, the environment and
// flags, in that order of precedence, and validates it.
func Load(opts Options) (*Config, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	k := koanf.New(".")

	if opts.Path != "" {
		if err := loadFile(k, opts.Path, opts.Required); err != nil {
			return nil, err
		}
	}

	if err := loadEnv(k, getenv); err != nil {
		return nil, err
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.TextUnmarshallerHookFunc(),
				mapstructure.StringToTimeDurationHookFunc(),
			),
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").With("path", opts.Path).Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(k *koanf.Koanf, path string, required bool) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}
		return oops.Code("CONFIG_FILE_UNREADABLE").With("path", path).Wrap(err)
	}

	if err := ValidateFile(path); err != nil {
		return err
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
	}
	return nil
}

func loadEnv(k *koanf.Koanf, getenv func(string) string) error {
	set := func(key, value string) error {
		if value == "" {
			return nil
		}
		if err := k.Set(key, value); err != nil {
			return oops.Code("CONFIG_ENV_FAILED").With("key", key).Wrap(err)
		}
		return nil
	}

	dbURL := strings.TrimSpace(getenv(EnvDatabaseURL))
	if dbURL == "" {
		dbURL = strings.TrimSpace(getenv(EnvDatabaseURLFallback))
	}
	if err := set("database.url", dbURL); err != nil {
		return err
	}
	if err := set("jwt.key", getenv(EnvJWTKey)); err != nil {
		return err
	}
	return set("log.level", strings.TrimSpace(getenv(EnvLogLevel)))
}

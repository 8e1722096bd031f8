// Package settings loads process configuration for the trust core binaries.
//
// Values come from, in increasing priority: built-in defaults, a YAML file,
// a .env file and the process environment. Environment keys are the
// upper-cased dotted path with a TRUSTCORE_ prefix, e.g.
// TRUSTCORE_CORE_SESSION_TTL=30m or TRUSTCORE_REDIS_ADDR=127.0.0.1:6379.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	trustcore "github.com/RedBox-TN/Backend-sub000"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TRUSTCORE"

type ServerSettings struct {
	Address         string        `mapstructure:"address"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	MetricsPath     string        `mapstructure:"metrics_path"`
}

// RedisSettings configures the shared cache. With no address the dev server
// falls back to an in-process miniredis.
type RedisSettings struct {
	Addrs    []string `mapstructure:"addrs"`
	Password string   `mapstructure:"password"`
	DB       int      `mapstructure:"db"`
}

// DatabaseSettings configures the PostgreSQL directory. An empty DSN selects
// the in-memory directory.
type DatabaseSettings struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Migrate         bool          `mapstructure:"migrate"`
}

type LogSettings struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type SentrySettings struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

// AccessSettings names the permission bits in registration order and the
// roles built from them.
type AccessSettings struct {
	Permissions []string            `mapstructure:"permissions"`
	Roles       map[string][]string `mapstructure:"roles"`
}

// SeedSettings creates one account in the in-memory directory at startup.
type SeedSettings struct {
	Username string `mapstructure:"username"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
	Role     string `mapstructure:"role"`
}

type Settings struct {
	Server   ServerSettings   `mapstructure:"server"`
	Redis    RedisSettings    `mapstructure:"redis"`
	Database DatabaseSettings `mapstructure:"database"`
	Log      LogSettings      `mapstructure:"log"`
	Sentry   SentrySettings   `mapstructure:"sentry"`
	Access   AccessSettings   `mapstructure:"access"`
	Seed     SeedSettings     `mapstructure:"seed"`
	Core     trustcore.Config `mapstructure:"core"`
}

// Default returns settings for a local development run.
func Default() Settings {
	return Settings{
		Server: ServerSettings{
			Address:         ":8080",
			Mode:            "release",
			ShutdownTimeout: 10 * time.Second,
			MetricsPath:     "/metrics",
		},
		Database: DatabaseSettings{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
			Migrate:         true,
		},
		Log: LogSettings{
			Level: "info",
		},
		Sentry: SentrySettings{
			Environment: "development",
		},
		Access: AccessSettings{
			Permissions: []string{"messages.read", "messages.write", "groups.manage", "users.manage"},
			Roles: map[string][]string{
				"member": {"messages.read", "messages.write"},
				"admin":  {"messages.read", "messages.write", "groups.manage", "users.manage"},
			},
		},
		Seed: SeedSettings{
			Role: "member",
		},
		Core: trustcore.DefaultConfig(),
	}
}

// Options selects the files Load reads. Empty fields use the defaults:
// config.yaml in the working directory, and .env.
type Options struct {
	ConfigFile string
	EnvFiles   []string
}

// Load reads settings. A missing config or .env file is not an error when
// its path was not given explicitly.
func Load(opts Options) (*Settings, error) {
	if err := loadDotEnv(opts.EnvFiles); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v, "", reflect.ValueOf(Default()))

	if opts.ConfigFile == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(opts.ConfigFile)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &s, nil
}

func loadDotEnv(files []string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

// setDefaults registers every leaf of val under its mapstructure path so
// AutomaticEnv can override keys absent from the config file.
func setDefaults(v *viper.Viper, prefix string, val reflect.Value) {
	t := val.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		fv := val.Field(i)
		if fv.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Time{}) {
			setDefaults(v, key, fv)
			continue
		}
		v.SetDefault(key, fv.Interface())
	}
}

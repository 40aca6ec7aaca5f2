// Package config loads runtime settings from defaults, an optional .env
// file, environment variables and an optional YAML file, in increasing
// order of precedence for the last two.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full runtime configuration.
type Config struct {
	Spotify     SpotifyConfig     `mapstructure:"spotify"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Sync        SyncConfig        `mapstructure:"sync"`
	Enrich      EnrichConfig      `mapstructure:"enrich"`
	LastFM      LastFMConfig      `mapstructure:"lastfm"`
	Log         LogConfig         `mapstructure:"log"`
	Server      ServerConfig      `mapstructure:"server"`
}

type SpotifyConfig struct {
	ClientID       string        `mapstructure:"client_id" validate:"required"`
	ClientSecret   string        `mapstructure:"client_secret" validate:"required"`
	TokenURL       string        `mapstructure:"token_url" validate:"required,url"`
	APIURL         string        `mapstructure:"api_url" validate:"required,url"`
	RedirectURL    string        `mapstructure:"redirect_url" validate:"required,url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
}

type CredentialsConfig struct {
	Path          string        `mapstructure:"path"`
	RefreshMargin time.Duration `mapstructure:"refresh_margin" validate:"gte=0"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	URL    string `mapstructure:"url" validate:"required"`
}

type SyncConfig struct {
	WindowLimit int           `mapstructure:"window_limit" validate:"gte=1,lte=50"`
	MergeWindow time.Duration `mapstructure:"merge_window" validate:"gt=0"`
}

type EnrichConfig struct {
	BatchSize         int     `mapstructure:"batch_size" validate:"gte=1,lte=100"`
	Concurrency       int     `mapstructure:"concurrency" validate:"gte=1,lte=32"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gt=0"`
	BreakerFailures   uint32  `mapstructure:"breaker_failures" validate:"gte=1"`
	BackfillLimit     int     `mapstructure:"backfill_limit" validate:"gte=0"`
}

type LastFMConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required,hostname_port"`
}

// envAliases are accepted in addition to the names derived from the keys.
var envAliases = map[string][]string{
	"spotify.client_id":     {"SPOTIFY_CLIENT_ID", "SPOTIFY_ID"},
	"spotify.client_secret": {"SPOTIFY_CLIENT_SECRET", "SPOTIFY_SECRET"},
	"lastfm.api_key":        {"LASTFM_API_KEY"},
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func setDefaults(v *viper.Viper) {
	v.SetDefault("spotify.token_url", "https://accounts.spotify.com/api/token")
	v.SetDefault("spotify.api_url", "https://api.spotify.com/v1/")
	v.SetDefault("spotify.redirect_url", "http://127.0.0.1:8888/callback")
	v.SetDefault("spotify.request_timeout", 10*time.Second)

	v.SetDefault("credentials.path", "")
	v.SetDefault("credentials.refresh_margin", 60*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.url", "./db.sqlite")

	v.SetDefault("sync.window_limit", 50)
	v.SetDefault("sync.merge_window", 300*time.Second)

	v.SetDefault("enrich.batch_size", 100)
	v.SetDefault("enrich.concurrency", 4)
	v.SetDefault("enrich.requests_per_second", 5.0)
	v.SetDefault("enrich.breaker_failures", 5)
	v.SetDefault("enrich.backfill_limit", 50)

	v.SetDefault("lastfm.api_key", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("server.addr", "127.0.0.1:8080")
}

// Load reads the configuration. configFile may be empty, in which case
// config.yaml is looked up in ./config and the working directory and is
// optional. A missing .env file is not an error.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, envs := range envAliases {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(".", "config"))
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const EnvPrefix = "TILEWORLD"

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	Auth  AuthConfig  `mapstructure:"auth"`
	Game  GameConfig  `mapstructure:"game"`
	Store StoreConfig `mapstructure:"store"`
	IDs   IDConfig    `mapstructure:"ids"`
	Log   LogConfig   `mapstructure:"log"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	Issuer    string        `mapstructure:"issuer"`
}

type GameConfig struct {
	ThrottleInterval time.Duration `mapstructure:"throttle_interval"`
	SpawnRow         int           `mapstructure:"spawn_row"`
	SpawnCol         int           `mapstructure:"spawn_col"`
	ValidateMoves    bool          `mapstructure:"validate_moves"`
	SendBuffer       int           `mapstructure:"send_buffer"`
}

type StoreConfig struct {
	Driver   string         `mapstructure:"driver"`
	Timeout  time.Duration  `mapstructure:"timeout"`
	Debug    bool           `mapstructure:"debug"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Mysql    MysqlConfig    `mapstructure:"mysql"`
}

type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

type MysqlConfig struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	Database string `mapstructure:"database"`
}

type IDConfig struct {
	Node int64 `mapstructure:"node"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "168h")
	v.SetDefault("auth.issuer", "tileworld")

	v.SetDefault("game.throttle_interval", "100ms")
	v.SetDefault("game.spawn_row", 10)
	v.SetDefault("game.spawn_col", 15)
	v.SetDefault("game.validate_moves", false)
	v.SetDefault("game.send_buffer", 32)

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.timeout", "2s")
	v.SetDefault("store.debug", false)
	v.SetDefault("store.postgres.dsn", "")
	v.SetDefault("store.postgres.max_conns", 10)
	v.SetDefault("store.mysql.user", "")
	v.SetDefault("store.mysql.password", "")
	v.SetDefault("store.mysql.host", "")
	v.SetDefault("store.mysql.database", "")

	v.SetDefault("ids.node", 1)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
}

// Load reads config/config.<CONFIG_ENV>.yaml, or path when it is set.
// Environment variables such as TILEWORLD_STORE_DRIVER override the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	fileName := path
	if fileName == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("static", cfg.StaticPath).Str("store", cfg.Store.Driver).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Secret == "" {
		c.Secret = c.Auth.JWTSecret
	}
	switch c.Store.Driver {
	case "memory", "postgres", "mysql":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Game.SpawnRow < 0 || c.Game.SpawnCol < 0 {
		return errors.New("game.spawn_row and game.spawn_col must be non-negative")
	}
	if c.Game.SendBuffer <= 0 {
		c.Game.SendBuffer = 32
	}
	return nil
}

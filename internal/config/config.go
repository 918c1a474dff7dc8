// Package config загружает конфигурацию сервера из YAML-файла и переменных
// окружения DOCCOLLAB_* через viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix префикс переменных окружения (DOCCOLLAB_SERVER_ADDRESS и т.п.)
const EnvPrefix = "DOCCOLLAB"

// Config конфигурация сервера
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Collaboration CollaborationConfig `mapstructure:"collaboration"`
	Notify        NotifyConfig        `mapstructure:"notify"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ServerConfig HTTP-сервер
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RateLimit максимум отправок операций одного актора за RateWindow
	RateLimit  int           `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`
}

// StorageConfig хранилища
type StorageConfig struct {
	// SQLitePath файл базы записей (":memory:" для временной базы)
	SQLitePath string `mapstructure:"sqlite_path"`
	// AuditPath файл журнала аудита BoltDB; пустой путь хранит журнал в памяти
	AuditPath string `mapstructure:"audit_path"`
}

// AuthConfig выпуск и проверка bearer-токенов
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// CollaborationConfig параметры координации
type CollaborationConfig struct {
	SessionTimeout    time.Duration `mapstructure:"session_timeout"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
	ConflictWindow    time.Duration `mapstructure:"conflict_window"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	DistanceThreshold int           `mapstructure:"distance_threshold"`
	LineWeight        int           `mapstructure:"line_weight"`
	RecentPageSize    int           `mapstructure:"recent_page_size"`
}

// NotifyConfig доставка событий
type NotifyConfig struct {
	// Driver none, redis или nats
	Driver        string   `mapstructure:"driver"`
	Prefix        string   `mapstructure:"prefix"`
	RedisAddr     string   `mapstructure:"redis_addr"`
	RedisPassword string   `mapstructure:"redis_password"`
	NATSServers   []string `mapstructure:"nats_servers"`
	RedisDB       int      `mapstructure:"redis_db"`
}

// LoggingConfig логирование
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Notification drivers
const (
	DriverNone  = "none"
	DriverRedis = "redis"
	DriverNATS  = "nats"
)

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit:       600,
			RateWindow:      time.Minute,
		},
		Storage: StorageConfig{
			SQLitePath: "doccollab.db",
			AuditPath:  "doccollab-audit.db",
		},
		Auth: AuthConfig{
			AccessTokenTTL: 24 * time.Hour,
		},
		Collaboration: CollaborationConfig{
			SessionTimeout:    60 * time.Minute,
			LockTTL:           30 * time.Minute,
			ConflictWindow:    5 * time.Minute,
			SweepInterval:     time.Minute,
			DistanceThreshold: 100,
			LineWeight:        1000,
			RecentPageSize:    100,
		},
		Notify: NotifyConfig{
			Driver:    DriverNone,
			Prefix:    "doccollab",
			RedisAddr: "localhost:6379",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SetDefaults регистрирует значения по умолчанию в v
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.rate_limit", d.Server.RateLimit)
	v.SetDefault("server.rate_window", d.Server.RateWindow)

	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.audit_path", d.Storage.AuditPath)

	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.access_token_ttl", d.Auth.AccessTokenTTL)

	v.SetDefault("collaboration.session_timeout", d.Collaboration.SessionTimeout)
	v.SetDefault("collaboration.lock_ttl", d.Collaboration.LockTTL)
	v.SetDefault("collaboration.conflict_window", d.Collaboration.ConflictWindow)
	v.SetDefault("collaboration.sweep_interval", d.Collaboration.SweepInterval)
	v.SetDefault("collaboration.distance_threshold", d.Collaboration.DistanceThreshold)
	v.SetDefault("collaboration.line_weight", d.Collaboration.LineWeight)
	v.SetDefault("collaboration.recent_page_size", d.Collaboration.RecentPageSize)

	v.SetDefault("notify.driver", d.Notify.Driver)
	v.SetDefault("notify.prefix", d.Notify.Prefix)
	v.SetDefault("notify.redis_addr", d.Notify.RedisAddr)
	v.SetDefault("notify.redis_password", d.Notify.RedisPassword)
	v.SetDefault("notify.redis_db", d.Notify.RedisDB)
	v.SetDefault("notify.nats_servers", d.Notify.NATSServers)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// Load читает конфигурацию: значения по умолчанию, затем файл path (если задан),
// затем переменные окружения. Результат проверяется Validate.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ValidationError одна ошибка проверки
type ValidationError struct {
	Value   any
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// Validate проверяет конфигурацию и возвращает все найденные ошибки разом
func (c *Config) Validate() error {
	var list []error
	add := func(field string, value any, msg string) {
		list = append(list, ValidationError{Field: field, Value: value, Message: msg})
	}

	if c.Server.Address == "" {
		add("server.address", c.Server.Address, "must not be empty")
	}
	if c.Server.RateLimit < 0 {
		add("server.rate_limit", c.Server.RateLimit, "must not be negative")
	}
	if c.Storage.SQLitePath == "" {
		add("storage.sqlite_path", c.Storage.SQLitePath, "must not be empty")
	}
	if len(c.Auth.JWTSecret) < 32 {
		add("auth.jwt_secret", "<redacted>", "must be at least 32 bytes")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		add("auth.access_token_ttl", c.Auth.AccessTokenTTL, "must be positive")
	}

	durations := map[string]time.Duration{
		"collaboration.session_timeout": c.Collaboration.SessionTimeout,
		"collaboration.lock_ttl":        c.Collaboration.LockTTL,
		"collaboration.conflict_window": c.Collaboration.ConflictWindow,
		"collaboration.sweep_interval":  c.Collaboration.SweepInterval,
	}
	for field, d := range durations {
		if d <= 0 {
			add(field, d, "must be positive")
		}
	}
	if c.Collaboration.DistanceThreshold <= 0 {
		add("collaboration.distance_threshold", c.Collaboration.DistanceThreshold, "must be positive")
	}
	if c.Collaboration.LineWeight <= c.Collaboration.DistanceThreshold {
		add("collaboration.line_weight", c.Collaboration.LineWeight, "must exceed distance_threshold")
	}
	if c.Collaboration.RecentPageSize <= 0 {
		add("collaboration.recent_page_size", c.Collaboration.RecentPageSize, "must be positive")
	}

	switch c.Notify.Driver {
	case DriverNone:
	case DriverRedis:
		if c.Notify.RedisAddr == "" {
			add("notify.redis_addr", c.Notify.RedisAddr, "required for redis driver")
		}
	case DriverNATS:
		if len(c.Notify.NATSServers) == 0 {
			add("notify.nats_servers", c.Notify.NATSServers, "required for nats driver")
		}
	default:
		add("notify.driver", c.Notify.Driver, "must be one of none, redis, nats")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level", c.Logging.Level, "must be one of debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		add("logging.format", c.Logging.Format, "must be text or json")
	}

	return errors.Join(list...)
}

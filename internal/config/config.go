// Package config loads the relay configuration: a TOML file merged over
// Default(), then environment overrides, then struct validation.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"mediarelay/internal/pkg/errors"
)

const (
	DefaultConfigPath  = "mediarelay.toml"
	DefaultHTTPAddr    = ":8081"
	DefaultQueueName   = "mediarelay:queue"
	DefaultBotUsername = "@mediarelay_bot"
	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
)

// Strategy names accepted in delivery.order.
const (
	StrategyDirect     = "direct"
	StrategyConversion = "conversion"
	StrategyReupload   = "reupload"
)

type Config struct {
	Log          LogConfig          `toml:"log"`
	Telegram     TelegramConfig     `toml:"telegram"`
	Worker       WorkerConfig       `toml:"worker"`
	Admission    AdmissionConfig    `toml:"admission"`
	Resolver     ResolverConfig     `toml:"resolver"`
	Delivery     DeliveryConfig     `toml:"delivery"`
	Conversion   ConversionConfig   `toml:"conversion"`
	Progress     ProgressConfig     `toml:"progress"`
	Descriptions DescriptionsConfig `toml:"descriptions"`
	// Credentials maps a provider name to its cookie blob (Netscape format).
	Credentials map[string]string `toml:"credentials"`
	Scratch     ScratchConfig     `toml:"scratch"`
	HTTP        HTTPConfig        `toml:"http"`
	Redis       RedisConfig       `toml:"redis"`
	Postgres    PostgresConfig    `toml:"postgres"`
}

type LogConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn warning error"`
	Format string `toml:"format" validate:"oneof=json text"`
}

type TelegramConfig struct {
	Token       string        `toml:"token"`
	BotUsername string        `toml:"bot_username"`
	SendTimeout time.Duration `toml:"send_timeout" validate:"gt=0"`
}

type WorkerConfig struct {
	Count     int    `toml:"count" validate:"min=1,max=64"`
	Queue     string `toml:"queue" validate:"oneof=memory redis"`
	QueueName string `toml:"queue_name" validate:"required"`
}

type AdmissionConfig struct {
	Enabled bool          `toml:"enabled"`
	TTL     time.Duration `toml:"ttl" validate:"gt=0"`
}

type ResolverConfig struct {
	Timeout   time.Duration `toml:"timeout" validate:"gt=0"`
	MaxItems  int           `toml:"max_items" validate:"min=1,max=100"`
	UserAgent string        `toml:"user_agent"`
	Retries   int           `toml:"retries" validate:"min=0"`
	Binary    string        `toml:"binary" validate:"required"`
	// OpenGraph enables the HTML fallback extractor.
	OpenGraph bool `toml:"opengraph"`
}

type DeliveryConfig struct {
	Order             []string      `toml:"order" validate:"min=1,unique,dive,oneof=direct conversion reupload"`
	MaxSize           ByteSize      `toml:"max_size" validate:"gt=0"`
	MemoryThreshold   ByteSize      `toml:"memory_threshold" validate:"gte=0"`
	TransferTimeout   time.Duration `toml:"transfer_timeout" validate:"gt=0"`
	ReuploadProviders []string      `toml:"reupload_providers" validate:"dive,oneof=instagram pinterest youtube tiktok facebook"`
	SendInterval      time.Duration `toml:"send_interval" validate:"gte=0"`
}

type ConversionConfig struct {
	Endpoints []string      `toml:"endpoints" validate:"dive,url"`
	Timeout   time.Duration `toml:"timeout" validate:"gt=0"`
	Quality   string        `toml:"quality" validate:"oneof=144 240 360 480 720 1080 1440 2160 max"`
}

type ProgressConfig struct {
	Interval time.Duration `toml:"interval" validate:"gt=0"`
}

type DescriptionsConfig struct {
	TTL     time.Duration `toml:"ttl" validate:"gt=0"`
	Backend string        `toml:"backend" validate:"oneof=memory redis"`
}

type ScratchConfig struct {
	Dir string `toml:"dir" validate:"required"`
}

type HTTPConfig struct {
	Addr string `toml:"addr"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db" validate:"min=0"`
}

type PostgresConfig struct {
	URL string `toml:"url"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Telegram: TelegramConfig{
			BotUsername: DefaultBotUsername,
			SendTimeout: 120 * time.Second,
		},
		Worker: WorkerConfig{Count: 3, Queue: "memory", QueueName: DefaultQueueName},
		Admission: AdmissionConfig{
			Enabled: true,
			TTL:     30 * time.Minute,
		},
		Resolver: ResolverConfig{
			Timeout:   30 * time.Second,
			MaxItems:  10,
			UserAgent: DefaultUserAgent,
			Retries:   5,
			Binary:    "yt-dlp",
			OpenGraph: true,
		},
		Delivery: DeliveryConfig{
			Order:             []string{StrategyDirect, StrategyConversion, StrategyReupload},
			MaxSize:           1 * GiB,
			MemoryThreshold:   20 * MiB,
			TransferTimeout:   90 * time.Second,
			ReuploadProviders: []string{"youtube", "tiktok", "facebook"},
			SendInterval:      time.Second,
		},
		Conversion: ConversionConfig{
			Timeout: 30 * time.Second,
			Quality: "1080",
		},
		Progress:     ProgressConfig{Interval: 3 * time.Second},
		Descriptions: DescriptionsConfig{TTL: 5 * time.Minute, Backend: "memory"},
		Credentials:  map[string]string{},
		Scratch:      ScratchConfig{Dir: filepath.Join(os.TempDir(), "mediarelay")},
		HTTP:         HTTPConfig{Addr: DefaultHTTPAddr},
	}
}

// Load reads path (DefaultConfigPath when empty) over the defaults, applies
// environment overrides and validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeValidation, "config.load", "parsing "+path)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "config.load", "reading "+path)
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field bounds and cross-field requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return errors.ValidationField(first.Namespace(),
				"failed on the '"+first.Tag()+"' rule").WithField("errors", len(verrs))
		}
		return errors.WrapWithCode(err, errors.CodeValidation, "config.validate", "invalid config")
	}

	if c.Worker.Queue == "redis" && c.Redis.Addr == "" {
		return errors.ValidationField("worker.queue", "redis queue requires redis.addr")
	}
	if c.Descriptions.Backend == "redis" && c.Redis.Addr == "" {
		return errors.ValidationField("descriptions.backend", "redis backend requires redis.addr")
	}
	if c.Delivery.MemoryThreshold > c.Delivery.MaxSize {
		return errors.ValidationField("delivery.memory_threshold", "must not exceed delivery.max_size")
	}
	return nil
}

// RequireTelegram reports a validation error when the bot token is missing.
func (c *Config) RequireTelegram() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.ValidationField("telegram.token", "TELEGRAM_TOKEN is required")
	}
	return nil
}

// Credential returns the cookie blob configured for provider.
func (c *Config) Credential(provider string) string {
	return c.Credentials[strings.ToLower(provider)]
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// credentialProviders are the providers whose cookie is read from <NAME>_COOKIE.
var credentialProviders = []string{"instagram", "pinterest", "youtube", "tiktok", "facebook"}

// ApplyEnv overrides file values with the process environment.
func (c *Config) ApplyEnv() {
	c.Log.Level = Env("LOG_LEVEL", c.Log.Level)
	c.Log.Format = Env("LOG_FORMAT", c.Log.Format)

	c.Telegram.Token = Env("TELEGRAM_TOKEN", c.Telegram.Token)
	c.Telegram.BotUsername = Env("BOT_USERNAME", c.Telegram.BotUsername)

	c.Worker.Count = IntEnv("WORKERS", c.Worker.Count)
	c.Worker.Queue = Env("QUEUE_BACKEND", c.Worker.Queue)
	c.Admission.Enabled = BoolEnv("ADMISSION_ENABLED", c.Admission.Enabled)

	c.Resolver.Binary = Env("YTDLP_BIN", c.Resolver.Binary)
	c.Resolver.MaxItems = IntEnv("MAX_ITEMS", c.Resolver.MaxItems)
	c.Resolver.Timeout = DurationEnv("RESOLVER_TIMEOUT", c.Resolver.Timeout)

	if v := Env("CONVERSION_ENDPOINTS", ""); v != "" {
		c.Conversion.Endpoints = splitList(v)
	}
	if v := Env("DELIVERY_ORDER", ""); v != "" {
		c.Delivery.Order = splitList(v)
	}

	c.Scratch.Dir = Env("SCRATCH_DIR", c.Scratch.Dir)
	c.HTTP.Addr = Env("HTTP_ADDR", c.HTTP.Addr)
	c.Redis.Addr = Env("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = Env("REDIS_PASSWORD", c.Redis.Password)
	c.Postgres.URL = Env("DATABASE_URL", c.Postgres.URL)

	if c.Credentials == nil {
		c.Credentials = map[string]string{}
	}
	for _, p := range credentialProviders {
		// Cookie blobs are multi-line; only surrounding whitespace is trimmed.
		if v := strings.TrimSpace(os.Getenv(strings.ToUpper(p) + "_COOKIE")); v != "" {
			c.Credentials[p] = v
		}
	}
}

func Env(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func MustEnv(k string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		panic("missing env: " + k)
	}
	return v
}

// BoolEnv reads an env var as bool. If empty or invalid, returns def.
// strconv.ParseBool accepts: 1,t,T,TRUE,true,True,0,f,F,FALSE,false,False.
func BoolEnv(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// IntEnv reads an env var as int. If empty or invalid, returns def.
func IntEnv(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// DurationEnv reads an env var as a Go duration ("90s"). If empty or invalid, returns def.
func DurationEnv(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

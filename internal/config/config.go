package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type TLSConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string
}

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// StorageConfig selects the blob backend. Backend is either "disk" or "s3".
type StorageConfig struct {
	Backend   string
	Dir       string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

type SessionConfig struct {
	CookieName   string
	TTL          time.Duration
	CookieSecure bool
	MaxSessions  int
}

type SecurityConfig struct {
	JWTAccessSecret string
	JWTAccessTTL    time.Duration
}

type QuotaConfig struct {
	DefaultBytes int64
}

type UploadConfig struct {
	MaxBytes int64
}

// AdminConfig carries the bootstrap account and the URL prefix the admin
// routes are registered under. The prefix is deliberately configurable so
// deployments can move the panel off a guessable path.
type AdminConfig struct {
	Prefix     string
	Username   string
	Password   string
	QuotaBytes int64
}

type RateLimitConfig struct {
	LoginPerMinute int
}

type AppConfig struct {
	Environment      string
	OpenRegistration bool
	HTTP             HTTPConfig
	TLS              TLSConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Session          SessionConfig
	Security         SecurityConfig
	Quota            QuotaConfig
	Upload           UploadConfig
	Admin            AdminConfig
	RateLimit        RateLimitConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("FILEVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("openregistration", false)

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "60s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.backend", "disk")
	v.SetDefault("storage.dir", "./data/blobs")
	v.SetDefault("storage.bucket", "filevault-blobs")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("session.cookiename", "fv_session")
	v.SetDefault("session.ttl", "720h") // 30 days
	v.SetDefault("session.cookiesecure", false)
	v.SetDefault("session.maxsessions", 10)

	v.SetDefault("security.jwtaccessttl", "15m")

	v.SetDefault("quota.defaultbytes", 100*1024*1024) // 100MB
	v.SetDefault("upload.maxbytes", 1024*1024*1024)   // 1GB per request

	v.SetDefault("admin.prefix", "/admin")
	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.quotabytes", 1024*1024*1024) // 1GB

	v.SetDefault("ratelimit.loginperminute", 10)
}

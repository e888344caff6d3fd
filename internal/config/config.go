// AngelaMos | 2026
// config.go

package config

import (
	"fmt"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	App       AppConfig       `koanf:"app"`
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	JWT       JWTConfig       `koanf:"jwt"`
	Session   SessionConfig   `koanf:"session"`
	Cookie    CookieConfig    `koanf:"cookie"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Log       LogConfig       `koanf:"log"`
	Otel      OtelConfig      `koanf:"otel"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	TrustedProxies  []string      `koanf:"trusted_proxies"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

type RedisConfig struct {
	URL          string        `koanf:"url"`
	PoolSize     int           `koanf:"pool_size"`
	MinIdleConns int           `koanf:"min_idle_conns"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
}

type JWTConfig struct {
	PrivateKeyPath     string        `koanf:"private_key_path"`
	PublicKeyPath      string        `koanf:"public_key_path"`
	AccessTokenExpire  time.Duration `koanf:"access_token_expire"`
	RefreshTokenExpire time.Duration `koanf:"refresh_token_expire"`
	Issuer             string        `koanf:"issuer"`
	Audience           string        `koanf:"audience"`
}

const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type SessionConfig struct {
	Store                 string        `koanf:"store"`
	RevokeSubjectOnReplay bool          `koanf:"revoke_subject_on_replay"`
	SweepInterval         time.Duration `koanf:"sweep_interval"`
	SweepRetention        time.Duration `koanf:"sweep_retention"`
}

type CookieConfig struct {
	Name     string `koanf:"name"`
	Path     string `koanf:"path"`
	Domain   string `koanf:"domain"`
	Secure   bool   `koanf:"secure"`
	SameSite string `koanf:"same_site"`
}

func (c CookieConfig) SameSiteMode() http.SameSite {
	switch strings.ToLower(c.SameSite) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}

type RateLimitConfig struct {
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
	Burst    int           `koanf:"burst"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type OtelConfig struct {
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	Enabled     bool    `koanf:"enabled"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

var (
	cfg     *Config
	loadErr error
	once    sync.Once
)

// Load reads the process configuration once; later calls return the first
// result regardless of configPath.
func Load(configPath string) (*Config, error) {
	once.Do(func() {
		cfg, loadErr = load(configPath)
	})

	if loadErr != nil {
		return nil, loadErr
	}

	return cfg, nil
}

func Get() *Config {
	if cfg == nil {
		panic("config not loaded: call Load() first")
	}
	return cfg
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyReplacer), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	out := &Config{}
	if err := k.Unmarshal("", out); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(out); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return out, nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":        "Judge Session Service",
		"app.version":     "1.0.0",
		"app.environment": "development",

		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "15s",

		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  "1h",
		"database.conn_max_idle_time": "30m",
		"database.auto_migrate":       true,

		"redis.pool_size":      10,
		"redis.min_idle_conns": 5,
		"redis.dial_timeout":   "5s",

		"jwt.access_token_expire":  "15m",
		"jwt.refresh_token_expire": "24h",
		"jwt.issuer":               "judge",
		"jwt.audience":             "judge-api",
		"jwt.private_key_path":     "keys/private.pem",
		"jwt.public_key_path":      "keys/public.pem",

		"session.store":                    StorePostgres,
		"session.revoke_subject_on_replay": true,
		"session.sweep_interval":           "1h",
		"session.sweep_retention":          "72h",

		"cookie.name":      "refresh_token",
		"cookie.path":      "/v1/auth",
		"cookie.secure":    true,
		"cookie.same_site": "strict",

		"rate_limit.requests": 30,
		"rate_limit.window":   "1m",
		"rate_limit.burst":    10,

		"log.level":  "info",
		"log.format": "json",

		"otel.enabled":      false,
		"otel.insecure":     true,
		"otel.sample_rate":  0.1,
		"otel.service_name": "judge-session",
	}

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

var envKeyMap = map[string]string{
	"DATABASE_URL":                     "database.url",
	"DATABASE_AUTO_MIGRATE":            "database.auto_migrate",
	"REDIS_URL":                        "redis.url",
	"ENVIRONMENT":                      "app.environment",
	"HOST":                             "server.host",
	"PORT":                             "server.port",
	"TRUSTED_PROXIES":                  "server.trusted_proxies",
	"LOG_LEVEL":                        "log.level",
	"LOG_FORMAT":                       "log.format",
	"JWT_PRIVATE_KEY_PATH":             "jwt.private_key_path",
	"JWT_PUBLIC_KEY_PATH":              "jwt.public_key_path",
	"JWT_ACCESS_TOKEN_EXPIRE":          "jwt.access_token_expire",
	"JWT_REFRESH_TOKEN_EXPIRE":         "jwt.refresh_token_expire",
	"JWT_ISSUER":                       "jwt.issuer",
	"JWT_AUDIENCE":                     "jwt.audience",
	"SESSION_STORE":                    "session.store",
	"SESSION_REVOKE_SUBJECT_ON_REPLAY": "session.revoke_subject_on_replay",
	"SESSION_SWEEP_INTERVAL":           "session.sweep_interval",
	"SESSION_SWEEP_RETENTION":          "session.sweep_retention",
	"COOKIE_NAME":                      "cookie.name",
	"COOKIE_DOMAIN":                    "cookie.domain",
	"COOKIE_SECURE":                    "cookie.secure",
	"COOKIE_SAME_SITE":                 "cookie.same_site",
	"RATE_LIMIT_REQUESTS":              "rate_limit.requests",
	"RATE_LIMIT_WINDOW":                "rate_limit.window",
	"RATE_LIMIT_BURST":                 "rate_limit.burst",
	"OTEL_ENDPOINT":                    "otel.endpoint",
	"OTEL_EXPORTER_OTLP_ENDPOINT":      "otel.endpoint",
	"OTEL_SERVICE_NAME":                "otel.service_name",
	"OTEL_ENABLED":                     "otel.enabled",
	"OTEL_INSECURE":                    "otel.insecure",
	"OTEL_SAMPLE_RATE":                 "otel.sample_rate",
}

func envKeyReplacer(s string) string {
	if mapped, ok := envKeyMap[s]; ok {
		return mapped
	}
	return ""
}

func validate(c *Config) error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.JWT.PrivateKeyPath == "" {
		return fmt.Errorf("JWT_PRIVATE_KEY_PATH is required")
	}

	if c.JWT.AccessTokenExpire <= 0 || c.JWT.AccessTokenExpire > time.Hour {
		return fmt.Errorf("jwt.access_token_expire must be between 0 and 1h")
	}

	if c.JWT.RefreshTokenExpire <= c.JWT.AccessTokenExpire {
		return fmt.Errorf(
			"jwt.refresh_token_expire must be longer than jwt.access_token_expire",
		)
	}

	switch c.Session.Store {
	case StorePostgres, StoreRedis:
	default:
		return fmt.Errorf("session.store must be %q or %q", StorePostgres, StoreRedis)
	}

	if c.Cookie.Name == "" {
		return fmt.Errorf("cookie.name is required")
	}

	if c.IsProduction() {
		if !c.Cookie.Secure {
			return fmt.Errorf("COOKIE_SECURE must be true in production")
		}
		if c.Otel.Enabled && c.Otel.Insecure {
			return fmt.Errorf("OTEL_INSECURE must be false in production")
		}
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}

	if _, err := c.Server.TrustedProxyPrefixes(); err != nil {
		return err
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// TrustedProxyPrefixes parses TrustedProxies. Entries may be comma
// separated, as they arrive from TRUSTED_PROXIES, and bare addresses are
// treated as single-host prefixes.
func (s *ServerConfig) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, raw := range strings.Split(strings.Join(s.TrustedProxies, ","), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if p, err := netip.ParsePrefix(raw); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("server.trusted_proxies: invalid entry %q", raw)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

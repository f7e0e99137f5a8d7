package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"gopkg.in/yaml.v3"
)

const devJWTSecret = "dev-secret-change-me"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Cache    CacheConfig    `yaml:"cache"`
	Log      LogConfig      `yaml:"log"`
	Deploy   DeployConfig   `yaml:"deploy"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Env            string   `yaml:"env"` // "dev" | "prod"
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig contains Postgres connection settings.
// URL wins over the individual fields when set.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// AuthConfig contains session and token settings.
type AuthConfig struct {
	JWTSecret   string        `yaml:"jwt_secret"`
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	AccessTTL   time.Duration `yaml:"access_ttl"`
	SessionTTL  time.Duration `yaml:"session_ttl"`
	CookieName  string        `yaml:"cookie_name"`
	DemoEnabled bool          `yaml:"demo_enabled"`
	// SignInPerMinute caps password sign-in attempts per client IP.
	SignInPerMinute int `yaml:"sign_in_per_minute"`
}

// CacheConfig selects the session/rate-limit backend.
type CacheConfig struct {
	Driver   string `yaml:"driver"` // "memory" | "redis"
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Env   string `yaml:"env"`
	Level string `yaml:"level"`
}

// DeployConfig drives `tko build` / `tko deploy`.
type DeployConfig struct {
	Image        string        `yaml:"image"`
	Context      string        `yaml:"context"`
	Services     []string      `yaml:"services"`
	HealthURL    string        `yaml:"health_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
	StepTimeout  time.Duration `yaml:"step_timeout"`
}

// Load reads configuration from the environment, overlaying the YAML file
// named by TKO_CONFIG when present. Environment variables take precedence.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("TKO_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.Auth.JWTSecret == "" {
		if cfg.IsProd() {
			return nil, fmt.Errorf("JWT_SECRET environment variable is not set; required in prod")
		}
		cfg.Auth.JWTSecret = devJWTSecret
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			Env:            "dev",
			AllowedOrigins: []string{"https://*", "http://*"},
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    "5432",
			User:    "postgres",
			Name:    "takeout",
			SSLMode: "disable",
		},
		Auth: AuthConfig{
			Issuer:          "takeout",
			Audience:        "takeout-sync",
			AccessTTL:       15 * time.Minute,
			SessionTTL:      7 * 24 * time.Hour,
			CookieName:      "tko_session",
			SignInPerMinute: 10,
		},
		Cache: CacheConfig{
			Driver: "memory",
			Addr:   "localhost:6379",
			Prefix: "tko",
		},
		Log: LogConfig{Env: "dev", Level: "info"},
		Deploy: DeployConfig{
			Image:        "takeout:latest",
			Services:     []string{"web"},
			HealthURL:    "http://localhost:8080/health",
			PollInterval: 2 * time.Second,
			Timeout:      2 * time.Minute,
			StepTimeout:  10 * time.Minute,
		},
	}
}

func (c *Config) mergeFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var err error
	if c.Server.Port, err = getEnvInt("PORT", c.Server.Port); err != nil {
		return err
	}
	c.Server.Env = getEnv("APP_ENV", c.Server.Env)
	if v := getEnv("ALLOWED_ORIGINS", ""); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}

	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USERNAME", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnv("DB_DATABASE", c.Database.Name)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)

	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.Issuer = getEnv("JWT_ISSUER", c.Auth.Issuer)
	c.Auth.Audience = getEnv("JWT_AUDIENCE", c.Auth.Audience)
	if c.Auth.AccessTTL, err = getEnvDuration("JWT_ACCESS_TTL", c.Auth.AccessTTL); err != nil {
		return err
	}
	if c.Auth.SessionTTL, err = getEnvDuration("SESSION_TTL", c.Auth.SessionTTL); err != nil {
		return err
	}
	c.Auth.CookieName = getEnv("SESSION_COOKIE", c.Auth.CookieName)
	if c.Auth.DemoEnabled, err = getEnvBool("DEMO_SIGN_IN", c.Auth.DemoEnabled); err != nil {
		return err
	}
	if c.Auth.SignInPerMinute, err = getEnvInt("SIGN_IN_PER_MINUTE", c.Auth.SignInPerMinute); err != nil {
		return err
	}

	c.Cache.Driver = getEnv("CACHE_DRIVER", c.Cache.Driver)
	c.Cache.Addr = getEnv("REDIS_ADDR", c.Cache.Addr)
	c.Cache.Password = getEnv("REDIS_PASSWORD", c.Cache.Password)
	if c.Cache.DB, err = getEnvInt("REDIS_DB", c.Cache.DB); err != nil {
		return err
	}

	c.Log.Env = getEnv("LOG_ENV", c.Log.Env)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)

	c.Deploy.Image = getEnv("DEPLOY_IMAGE", c.Deploy.Image)
	c.Deploy.Context = getEnv("UNCLOUD_CONTEXT", c.Deploy.Context)
	if v := getEnv("DEPLOY_SERVICES", ""); v != "" {
		c.Deploy.Services = splitList(v)
	}
	c.Deploy.HealthURL = getEnv("DEPLOY_HEALTH_URL", c.Deploy.HealthURL)
	if c.Deploy.PollInterval, err = getEnvDuration("DEPLOY_POLL_INTERVAL", c.Deploy.PollInterval); err != nil {
		return err
	}
	if c.Deploy.Timeout, err = getEnvDuration("DEPLOY_TIMEOUT", c.Deploy.Timeout); err != nil {
		return err
	}
	if c.Deploy.StepTimeout, err = getEnvDuration("DEPLOY_STEP_TIMEOUT", c.Deploy.StepTimeout); err != nil {
		return err
	}
	return nil
}

// IsProd reports whether the server runs in production mode.
func (c *Config) IsProd() bool {
	return strings.EqualFold(c.Server.Env, "prod")
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode)
}

// String returns a string representation of the config (sensitive values are masked).
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, Port: %d, DB: %s@%s:%s/%s, Cache: %s, Auth: *** (masked) ***}",
		c.Server.Env, c.Server.Port, c.Database.User, c.Database.Host, c.Database.Port, c.Database.Name, c.Cache.Driver)
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	if value, exists := os.LookupEnv(key); exists {
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return intVal, nil
	}
	return defaultVal, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	if value, exists := os.LookupEnv(key); exists {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, fmt.Errorf("invalid boolean for %s: %w", key, err)
		}
		return b, nil
	}
	return defaultVal, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		return d, nil
	}
	return defaultVal, nil
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

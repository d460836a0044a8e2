package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config captures the application-level runtime parameters. Infrastructure
// adapters that own a single connection string (postgres, redis, asynq) keep
// reading their own variables; everything else is centralized here.
type Config struct {
	HTTPAddr         string `mapstructure:"http_addr"`
	LogLevel         string `mapstructure:"log_level"`
	CORSOrigins      string `mapstructure:"cors_origins"`
	JWTSecret        string `mapstructure:"jwt_secret"`
	JWTIssuer        string `mapstructure:"jwt_issuer"`
	SystemPrivateKey string `mapstructure:"system_private_key"`
	SystemPublicKey  string `mapstructure:"system_public_key"`
	MetricsEnabled   bool   `mapstructure:"metrics_enabled"`
}

const (
	defaultHTTPAddr  = ":8080"
	defaultLogLevel  = "info"
	defaultCORS      = "*"
	defaultJWTIssuer = "ceriv"
)

// Load reads configuration from the environment. Variable names are the
// upper-cased field keys (HTTP_ADDR, LOG_LEVEL, JWT_SECRET, ...).
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("http_addr", defaultHTTPAddr)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("cors_origins", defaultCORS)
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_issuer", defaultJWTIssuer)
	v.SetDefault("system_private_key", "")
	v.SetDefault("system_public_key", "")
	v.SetDefault("metrics_enabled", true)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

// Origins splits the configured CORS origin list. "*" allows every origin.
func (c Config) Origins() []string {
	parts := strings.Split(c.CORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

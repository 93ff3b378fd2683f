package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const configDir = "configs"

// Config is the root configuration for the uplink service.
type Config struct {
	Service     ServiceConfig     `mapstructure:"service"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Gateway     GatewayConfig     `mapstructure:"gateway"`
	Stripe      StripeConfig      `mapstructure:"stripe"`
	MercadoPago MercadoPagoConfig `mapstructure:"mercadopago"`
	SMTP        SMTPConfig        `mapstructure:"smtp"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	Lifecycle   LifecycleConfig   `mapstructure:"lifecycle"`
	Log         LogConfig         `mapstructure:"log"`
}

// Load reads configs/{APP_ENV}/uplink.yaml (or CONFIG_PATH) and applies
// UPLINK_-prefixed environment variable overrides.
func Load() (*Config, error) {
	v := viper.New()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	v.SetConfigType("yaml")
	v.SetEnvPrefix("UPLINK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = filepath.Join(configDir, env)
	}

	v.SetConfigName("uplink")
	v.AddConfigPath(configPath)

	if err := v.ReadInConfig(); err != nil {
		// Fall back to the example config so a fresh checkout still boots.
		v.AddConfigPath(filepath.Join(configDir, "example"))
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

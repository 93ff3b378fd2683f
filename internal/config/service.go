package config

import "time"

type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Version     string `mapstructure:"version"`
	// ClientURL is the dashboard origin, used for CORS and checkout redirects.
	ClientURL string `mapstructure:"client_url"`
	// PublicURL is this API's public origin; the gateway posts instance
	// events to {PublicURL}/webhook/gateway/{instance}.
	PublicURL string `mapstructure:"public_url"`
}

type GatewayConfig struct {
	// BaseURL of the WhatsApp gateway REST API.
	BaseURL string `mapstructure:"base_url"`
	// APIKey is the global key used to provision new instances.
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type MercadoPagoConfig struct {
	AccessToken   string `mapstructure:"access_token"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	Output      string `mapstructure:"output"`
	Development bool   `mapstructure:"development"`
}

// LifecycleConfig tunes the session lifecycle controller. Tests shrink these
// to milliseconds; production values match the dashboard behavior.
type LifecycleConfig struct {
	// StatusPollInterval is the background connection-state poll period.
	StatusPollInterval time.Duration `mapstructure:"status_poll_interval"`
	// QRPollInterval is the poll period while a QR code is displayed.
	QRPollInterval time.Duration `mapstructure:"qr_poll_interval"`
	// QRTTL is how long a QR code stays valid before it must be regenerated.
	QRTTL time.Duration `mapstructure:"qr_ttl"`
	// ConnectRetryDelay is the wait before the single retry when the gateway
	// returns no QR on the first connect attempt.
	ConnectRetryDelay time.Duration `mapstructure:"connect_retry_delay"`
	// ForwardTimeout bounds outbound client webhook deliveries.
	ForwardTimeout time.Duration `mapstructure:"forward_timeout"`
}

// Defaults fills zero-valued lifecycle settings with the documented values.
func (c *LifecycleConfig) Defaults() {
	if c.StatusPollInterval == 0 {
		c.StatusPollInterval = 10 * time.Second
	}
	if c.QRPollInterval == 0 {
		c.QRPollInterval = 5 * time.Second
	}
	if c.QRTTL == 0 {
		c.QRTTL = 120 * time.Second
	}
	if c.ConnectRetryDelay == 0 {
		c.ConnectRetryDelay = 3 * time.Second
	}
	if c.ForwardTimeout == 0 {
		c.ForwardTimeout = 10 * time.Second
	}
}

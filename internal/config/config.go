// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/rovshanmuradov/topup-shop-bot/pkg/tonutils"
)

type Config struct {
	TelegramToken string  `env:"BOT_TOKEN,required"`
	AdminIDs      []int64 `env:"ADMIN_IDS" envSeparator:","`
	AdminLanguage string  `env:"ADMIN_LANGUAGE" envDefault:"ru"`
	// ChannelID is either a numeric chat id or an @channel handle.
	ChannelID string `env:"CHANNEL_ID"`

	DatabaseURL string `env:"DATABASE_URL" envDefault:"shop.db"`

	PriceAPIURL string `env:"PRICE_API_URL" envDefault:"https://api.coingecko.com/api/v3"`
	Currency    string `env:"CURRENCY" envDefault:"EUR"`

	FiatPaymentLink string `env:"FIAT_PAYMENT_LINK"`
	Addresses       Addresses

	SupportUsername      string `env:"SUPPORT_USERNAME"`
	CuratorUsername      string `env:"CURATOR_USERNAME"`
	AdminContactUsername string `env:"ADMIN_CONTACT_USERNAME"`

	PendingStore  string        `env:"PENDING_STORE" envDefault:"memory"`
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	PendingTTL    time.Duration `env:"PENDING_TTL" envDefault:"168h"`

	OpsAddr         string        `env:"OPS_ADDR"`
	StrayInputDelay time.Duration `env:"STRAY_INPUT_DELAY" envDefault:"300ms"`

	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	LogDevelopment bool   `env:"LOG_DEVELOPMENT" envDefault:"false"`
}

// Addresses are the deposit addresses shown to users. Fallback is used for any
// asset or network without its own address.
type Addresses struct {
	Fallback  string `env:"CRYPTO_WALLET_ADDRESS"`
	BTC       string `env:"BTC_ADDRESS"`
	ETH       string `env:"ETH_ADDRESS"`
	SOL       string `env:"SOL_ADDRESS"`
	BNB       string `env:"BNB_ADDRESS"`
	TON       string `env:"TON_ADDRESS"`
	USDTTRC20 string `env:"USDT_TRC20"`
	USDTERC20 string `env:"USDT_ERC20"`
	USDTBEP20 string `env:"USDT_BSC"`
	USDTSOL   string `env:"USDT_SOL"`
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() (*Config, error) {
	// A missing .env is normal in production where variables are set directly.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.PendingStore {
	case "memory", "redis":
	default:
		return fmt.Errorf("PENDING_STORE must be memory or redis, got %q", c.PendingStore)
	}

	if c.TON() != "" {
		if err := tonutils.ValidateAddress(c.TON()); err != nil {
			return fmt.Errorf("TON_ADDRESS: %w", err)
		}
	}

	if c.StrayInputDelay < 0 {
		return errors.New("STRAY_INPUT_DELAY must not be negative")
	}

	return nil
}

// TON returns the configured TON deposit address, if any.
func (c *Config) TON() string {
	return strings.TrimSpace(c.Addresses.TON)
}

// ContactHandle picks the handle shown to users whose payment was rejected.
func (c *Config) ContactHandle() string {
	for _, h := range []string{c.CuratorUsername, c.SupportUsername, c.AdminContactUsername} {
		if h = strings.TrimSpace(h); h != "" {
			return h
		}
	}
	return ""
}

func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

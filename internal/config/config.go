package config

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type AppConfig struct {
	API      *APIConfig      `mapstructure:"api"`
	Gin      *GinConfig      `mapstructure:"gin"`
	Database *DatabaseConfig `mapstructure:"database"`
	Payout   *PayoutConfig   `mapstructure:"payout"`
	Gate     *GateConfig     `mapstructure:"gate"`
	Stripe   *StripeConfig   `mapstructure:"stripe"`
}

type APIConfig struct {
	Environment        string `mapstructure:"environment"`
	Port               string `mapstructure:"port"`
	BaseURL            string `mapstructure:"base_url"`
	AllowedCORSDomains string `mapstructure:"allowed_cors_domains"`
	JWTSigningKey      string `mapstructure:"jwt_signing_key"`
}

type GinConfig struct {
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "postgres"
	DSN    string `mapstructure:"dsn"`
}

// PayeeConfig identifies one of the two configured payout recipients.
type PayeeConfig struct {
	SubjectKey  string `mapstructure:"subject_key"`
	Identifier  string `mapstructure:"identifier"`
	Destination string `mapstructure:"destination"`
}

type PayoutConfig struct {
	// Floor is the chunk size for dispatch triggered right after a donation.
	Floor int64 `mapstructure:"floor"`
	// DrainMinimum is the smallest available balance the periodic worker pays out.
	DrainMinimum  int64         `mapstructure:"drain_minimum"`
	DrainInterval time.Duration `mapstructure:"drain_interval"`
	Comment       string        `mapstructure:"comment"`
	Payees        []PayeeConfig `mapstructure:"payees"`
}

type GateConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type StripeConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Currency string `mapstructure:"currency"`
}

func Load(path string) (*AppConfig, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("viper.ReadInConfig -> %w", err)
	}

	var conf AppConfig
	if err := viper.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("viper.Unmarshal -> %w", err)
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}

	viper.OnConfigChange(func(e fsnotify.Event) {
		zap.L().Info("config file changed, restart to apply", zap.String("file", e.Name))
	})
	viper.WatchConfig()

	return &conf, nil
}

func (c *AppConfig) validate() error {
	if c.API == nil || c.Database == nil || c.Payout == nil {
		return fmt.Errorf("config is missing required sections")
	}
	if c.Payout.Floor <= 0 {
		return fmt.Errorf("payout.floor must be positive")
	}
	if c.Payout.DrainMinimum <= 0 {
		return fmt.Errorf("payout.drain_minimum must be positive")
	}
	if len(c.Payout.Payees) != 2 {
		return fmt.Errorf("payout.payees must configure exactly two recipients")
	}
	return nil
}

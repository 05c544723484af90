package encoder

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	APIURL         string        `mapstructure:"APIURL"`
	APIKey         string        `mapstructure:"APIKey"`
	WebhookSecret  string        `mapstructure:"WebhookSecret"`
	RequestTimeout time.Duration `mapstructure:"RequestTimeout"`
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.BindEnv("APIURL", "ENCODER_API_URL")
	v.BindEnv("APIKey", "ENCODER_API_KEY")
	v.BindEnv("WebhookSecret", "ENCODER_WEBHOOK_SECRET")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Warning: using only environment variables: %v\n", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal config: %w", err)
	}

	// Проверяем, что все необходимые поля заполнены
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("APIURL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("APIKey is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("WebhookSecret is required")
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	return &cfg, nil
}

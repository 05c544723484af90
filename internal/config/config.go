package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"Server"`
	Database  DatabaseConfig  `mapstructure:"Database"`
	Migration MigrationConfig `mapstructure:"Migration"`
	Token     TokenConfig     `mapstructure:"Token"`
	Audit     AuditConfig     `mapstructure:"Audit"`
}

type ServerConfig struct {
	Port    string `mapstructure:"Port"`
	BaseURL string `mapstructure:"BaseURL"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"Host"`
	Port     string `mapstructure:"Port"`
	User     string `mapstructure:"User"`
	Password string `mapstructure:"Password"`
	Name     string `mapstructure:"Name"`
	SSLMode  string `mapstructure:"SSLMode"`
}

// MigrationConfig задаёт параметры движка миграции видео
type MigrationConfig struct {
	BatchSize      int           `mapstructure:"BatchSize"`
	RateLimitDelay time.Duration `mapstructure:"RateLimitDelay"`
	SignedURLTTL   time.Duration `mapstructure:"SignedURLTTL"`
	Interval       time.Duration `mapstructure:"Interval"`
	DryRun         bool          `mapstructure:"DryRun"`
}

// TokenConfig задаёт параметры выдачи токенов воспроизведения
type TokenConfig struct {
	PrivateKeyFile string        `mapstructure:"PrivateKeyFile"`
	KeyID          string        `mapstructure:"KeyID"`
	DefaultTTL     time.Duration `mapstructure:"DefaultTTL"`
	MaxTTL         time.Duration `mapstructure:"MaxTTL"`
}

// AuditConfig задаёт параметры сверки хранилища с базой
type AuditConfig struct {
	Interval time.Duration `mapstructure:"Interval"`
	PageSize int           `mapstructure:"PageSize"`
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)

	// Привязываем переменные окружения
	v.BindEnv("Database.Host", "DATABASE_HOST")
	v.BindEnv("Database.Port", "DATABASE_PORT")
	v.BindEnv("Database.User", "DATABASE_USER")
	v.BindEnv("Database.Password", "DATABASE_PASSWORD")
	v.BindEnv("Database.Name", "DATABASE_NAME")
	v.BindEnv("Database.SSLMode", "DATABASE_SSLMODE")
	v.BindEnv("Server.Port", "HTTP_PORT")
	v.BindEnv("Migration.DryRun", "MIGRATION_DRY_RUN")
	v.BindEnv("Token.PrivateKeyFile", "TOKEN_PRIVATE_KEY_FILE")
	v.BindEnv("Token.KeyID", "TOKEN_KEY_ID")

	// Читаем конфигурацию из файла
	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Warning: using only environment variables: %v\n", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Проверяем переменные окружения напрямую если конфигурация неполная
	if cfg.Database.Host == "" {
		cfg.Database.Host = v.GetString("DATABASE_HOST")
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = v.GetString("DATABASE_PORT")
	}
	if cfg.Database.User == "" {
		cfg.Database.User = v.GetString("DATABASE_USER")
	}
	if cfg.Database.Password == "" {
		cfg.Database.Password = v.GetString("DATABASE_PASSWORD")
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = v.GetString("DATABASE_NAME")
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = v.GetString("DATABASE_SSLMODE")
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = v.GetString("HTTP_PORT")
	}

	// Проверяем, что все необходимые поля заполнены
	if cfg.Database.Host == "" ||
		cfg.Database.Port == "" ||
		cfg.Database.User == "" ||
		cfg.Database.Password == "" ||
		cfg.Database.Name == "" {
		return nil, fmt.Errorf("database configuration is incomplete: host=%s, port=%s, user=%s, name=%s",
			cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Name)
	}

	// Ключ подписи токенов обязателен: без него сервис бесполезен
	if cfg.Token.PrivateKeyFile == "" {
		return nil, fmt.Errorf("token configuration is incomplete: PrivateKeyFile is required")
	}
	if cfg.Token.KeyID == "" {
		return nil, fmt.Errorf("token configuration is incomplete: KeyID is required")
	}

	// Установка значений по умолчанию
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "2525"
	}
	if cfg.Migration.BatchSize <= 0 {
		cfg.Migration.BatchSize = 25
	}
	if cfg.Migration.RateLimitDelay <= 0 {
		cfg.Migration.RateLimitDelay = 2 * time.Second
	}
	if cfg.Migration.SignedURLTTL <= 0 {
		cfg.Migration.SignedURLTTL = 1 * time.Hour
	}
	if cfg.Migration.Interval <= 0 {
		cfg.Migration.Interval = 5 * time.Minute
	}
	if cfg.Token.DefaultTTL <= 0 {
		cfg.Token.DefaultTTL = 1 * time.Hour
	}
	if cfg.Token.MaxTTL <= 0 {
		cfg.Token.MaxTTL = 24 * time.Hour
	}
	if cfg.Audit.Interval <= 0 {
		cfg.Audit.Interval = 6 * time.Hour
	}
	if cfg.Audit.PageSize <= 0 {
		cfg.Audit.PageSize = 500
	}

	return &cfg, nil
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

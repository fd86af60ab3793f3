package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Station  StationConfig  `mapstructure:"station"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Workers  WorkersConfig  `mapstructure:"workers"`
	Notifier NotifierConfig `mapstructure:"notifier"`
	Ingestor IngestorConfig `mapstructure:"ingestor"`
	JWT      JWTConfig      `mapstructure:"jwt"`
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeoutSeconds"`
	RateLimitRPS   int `mapstructure:"rate_limit_rps"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	URL          string `mapstructure:"url"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type StationConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds"`
}

type ChainConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	RegistryAddress string `mapstructure:"registry_address"`
	SignerKey       string `mapstructure:"signer_key"`
	TimeoutSeconds  int    `mapstructure:"timeoutSeconds"`
}

type WorkersConfig struct {
	TriggerConcurrency      int `mapstructure:"trigger_concurrency"`
	NotificationConcurrency int `mapstructure:"notification_concurrency"`
	BatchSize               int `mapstructure:"batch_size"`
	PollIntervalSeconds     int `mapstructure:"poll_interval_seconds"`
	// PurgeAfterHours controls how long settled jobs stay queryable
	// before the janitor removes them.
	PurgeAfterHours int `mapstructure:"purge_after_hours"`
}

type NotifierConfig struct {
	SMTP struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		From     string `mapstructure:"from"`
	} `mapstructure:"smtp"`
	SMS struct {
		GatewayURL string `mapstructure:"gateway_url"`
		APIKey     string `mapstructure:"api_key"`
		SenderID   string `mapstructure:"sender_id"`
	} `mapstructure:"sms"`
	Push struct {
		GatewayURL string `mapstructure:"gateway_url"`
		APIKey     string `mapstructure:"api_key"`
	} `mapstructure:"push"`
	Webhook struct {
		TimeoutSeconds int `mapstructure:"timeoutSeconds"`
	} `mapstructure:"webhook"`
}

type IngestorConfig struct {
	IntervalSeconds int      `mapstructure:"interval_seconds"`
	Stations        []string `mapstructure:"stations"`
	AlertUserID     string   `mapstructure:"alert_user_id"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpiryHours int    `mapstructure:"expiry_hours"`
}

// secrets carries the values that must never live in the config file.
// Environment always wins over whatever the file says.
type secrets struct {
	DatabasePassword string `envconfig:"DATABASE_PASSWORD"`
	RedisURL         string `envconfig:"REDIS_URL"`
	ChainSignerKey   string `envconfig:"CHAIN_SIGNER_KEY"`
	SMTPPassword     string `envconfig:"SMTP_PASSWORD"`
	SMSAPIKey        string `envconfig:"SMS_API_KEY"`
	PushAPIKey       string `envconfig:"PUSH_API_KEY"`
	JWTSecret        string `envconfig:"JWT_SECRET"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var sec secrets
	if err := envconfig.Process("riverguard", &sec); err != nil {
		return nil, fmt.Errorf("failed to read environment secrets: %w", err)
	}
	config.applySecrets(&sec)

	return &config, nil
}

func (c *Config) applySecrets(sec *secrets) {
	if sec.DatabasePassword != "" {
		c.Database.Password = sec.DatabasePassword
	}
	if sec.RedisURL != "" {
		c.Redis.URL = sec.RedisURL
	}
	if sec.ChainSignerKey != "" {
		c.Chain.SignerKey = sec.ChainSignerKey
	}
	if sec.SMTPPassword != "" {
		c.Notifier.SMTP.Password = sec.SMTPPassword
	}
	if sec.SMSAPIKey != "" {
		c.Notifier.SMS.APIKey = sec.SMSAPIKey
	}
	if sec.PushAPIKey != "" {
		c.Notifier.Push.APIKey = sec.PushAPIKey
	}
	if sec.JWTSecret != "" {
		c.JWT.Secret = sec.JWTSecret
	}
}

func (c ServerConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c StationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c ChainConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c WorkersConfig) PollInterval() time.Duration {
	if c.PollIntervalSeconds <= 0 {
		return time.Second
	}
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c IngestorConfig) Interval() time.Duration {
	if c.IntervalSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.IntervalSeconds) * time.Second
}

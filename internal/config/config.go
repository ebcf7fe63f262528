package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Outbox   OutboxConfig   `mapstructure:"outbox"`
	Consumer ConsumerConfig `mapstructure:"consumer"`
	Alarm    AlarmConfig    `mapstructure:"alarm"`
}

type ServerConfig struct {
	Port      int  `mapstructure:"port"`
	RateLimit int  `mapstructure:"rate_limit"`
	RateBurst int  `mapstructure:"rate_burst"`
	Debug     bool `mapstructure:"debug"`
}

type DatabaseConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	Name             string        `mapstructure:"name"`
	SSLMode          string        `mapstructure:"sslmode"`
	MaxOpenConns     int           `mapstructure:"max_open_conns"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type OutboxConfig struct {
	MaxAttempts          int           `mapstructure:"max_attempts"`
	InitialDelay         time.Duration `mapstructure:"initial_delay"`
	MaxDelay             time.Duration `mapstructure:"max_delay"`
	HandlerTimeout       time.Duration `mapstructure:"handler_timeout"`
	ReconcilePollEvery   time.Duration `mapstructure:"reconcile_poll_every"`
	ReconcileGracePeriod time.Duration `mapstructure:"reconcile_grace_period"`
	ReconcileBatchSize   int           `mapstructure:"reconcile_batch_size"`
}

type ConsumerConfig struct {
	Group        string        `mapstructure:"group"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	ClaimMinIdle time.Duration `mapstructure:"claim_min_idle"`
}

type AlarmConfig struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	SMTPUser string `mapstructure:"smtp_user"`
	SMTPPass string `mapstructure:"smtp_pass"`
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.rate_limit", 100)
	viper.SetDefault("server.rate_burst", 200)
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.statement_timeout", "5s")
	viper.SetDefault("outbox.max_attempts", 8)
	viper.SetDefault("outbox.initial_delay", "2s")
	viper.SetDefault("outbox.max_delay", "5m")
	viper.SetDefault("outbox.handler_timeout", "30s")
	viper.SetDefault("outbox.reconcile_poll_every", "30s")
	viper.SetDefault("outbox.reconcile_grace_period", "1m")
	viper.SetDefault("outbox.reconcile_batch_size", 100)
	viper.SetDefault("consumer.group", "artisan-hub")
	viper.SetDefault("consumer.max_attempts", 5)
	viper.SetDefault("consumer.claim_min_idle", "30s")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

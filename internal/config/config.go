package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Database  DatabaseConfig   `mapstructure:"database"`
	Redis     RedisConfig      `mapstructure:"redis"`
	Vault     VaultConfig      `mapstructure:"vault"`
	Limits    LimitsConfig     `mapstructure:"limits"`
	Silo      SiloConfig       `mapstructure:"silo"`
	Emergency EmergencyConfig  `mapstructure:"emergency"`
	Journal   JournalConfig    `mapstructure:"journal"`
	Operators []OperatorConfig `mapstructure:"operators"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	// Requests per second allowed per operator key before 429s.
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

type DatabaseConfig struct {
	DSN                   string `mapstructure:"dsn"`
	JournalRetentionDays  int    `mapstructure:"journal_retention_days"`
	CleanupIntervalMins   int    `mapstructure:"cleanup_interval_minutes"`
	IdempotencyRetentionH int    `mapstructure:"idempotency_retention_hours"`
}

type RedisConfig struct {
	Addr                  string `mapstructure:"addr"`
	Password              string `mapstructure:"password"`
	DB                    int    `mapstructure:"db"`
	JournalListKey        string `mapstructure:"journal_list_key"`
	JournalListMax        int    `mapstructure:"journal_list_max"`
	IdempotencyTTLSeconds int    `mapstructure:"idempotency_ttl_seconds"`
}

type VaultConfig struct {
	VestingHours       int     `mapstructure:"vesting_hours"`
	MaxRateIncreaseBps int64   `mapstructure:"max_rate_increase_bps"`
	MaxPriceImpactBps  int64   `mapstructure:"max_price_impact_bps"`
	MinDeposit         string  `mapstructure:"min_deposit"`
	MinUnstake         string  `mapstructure:"min_unstake"`
	CooldownHours      int     `mapstructure:"cooldown_hours"`
	MaxCustodians      int     `mapstructure:"max_custodians"`
	MinFloatPercent    float64 `mapstructure:"min_float_percent"`
}

type LimitsConfig struct {
	MaxGlobalDeposit   string `mapstructure:"max_global_deposit"`
	MaxUserDeposit     string `mapstructure:"max_user_deposit"`
	MaxTxBps           int64  `mapstructure:"max_tx_bps"`
	DailyDepositLimit  string `mapstructure:"daily_deposit_limit"`
	DailyWithdrawLimit string `mapstructure:"daily_withdraw_limit"`
	DailyEarlyLimit    string `mapstructure:"daily_early_limit"`
}

type SiloConfig struct {
	LiquidityThresholdBps int64 `mapstructure:"liquidity_threshold_bps"`
	EarlyWithdrawEnabled  bool  `mapstructure:"early_withdraw_enabled"`
	UnlockFeeBps          int64 `mapstructure:"unlock_fee_bps"`
}

type EmergencyConfig struct {
	RecoveryDelayHours int `mapstructure:"recovery_delay_hours"`
}

type JournalConfig struct {
	Dir        string `mapstructure:"dir"`
	BufferSize int    `mapstructure:"buffer_size"`
	RingSize   int    `mapstructure:"ring_size"`
}

// OperatorConfig maps an API key to a named principal with role grants.
type OperatorConfig struct {
	ID     string   `mapstructure:"id"`
	Name   string   `mapstructure:"name"`
	APIKey string   `mapstructure:"api_key"`
	Roles  []string `mapstructure:"roles"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support
	// e.g. VAULTGATE_DATABASE_DSN
	viper.SetEnvPrefix("vaultgate")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.rate_limit_rps", 20.0)
	viper.SetDefault("server.rate_limit_burst", 40)

	viper.SetDefault("vault.vesting_hours", 8)
	viper.SetDefault("vault.max_rate_increase_bps", 1000)
	viper.SetDefault("vault.max_price_impact_bps", 2000)
	viper.SetDefault("vault.min_deposit", "0")
	viper.SetDefault("vault.min_unstake", "0")
	viper.SetDefault("vault.cooldown_hours", 24)
	viper.SetDefault("vault.max_custodians", 10)
	viper.SetDefault("vault.min_float_percent", 10.0)

	viper.SetDefault("limits.max_tx_bps", 0)
	viper.SetDefault("limits.max_global_deposit", "0")
	viper.SetDefault("limits.max_user_deposit", "0")
	viper.SetDefault("limits.daily_deposit_limit", "0")
	viper.SetDefault("limits.daily_withdraw_limit", "0")
	viper.SetDefault("limits.daily_early_limit", "0")

	viper.SetDefault("silo.liquidity_threshold_bps", 9500)
	viper.SetDefault("silo.early_withdraw_enabled", false)
	viper.SetDefault("silo.unlock_fee_bps", 50)

	viper.SetDefault("emergency.recovery_delay_hours", 24)

	viper.SetDefault("journal.dir", "./journal")
	viper.SetDefault("journal.buffer_size", 1024)
	viper.SetDefault("journal.ring_size", 1000)

	viper.SetDefault("database.journal_retention_days", 30)
	viper.SetDefault("database.cleanup_interval_minutes", 60)
	viper.SetDefault("database.idempotency_retention_hours", 168)
	viper.SetDefault("redis.journal_list_key", "vault_journal")
	viper.SetDefault("redis.journal_list_max", 10000)
	viper.SetDefault("redis.idempotency_ttl_seconds", 86400)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *VaultConfig) Vesting() time.Duration {
	return time.Duration(c.VestingHours) * time.Hour
}

func (c *VaultConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownHours) * time.Hour
}

func (c *EmergencyConfig) RecoveryDelay() time.Duration {
	return time.Duration(c.RecoveryDelayHours) * time.Hour
}

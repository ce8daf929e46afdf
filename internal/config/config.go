package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig
	ClickHouse ClickHouseConfig
	Providers  ProvidersConfig
	Analysis   AnalysisConfig
	Quota      QuotaConfig
}

type AppConfig struct {
	Env  string
	Port int
	Host string
}

type ClickHouseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

type ProvidersConfig struct {
	AbuseIPDBKey  string
	VirusTotalKey string
	AlienVaultKey string
	ThreatFoxKey  string
	// USOM and Shodan InternetDB need no API key (public data)
}

type AnalysisConfig struct {
	CacheTTL         time.Duration
	ShodanCacheTTL   time.Duration
	PerSourceTimeout time.Duration
	GlobalTimeout    time.Duration
}

type QuotaConfig struct {
	PerIPDaily    int
	GlobalDaily   int
	GlobalMonthly int
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/app")
	viper.AddConfigPath("/etc/threatintel")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables
	bindEnvVars()

	// Set defaults
	setDefaults()

	// Try to read config file (optional)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("Error reading config file", "error", err)
		}
	}

	config := &Config{
		App: AppConfig{
			Env:  viper.GetString("APP_ENV"),
			Port: viper.GetInt("APP_PORT"),
			Host: viper.GetString("APP_HOST"),
		},
		ClickHouse: ClickHouseConfig{
			Enabled:  viper.GetBool("CLICKHOUSE_ENABLED"),
			Host:     viper.GetString("CLICKHOUSE_HOST"),
			Port:     viper.GetInt("CLICKHOUSE_PORT"),
			User:     viper.GetString("CLICKHOUSE_USER"),
			Password: viper.GetString("CLICKHOUSE_PASSWORD"),
			Database: viper.GetString("CLICKHOUSE_DATABASE"),
		},
		Providers: ProvidersConfig{
			AbuseIPDBKey:  viper.GetString("ABUSEIPDB_API_KEY"),
			VirusTotalKey: viper.GetString("VIRUSTOTAL_API_KEY"),
			AlienVaultKey: viper.GetString("ALIENVAULT_API_KEY"),
			ThreatFoxKey:  viper.GetString("THREATFOX_API_KEY"),
		},
		Analysis: AnalysisConfig{
			CacheTTL:         viper.GetDuration("ANALYSIS_CACHE_TTL"),
			ShodanCacheTTL:   viper.GetDuration("SHODAN_CACHE_TTL"),
			PerSourceTimeout: viper.GetDuration("ANALYSIS_SOURCE_TIMEOUT"),
			GlobalTimeout:    viper.GetDuration("ANALYSIS_GLOBAL_TIMEOUT"),
		},
		Quota: QuotaConfig{
			PerIPDaily:    viper.GetInt("QUOTA_PER_IP_DAILY"),
			GlobalDaily:   viper.GetInt("QUOTA_GLOBAL_DAILY"),
			GlobalMonthly: viper.GetInt("QUOTA_GLOBAL_MONTHLY"),
		},
	}

	return config, nil
}

func bindEnvVars() {
	// App
	viper.BindEnv("APP_ENV")
	viper.BindEnv("APP_PORT")
	viper.BindEnv("APP_HOST")

	// ClickHouse
	viper.BindEnv("CLICKHOUSE_ENABLED")
	viper.BindEnv("CLICKHOUSE_HOST")
	viper.BindEnv("CLICKHOUSE_PORT")
	viper.BindEnv("CLICKHOUSE_USER")
	viper.BindEnv("CLICKHOUSE_PASSWORD")
	viper.BindEnv("CLICKHOUSE_DATABASE")

	// Intelligence providers
	viper.BindEnv("ABUSEIPDB_API_KEY")
	viper.BindEnv("VIRUSTOTAL_API_KEY")
	viper.BindEnv("ALIENVAULT_API_KEY")
	viper.BindEnv("THREATFOX_API_KEY")

	// Analysis
	viper.BindEnv("ANALYSIS_CACHE_TTL")
	viper.BindEnv("SHODAN_CACHE_TTL")
	viper.BindEnv("ANALYSIS_SOURCE_TIMEOUT")
	viper.BindEnv("ANALYSIS_GLOBAL_TIMEOUT")

	// Quotas
	viper.BindEnv("QUOTA_PER_IP_DAILY")
	viper.BindEnv("QUOTA_GLOBAL_DAILY")
	viper.BindEnv("QUOTA_GLOBAL_MONTHLY")
}

func setDefaults() {
	// App defaults
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("APP_PORT", 8080)
	viper.SetDefault("APP_HOST", "0.0.0.0")

	// ClickHouse defaults
	viper.SetDefault("CLICKHOUSE_ENABLED", false)
	viper.SetDefault("CLICKHOUSE_HOST", "localhost")
	viper.SetDefault("CLICKHOUSE_PORT", 9000)
	viper.SetDefault("CLICKHOUSE_USER", "threatintel")
	viper.SetDefault("CLICKHOUSE_DATABASE", "threat_intel")

	// Analysis defaults
	viper.SetDefault("ANALYSIS_CACHE_TTL", 24*time.Hour)
	viper.SetDefault("SHODAN_CACHE_TTL", 7*24*time.Hour)
	viper.SetDefault("ANALYSIS_SOURCE_TIMEOUT", 10*time.Second)
	viper.SetDefault("ANALYSIS_GLOBAL_TIMEOUT", 25*time.Second)

	// Quota defaults
	viper.SetDefault("QUOTA_PER_IP_DAILY", 5)
	viper.SetDefault("QUOTA_GLOBAL_DAILY", 100)
	viper.SetDefault("QUOTA_GLOBAL_MONTHLY", 500)
}

func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func SetupLogger(cfg *Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if cfg.IsDevelopment() {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

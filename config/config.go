package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Mercury   MercuryConfig   `yaml:"mercury"`
	Locations LocationsConfig `yaml:"locations"`
	Downtime  DowntimeConfig  `yaml:"downtime"`
	Slack     SlackConfig     `yaml:"slack"`
	Shift     ShiftConfig     `yaml:"shift"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Monitor   MonitorConfig   `yaml:"monitor"`
}

type MercuryConfig struct {
	URL                   string   `yaml:"url"`
	ScrapeIntervalSeconds int      `yaml:"scrape_interval_seconds"`
	ValidStatuses         []string `yaml:"valid_statuses"`
	CookiePath            string   `yaml:"cookie_path"`
	MaxRetries            int      `yaml:"max_retries"`
	RetryDelaySeconds     int      `yaml:"retry_delay_seconds"`
}

type LocationsConfig struct {
	Valid []string `yaml:"valid"`
}

type CategoryConfig struct {
	Name string  `yaml:"name"`
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
}

type DowntimeConfig struct {
	Categories            []CategoryConfig `yaml:"categories"`
	BreakThresholdSeconds int              `yaml:"break_threshold_seconds"`
}

type SlackConfig struct {
	Webhook                  string `yaml:"webhook"`
	ReportIntervalSeconds    int    `yaml:"report_interval_seconds"`
	ShiftEndThresholdSeconds int    `yaml:"shift_end_threshold_seconds"`
	AlertThresholdSeconds    int    `yaml:"alert_threshold_seconds"`
	AlertCooldownSeconds     int    `yaml:"alert_cooldown_seconds"`
	AlertsPerCooldown        int    `yaml:"alerts_per_cooldown"`
}

// Времена смены в локальном формате "HH:MM". Start может быть позже End (ночная смена).
type ShiftConfig struct {
	Start      string `yaml:"start"`
	End        string `yaml:"end"`
	BreakStart string `yaml:"break_start"`
	BreakEnd   string `yaml:"break_end"`
}

type StorageConfig struct {
	Mode    string `yaml:"mode"` // "kafka" | "csv"
	CSVPath string `yaml:"csv_path"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	ScansAnalyzedTopicName string `yaml:"scans_analyzed_topic_name"`
	APIConsumerGroup       string `yaml:"api_consumer_group"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type MonitorConfig struct {
	HTTPAddr               string `yaml:"http_addr"`
	APIHTTPAddr            string `yaml:"api_http_addr"`
	MaxConsecutiveErrors   int    `yaml:"max_consecutive_errors"`
	SummaryCacheTTLSeconds int    `yaml:"summary_cache_ttl_seconds"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

// LoggingConfig adjusts the process log level when the LOG_LEVEL
// environment variable is not set.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// The latency histogram and queue metrics default to on; the
	// disable flags exist because plugin_id x hook cardinality can get
	// expensive on large plugin sets.
	DisableInvocationLatency bool `mapstructure:"disable_invocation_latency"`
	DisableQueueMetrics      bool `mapstructure:"disable_queue_metrics"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TLS      bool   `mapstructure:"tls"`
}

// EngineConfig tunes the script runtimes.
type EngineConfig struct {
	// MainCategory is the plugin category this pipeline serves; reload
	// requests for plugins outside it are rejected.
	MainCategory string `mapstructure:"main_category"`
	// InvocationTimeoutSeconds bounds one scan_request/scan_response call.
	InvocationTimeoutSeconds int `mapstructure:"invocation_timeout_seconds"`
	// FetchTimeoutSeconds is the default timeout for plugin fetch calls.
	FetchTimeoutSeconds int `mapstructure:"fetch_timeout_seconds"`
	// TranspileCacheSize bounds the LRU of transpiled module sources.
	TranspileCacheSize int `mapstructure:"transpile_cache_size"`
}

// PipelineConfig sizes the bounded queues between pipeline stages.
type PipelineConfig struct {
	TaskQueueSize         int    `mapstructure:"task_queue_size"`
	TaskOverflowPolicy    string `mapstructure:"task_overflow_policy"`
	FindingQueueSize      int    `mapstructure:"finding_queue_size"`
	FindingOverflowPolicy string `mapstructure:"finding_overflow_policy"`
	// StatsSchedule is a cron spec for the periodic stats report.
	StatsSchedule string `mapstructure:"stats_schedule"`
}

type TelemetryConfig struct {
	Exporters []ExporterConfig `mapstructure:"exporters"`
}

// ExporterConfig names a telemetry exporter and carries its raw settings;
// each exporter decodes the map itself.
type ExporterConfig struct {
	Name     string                 `mapstructure:"name"`
	Settings map[string]interface{} `mapstructure:"settings"`
}

var globalConfig Config

func Load(configPath string) error {
	if err := loadConfigFile(configPath, "config", &globalConfig); err != nil {
		return fmt.Errorf("⚠️ Warning: Could not load main config file: %v", err)
	}

	setDefaultValues()

	return nil
}

func loadConfigFile(configPath, fileName string, out interface{}) error {
	viper.SetConfigName(fileName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("config file %s.yaml not found, using only environment variables", fileName)
		}
		return fmt.Errorf("error reading config file %s.yaml: %w", fileName, err)
	}

	if err := viper.Unmarshal(out); err != nil {
		return fmt.Errorf("failed to unmarshal %s config: %w", fileName, err)
	}

	return nil
}

func setDefaultValues() {
	if globalConfig.Server.Port == 0 {
		globalConfig.Server.Port = 8080
	}
	if globalConfig.Server.MetricsPort == 0 {
		globalConfig.Server.MetricsPort = 9090
	}
	if globalConfig.Database.SSLMode == "" {
		globalConfig.Database.SSLMode = "disable"
	}
	if globalConfig.Engine.MainCategory == "" {
		globalConfig.Engine.MainCategory = "passive"
	}
	if globalConfig.Engine.InvocationTimeoutSeconds == 0 {
		globalConfig.Engine.InvocationTimeoutSeconds = 30
	}
	if globalConfig.Engine.FetchTimeoutSeconds == 0 {
		globalConfig.Engine.FetchTimeoutSeconds = 30
	}
	if globalConfig.Engine.TranspileCacheSize == 0 {
		globalConfig.Engine.TranspileCacheSize = 256
	}
	if globalConfig.Pipeline.TaskQueueSize == 0 {
		globalConfig.Pipeline.TaskQueueSize = 1024
	}
	if globalConfig.Pipeline.TaskOverflowPolicy == "" {
		globalConfig.Pipeline.TaskOverflowPolicy = "drop_oldest"
	}
	if globalConfig.Pipeline.FindingQueueSize == 0 {
		globalConfig.Pipeline.FindingQueueSize = 4096
	}
	if globalConfig.Pipeline.FindingOverflowPolicy == "" {
		globalConfig.Pipeline.FindingOverflowPolicy = "block"
	}
	if globalConfig.Pipeline.StatsSchedule == "" {
		globalConfig.Pipeline.StatsSchedule = "@every 1m"
	}
}

func GetConfig() *Config {
	return &globalConfig
}

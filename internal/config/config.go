package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Storage    StorageConfig    `yaml:"storage"`
	AI         AIConfig         `yaml:"ai"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Events     EventsConfig     `yaml:"events"`
	Log        LogConfig        `yaml:"log"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN 拼接 Postgres 连接串
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode,
	)
}

// StorageConfig 媒体文件持久化存储配置
type StorageConfig struct {
	UploadDir     string `yaml:"upload_dir"`      // 本地存储目录
	PublicBaseURL string `yaml:"public_base_url"` // 对外可访问的 URL 前缀
	MaxInlineSize int64  `yaml:"max_inline_size"` // 存储不可用时内联兜底的大小上限（字节）
}

type AIConfig struct {
	Provider    string        `yaml:"provider"` // openai, gemini
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	HistoryTurns int          `yaml:"history_turns"` // 上下文携带的历史轮数
}

// WebhookConfig 外部 Webhook 分发配置
type WebhookConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	Workers     int           `yaml:"workers"`
	QueueSize   int           `yaml:"queue_size"`
	VerifyToken string        `yaml:"verify_token"` // Meta 系渠道 GET 握手校验 token
}

// EventsConfig 可选的 AMQP 事件发布配置
type EventsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // json, text
	Output     string `yaml:"output"` // stdout, file, both
	FilePath   string `yaml:"file_path"`
	MaxSize    int    `yaml:"max_size"` // MB
	MaxAge     int    `yaml:"max_age"`  // days
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

type MonitoringConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Load 从 viper 读取配置并填充默认值
func Load() *Config {
	setDefaults()

	cfg := &Config{}
	cfg.Server.Host = viper.GetString("server.host")
	cfg.Server.Port = viper.GetInt("server.port")

	cfg.Database.Host = viper.GetString("database.host")
	cfg.Database.Port = viper.GetInt("database.port")
	cfg.Database.User = viper.GetString("database.user")
	cfg.Database.Password = viper.GetString("database.password")
	cfg.Database.Name = viper.GetString("database.name")
	cfg.Database.SSLMode = viper.GetString("database.ssl_mode")
	cfg.Database.MaxOpenConns = viper.GetInt("database.max_open_conns")
	cfg.Database.MaxIdleConns = viper.GetInt("database.max_idle_conns")
	cfg.Database.ConnMaxLifetime = viper.GetDuration("database.conn_max_lifetime")

	cfg.Storage.UploadDir = viper.GetString("storage.upload_dir")
	cfg.Storage.PublicBaseURL = viper.GetString("storage.public_base_url")
	cfg.Storage.MaxInlineSize = viper.GetInt64("storage.max_inline_size")

	cfg.AI.Provider = viper.GetString("ai.provider")
	cfg.AI.APIKey = viper.GetString("ai.api_key")
	cfg.AI.BaseURL = viper.GetString("ai.base_url")
	cfg.AI.Model = viper.GetString("ai.model")
	cfg.AI.Temperature = viper.GetFloat64("ai.temperature")
	cfg.AI.MaxTokens = viper.GetInt("ai.max_tokens")
	cfg.AI.Timeout = viper.GetDuration("ai.timeout")
	cfg.AI.HistoryTurns = viper.GetInt("ai.history_turns")

	cfg.Webhook.Timeout = viper.GetDuration("webhook.timeout")
	cfg.Webhook.Workers = viper.GetInt("webhook.workers")
	cfg.Webhook.QueueSize = viper.GetInt("webhook.queue_size")
	cfg.Webhook.VerifyToken = viper.GetString("webhook.verify_token")

	cfg.Events.Enabled = viper.GetBool("events.enabled")
	cfg.Events.URL = viper.GetString("events.url")
	cfg.Events.Exchange = viper.GetString("events.exchange")

	cfg.Log.Level = viper.GetString("log.level")
	cfg.Log.Format = viper.GetString("log.format")
	cfg.Log.Output = viper.GetString("log.output")
	cfg.Log.FilePath = viper.GetString("log.file_path")
	cfg.Log.MaxSize = viper.GetInt("log.max_size")
	cfg.Log.MaxAge = viper.GetInt("log.max_age")
	cfg.Log.MaxBackups = viper.GetInt("log.max_backups")
	cfg.Log.Compress = viper.GetBool("log.compress")

	cfg.Monitoring.Tracing.Enabled = viper.GetBool("monitoring.tracing.enabled")
	cfg.Monitoring.Tracing.Endpoint = viper.GetString("monitoring.tracing.endpoint")
	cfg.Monitoring.Tracing.Insecure = viper.GetBool("monitoring.tracing.insecure")
	cfg.Monitoring.Tracing.ServiceName = viper.GetString("monitoring.tracing.service_name")
	cfg.Monitoring.Tracing.SampleRatio = viper.GetFloat64("monitoring.tracing.sample_ratio")

	return cfg
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.name", "unichat")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", time.Hour)

	viper.SetDefault("storage.upload_dir", "./uploads")
	viper.SetDefault("storage.public_base_url", "http://localhost:8080")
	viper.SetDefault("storage.max_inline_size", int64(512*1024))

	viper.SetDefault("ai.provider", "openai")
	viper.SetDefault("ai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("ai.model", "gpt-4o-mini")
	viper.SetDefault("ai.temperature", 0.7)
	viper.SetDefault("ai.max_tokens", 500)
	viper.SetDefault("ai.timeout", 30*time.Second)
	viper.SetDefault("ai.history_turns", 8)

	viper.SetDefault("webhook.timeout", 10*time.Second)
	viper.SetDefault("webhook.workers", 4)
	viper.SetDefault("webhook.queue_size", 256)

	viper.SetDefault("events.enabled", false)
	viper.SetDefault("events.exchange", "unichat.events")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.file_path", "./logs/unichat.log")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_age", 30)
	viper.SetDefault("log.max_backups", 10)

	viper.SetDefault("monitoring.tracing.enabled", false)
	viper.SetDefault("monitoring.tracing.sample_ratio", 0.1)
}

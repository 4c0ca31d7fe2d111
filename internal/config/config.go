package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendJSON     = "json"
	BackendPostgres = "postgres"

	// 与原有数据目录保持一致，旧数据可直接加载
	defaultDataFolder = "Laser_App_Data"
	defaultDBFileName = "laser_database.json"
	defaultTemplate   = "template.docx"
)

// Config laser-repair（HTTP API）配置
type Config struct {
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Storage  StorageConfig  `yaml:"storage"`
	Report   ReportConfig   `yaml:"report"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Session  SessionConfig  `yaml:"session"`
	Admin    AdminConfig    `yaml:"admin"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Log      struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// StorageConfig 工单存储配置
type StorageConfig struct {
	Backend        string `yaml:"backend"`         // json | postgres
	DataDir        string `yaml:"data_dir"`        // JSON 文件所在目录
	DBFile         string `yaml:"db_file"`         // JSON 文件完整路径（为空时 = DataDir/laser_database.json）
	RecoverCorrupt bool   `yaml:"recover_corrupt"` // 文件损坏时备份并以空集合启动
}

// ReportConfig Word 报告模板配置
type ReportConfig struct {
	TemplateFile string `yaml:"template_file"`
}

// DatabaseConfig 数据库配置（STORE_BACKEND=postgres 时使用）
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
	MaxIdle  int    `yaml:"max_idle"`
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis 配置（管理员会话存储，可选）
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SessionConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// AdminConfig 管理员账号
// PasswordHash 为 bcrypt 哈希；为空时使用 Password 明文（仅兼容旧的 admin/admin）
type AdminConfig struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
}

// UsesLegacyDefault reports whether the built-in admin/admin pair is active.
func (a AdminConfig) UsesLegacyDefault() bool {
	return a.PasswordHash == "" && a.Username == "admin" && a.Password == "admin"
}

// MQTTConfig MQTT 配置（工单事件通知，默认禁用）
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// WebhookConfig HTTP 回调（工单事件通知，URL 为空时禁用）
type WebhookConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Load 加载配置：默认值 -> CONFIG_FILE (yaml) -> 环境变量
func Load() (*Config, error) {
	cfg := defaults(appDir())

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.loadEnv()

	if cfg.Storage.DBFile == "" {
		cfg.Storage.DBFile = filepath.Join(cfg.Storage.DataDir, defaultDBFileName)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查配置组合是否可用
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendJSON, BackendPostgres:
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q", c.Storage.Backend)
	}
	if c.Admin.Username == "" {
		return fmt.Errorf("ADMIN_USERNAME must not be empty")
	}
	if c.Admin.PasswordHash == "" && c.Admin.Password == "" {
		return fmt.Errorf("either ADMIN_PASSWORD_HASH or ADMIN_PASSWORD is required")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.MQTT.Enabled && c.MQTT.Topic == "" {
		return fmt.Errorf("MQTT_TOPIC is required when MQTT is enabled")
	}
	return nil
}

func defaults(baseDir string) *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = ":8501"

	cfg.Storage.Backend = BackendJSON
	cfg.Storage.DataDir = filepath.Join(baseDir, defaultDataFolder)
	cfg.Report.TemplateFile = filepath.Join(baseDir, defaultTemplate)

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "laser_repair"
	cfg.Database.SSLMode = "disable"

	cfg.Redis.Addr = "localhost:6379"
	cfg.Session.TTL = 8 * time.Hour

	cfg.Admin.Username = "admin"
	cfg.Admin.Password = "admin"

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "laser-repair"
	cfg.MQTT.Topic = "laser-repair/records"
	cfg.MQTT.QoS = 1

	cfg.Webhook.Timeout = 10 * time.Second

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return cfg
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() {
	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)

	c.Storage.Backend = strings.ToLower(getEnv("STORE_BACKEND", c.Storage.Backend))
	c.Storage.DataDir = getEnv("DATA_DIR", c.Storage.DataDir)
	c.Storage.DBFile = getEnv("DB_FILE", c.Storage.DBFile)
	c.Storage.RecoverCorrupt = parseBool(getEnv("STORE_RECOVER_CORRUPT", ""), c.Storage.RecoverCorrupt)
	c.Report.TemplateFile = getEnv("TEMPLATE_FILE", c.Report.TemplateFile)

	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = parseInt(getEnv("DB_PORT", ""), c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Database = getEnv("DB_NAME", c.Database.Database)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)

	c.Redis.Enabled = parseBool(getEnv("REDIS_ENABLED", ""), c.Redis.Enabled)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = parseInt(getEnv("REDIS_DB", ""), c.Redis.DB)
	c.Session.TTL = parseDuration(getEnv("SESSION_TTL", ""), c.Session.TTL)

	c.Admin.Username = getEnv("ADMIN_USERNAME", c.Admin.Username)
	c.Admin.Password = getEnv("ADMIN_PASSWORD", c.Admin.Password)
	c.Admin.PasswordHash = getEnv("ADMIN_PASSWORD_HASH", c.Admin.PasswordHash)

	c.MQTT.Enabled = parseBool(getEnv("MQTT_ENABLED", ""), c.MQTT.Enabled)
	c.MQTT.Broker = getEnv("MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", c.MQTT.ClientID)
	c.MQTT.Username = getEnv("MQTT_USERNAME", c.MQTT.Username)
	c.MQTT.Password = getEnv("MQTT_PASSWORD", c.MQTT.Password)
	c.MQTT.Topic = getEnv("MQTT_TOPIC", c.MQTT.Topic)

	c.Webhook.URL = getEnv("WEBHOOK_URL", c.Webhook.URL)
	c.Webhook.Timeout = parseDuration(getEnv("WEBHOOK_TIMEOUT", ""), c.Webhook.Timeout)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// appDir 可执行文件所在目录；取不到时退回当前工作目录
func appDir() string {
	if exe, err := os.Executable(); err == nil {
		return filepath.Dir(exe)
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseBool(s string, def bool) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

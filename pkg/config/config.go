package config

import (
	"os"
	"strconv"
	"time"
)

// DBConfig 数据库配置
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	MaxConns int32  `yaml:"max_conns"`
	MinConns int32  `yaml:"min_conns"`
	// SlowQueryMs 慢查询阈值（毫秒），0 表示默认 100ms
	SlowQueryMs int `yaml:"slow_query_ms"`
}

// MQConfig 消息队列配置
type MQConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret string `yaml:"secret"`
	TTL    string `yaml:"ttl"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port string `yaml:"port"`
}

// RecurringTask is a task scheduled by a cron expression.
type RecurringTask struct {
	Task   string         `yaml:"task"`
	Cron   string         `yaml:"cron"`
	Params map[string]any `yaml:"params"`
}

// SchedulerConfig controls the task scheduler loop.
type SchedulerConfig struct {
	Interval  string          `yaml:"interval"`
	BatchSize int             `yaml:"batch_size"`
	LeaseTTL  string          `yaml:"lease_ttl"`
	// StatusMaxAge is how stale the last loop iteration may be before the
	// admin API reports the scheduler as not running.
	StatusMaxAge string `yaml:"status_max_age"`
	// HealthPort serves /healthz and /metrics for the scheduler process.
	HealthPort string          `yaml:"health_port"`
	Recurring  []RecurringTask `yaml:"recurring"`
}

// WorkerConfig controls the MQ consumers in cmd/worker.
type WorkerConfig struct {
	MaxRetries int64  `yaml:"max_retries"`
	DedupTTL   string `yaml:"dedup_ttl"`
	HealthPort string `yaml:"health_port"`
}

// EmailConfig configures the SES email transport.
type EmailConfig struct {
	Region string `yaml:"region"`
	From   string `yaml:"from"`
}

// TwilioConfig configures the SMS and WhatsApp transports.
type TwilioConfig struct {
	AccountSID   string `yaml:"account_sid"`
	AuthToken    string `yaml:"auth_token"`
	From         string `yaml:"from"`
	WhatsappFrom string `yaml:"whatsapp_from"`
}

// OtelConfig OpenTelemetry 配置
type OtelConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Duration parses a duration string, falling back to def when empty or invalid.
func Duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// OverrideDBFromEnv 从环境变量覆盖数据库配置
func OverrideDBFromEnv(cfg *DBConfig) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}
}

// OverrideMQFromEnv 从环境变量覆盖MQ配置
func OverrideMQFromEnv(cfg *MQConfig) {
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.URL = url
	}
}

// OverrideRedisFromEnv 从环境变量覆盖Redis配置
func OverrideRedisFromEnv(cfg *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
}

// OverrideJWTFromEnv 从环境变量覆盖JWT配置
func OverrideJWTFromEnv(cfg *JWTConfig) {
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Secret = secret
	}
}

// OverrideServerFromEnv 从环境变量覆盖服务器配置
func OverrideServerFromEnv(cfg *ServerConfig) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
}

// OverrideTwilioFromEnv keeps Twilio credentials out of the yaml files.
func OverrideTwilioFromEnv(cfg *TwilioConfig) {
	if sid := os.Getenv("TWILIO_ACCOUNT_SID"); sid != "" {
		cfg.AccountSID = sid
	}
	if token := os.Getenv("TWILIO_AUTH_TOKEN"); token != "" {
		cfg.AuthToken = token
	}
}

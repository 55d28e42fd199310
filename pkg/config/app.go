package config

import "fmt"

// Config is the full configuration shared by the api, scheduler and worker
// binaries. Each binary reads the sections it needs.
type Config struct {
	DB        DBConfig        `yaml:"db"`
	MQ        MQConfig        `yaml:"mq"`
	Redis     RedisConfig     `yaml:"redis"`
	JWT       JWTConfig       `yaml:"jwt"`
	Server    ServerConfig    `yaml:"server"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Worker    WorkerConfig    `yaml:"worker"`
	Email     EmailConfig     `yaml:"email"`
	Twilio    TwilioConfig    `yaml:"twilio"`
	Otel      OtelConfig      `yaml:"otel"`
}

// Load 加载配置文件并应用环境变量覆盖
func Load() (*Config, error) {
	var cfg Config
	if err := Decode(&cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	OverrideDBFromEnv(&cfg.DB)
	OverrideMQFromEnv(&cfg.MQ)
	OverrideRedisFromEnv(&cfg.Redis)
	OverrideJWTFromEnv(&cfg.JWT)
	OverrideServerFromEnv(&cfg.Server)
	OverrideTwilioFromEnv(&cfg.Twilio)
	return &cfg, nil
}

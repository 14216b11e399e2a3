package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config aggregates every section the services read. Each service only
// touches the sections it needs.
type Config struct {
	DB        DBConfig        `yaml:"db"`
	MQ        MQConfig        `yaml:"mq"`
	Redis     RedisConfig     `yaml:"redis"`
	JWT       JWTConfig       `yaml:"jwt"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Server    ServerConfig    `yaml:"server"`
	TaskAPI   TaskAPIConfig   `yaml:"task_api"`
}

// Load reads config/base.yaml (or CONFIG_DIR/base.yaml) and applies
// environment variable overrides on top. Environment always wins.
func Load() (*Config, error) {
	configDir := GetEnv("CONFIG_DIR", "config")

	data, err := os.ReadFile(filepath.Join(configDir, "base.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to load base.yaml: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse base.yaml: %w", err)
	}

	OverrideDBFromEnv(&cfg.DB)
	OverrideMQFromEnv(&cfg.MQ)
	OverrideRedisFromEnv(&cfg.Redis)
	OverrideJWTFromEnv(&cfg.JWT)
	OverrideSMTPFromEnv(&cfg.SMTP)
	OverrideServerFromEnv(&cfg.Server)
	OverrideTaskAPIFromEnv(&cfg.TaskAPI)

	if cfg.Scheduler.IntervalSeconds <= 0 {
		cfg.Scheduler.IntervalSeconds = 60
	}
	if cfg.Scheduler.BatchSize <= 0 {
		cfg.Scheduler.BatchSize = 100
	}

	return &cfg, nil
}

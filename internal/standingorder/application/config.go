package application

import (
	"os"

	"gopkg.in/yaml.v3"
)

// ScheduleConfig defines the daily run schedule.
type ScheduleConfig struct {
	DailyAt string `yaml:"daily_at"`
}

// Config defines standing order runtime configuration.
type Config struct {
	Schedule ScheduleConfig `yaml:"schedule"`
}

// LoadConfig loads config from yaml or env.
func LoadConfig() (Config, error) {
	var cfg Config

	if path := os.Getenv("STANDING_ORDER_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.Schedule.DailyAt == "" {
		cfg.Schedule.DailyAt = getenvDefault("STANDING_ORDER_DAILY_AT", "06:00")
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

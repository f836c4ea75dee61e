package main

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/viper"
)

type guardConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	MonitoringWindow time.Duration `mapstructure:"monitoring_window"`
	VolumeThreshold  int           `mapstructure:"volume_threshold"`
}

type predictionConfig struct {
	Window             time.Duration `mapstructure:"window"`
	Samples            int           `mapstructure:"samples"`
	PreemptiveOpen     float64       `mapstructure:"preemptive_open_threshold"`
	EvaluationInterval time.Duration `mapstructure:"evaluation_interval"`
	AdaptiveThresholds bool          `mapstructure:"adaptive_thresholds"`
}

type loggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type demoConfig struct {
	MetricsAddress string           `mapstructure:"metrics_address"`
	StatsSchedule  string           `mapstructure:"stats_schedule"`
	Guard          guardConfig      `mapstructure:"guard"`
	Prediction     predictionConfig `mapstructure:"prediction"`
	Logging        loggingConfig    `mapstructure:"logging"`
}

func loadConfig() (*demoConfig, error) {
	viper.SetDefault("metrics_address", ":2112")
	viper.SetDefault("stats_schedule", "@every 10s")
	viper.SetDefault("guard.timeout", "5s")
	viper.SetDefault("guard.failure_threshold", 3)
	viper.SetDefault("guard.success_threshold", 2)
	viper.SetDefault("guard.monitoring_window", "60s")
	viper.SetDefault("guard.volume_threshold", 3)
	viper.SetDefault("prediction.window", "2m")
	viper.SetDefault("prediction.samples", 10)
	viper.SetDefault("prediction.preemptive_open_threshold", 0.8)
	viper.SetDefault("prediction.evaluation_interval", "10s")
	viper.SetDefault("prediction.adaptive_thresholds", true)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")

	viper.SetConfigName("callguard")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("CALLGUARD")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// No config file: defaults and environment only.
	}

	var cfg demoConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *demoConfig) validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MetricsAddress, validation.Required),
		validation.Field(&c.StatsSchedule, validation.Required),
		validation.Field(&c.Logging, validation.By(func(interface{}) error {
			return validation.ValidateStruct(&c.Logging,
				validation.Field(&c.Logging.Level,
					validation.Required,
					validation.In("debug", "info", "warn", "error"),
				),
				validation.Field(&c.Logging.Format,
					validation.Required,
					validation.In("json", "console"),
				),
			)
		})),
	)
}

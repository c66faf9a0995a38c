package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Statistic layout defaults shared by every node in the process. The 1s
// metric is split into SampleCount buckets, the 60s metric always uses one
// bucket per second.
const (
	DefaultSampleCount       = 2
	DefaultIntervalMs        = 1000
	DefaultMinuteIntervalMs  = 60 * 1000
	DefaultMinuteSampleCount = 60

	// DefaultOccupyTimeoutMs bounds how far into the future a prioritized
	// request may borrow capacity.
	DefaultOccupyTimeoutMs = 500

	// DefaultMaxAllowedRtMs clamps recorded response times so one stuck call
	// cannot poison the RT average.
	DefaultMaxAllowedRtMs = 4900

	// DefaultColdFactor is the warm-up controller's initial rate divisor.
	DefaultColdFactor = 3
)

const (
	Prod = "prod"
	Dev  = "dev"
	Test = "test"
)

type Governor struct {
	Governor Box `yaml:"governor"`
}

type Box struct {
	Env       string    `yaml:"env"`
	Stat      Stat      `yaml:"stat"`
	Flow      Flow      `yaml:"flow"`
	MetricLog MetricLog `yaml:"metric_log"`
	Api       Api       `yaml:"api"`
	Cluster   Cluster   `yaml:"cluster"`
}

type Stat struct {
	SampleCount    int   `yaml:"sample_count"`
	IntervalMs     int64 `yaml:"interval_ms"`
	MaxAllowedRtMs int64 `yaml:"max_allowed_rt_ms"`
}

type Flow struct {
	OccupyTimeoutMs int64 `yaml:"occupy_timeout_ms"`
}

type MetricLog struct {
	Enabled         bool   `yaml:"enabled"`
	Dir             string `yaml:"dir"`
	MaxFileBytes    int64  `yaml:"max_file_bytes"`
	FlushIntervalMs int64  `yaml:"flush_interval_ms"`
}

type Api struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
}

type Cluster struct {
	Enabled   bool   `yaml:"enabled"`
	RedisAddr string `yaml:"redis_addr"`
}

func (c *Governor) IsProd() bool { return c.Governor.Env == Prod }

// withDefaults fills zero values so a partial yaml still yields a usable
// config.
func (c *Governor) withDefaults() *Governor {
	if c.Governor.Stat.SampleCount <= 0 {
		c.Governor.Stat.SampleCount = DefaultSampleCount
	}
	if c.Governor.Stat.IntervalMs <= 0 {
		c.Governor.Stat.IntervalMs = DefaultIntervalMs
	}
	if c.Governor.Stat.MaxAllowedRtMs <= 0 {
		c.Governor.Stat.MaxAllowedRtMs = DefaultMaxAllowedRtMs
	}
	if c.Governor.Flow.OccupyTimeoutMs <= 0 {
		c.Governor.Flow.OccupyTimeoutMs = DefaultOccupyTimeoutMs
	}
	if c.Governor.MetricLog.MaxFileBytes <= 0 {
		c.Governor.MetricLog.MaxFileBytes = 50 << 20
	}
	if c.Governor.MetricLog.FlushIntervalMs <= 0 {
		c.Governor.MetricLog.FlushIntervalMs = 1000
	}
	return c
}

// Default returns the built-in configuration used when no file is present.
func Default() *Governor {
	return (&Governor{}).withDefaults()
}

// LoadConfig reads the yaml config at path and applies GOVERNOR_* env
// overrides via viper (e.g. GOVERNOR_API_PORT).
func LoadConfig(path string) (*Governor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config yaml file %s: %w", path, err)
	}

	var cfg *Governor
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml from %s: %w", path, err)
	}
	if cfg == nil {
		cfg = &Governor{}
	}

	v := viper.New()
	v.SetEnvPrefix("GOVERNOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if env := v.GetString("ENV"); env != "" {
		cfg.Governor.Env = env
	}
	if port := v.GetString("API_PORT"); port != "" {
		cfg.Governor.Api.Port = port
	}
	if addr := v.GetString("CLUSTER_REDIS_ADDR"); addr != "" {
		cfg.Governor.Cluster.RedisAddr = addr
	}

	return cfg.withDefaults(), nil
}

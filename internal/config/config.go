// Package config loads the qoldau configuration from config.yaml and QD_*
// environment variables. Environment wins over the file; both win over the
// built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`

	DB struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"db"`

	Classifier struct {
		URL     string        `mapstructure:"url"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"classifier"`

	Bank struct {
		Path       string `mapstructure:"path"`
		CacheDir   string `mapstructure:"cache_dir"`
		Encoder    string `mapstructure:"encoder"` // hash | http
		EncoderURL string `mapstructure:"encoder_url"`
		Dims       int    `mapstructure:"dims"`
	} `mapstructure:"bank"`

	AutoReply struct {
		ThresholdRU float64 `mapstructure:"threshold_ru"`
		ThresholdKK float64 `mapstructure:"threshold_kk"`
		Verbatim    float64 `mapstructure:"verbatim"`
	} `mapstructure:"autoreply"`

	Routing struct {
		AutoConfidence    float64 `mapstructure:"auto_confidence"`
		ClarifyConfidence float64 `mapstructure:"clarify_confidence"`
	} `mapstructure:"routing"`

	SLA struct {
		Interval         time.Duration `mapstructure:"interval"`
		EscalationWindow time.Duration `mapstructure:"escalation_window"`
	} `mapstructure:"sla"`

	Metrics struct {
		ResponseTimeSeconds float64 `mapstructure:"response_time_seconds"`
	} `mapstructure:"metrics"`

	Log struct {
		Level  string `mapstructure:"level"`  // debug | info | warn | error
		Format string `mapstructure:"format"` // text | json
	} `mapstructure:"log"`
}

// Load reads configuration from the given file (optional) and the QD_
// environment. An empty path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("QD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("db.path", "data/qoldau.db")
	v.SetDefault("classifier.url", "http://localhost:8000")
	v.SetDefault("classifier.timeout", "10s")
	v.SetDefault("bank.path", "data/responses.json")
	v.SetDefault("bank.cache_dir", "data/index")
	v.SetDefault("bank.encoder", "hash")
	v.SetDefault("bank.encoder_url", "")
	v.SetDefault("bank.dims", 256)
	v.SetDefault("autoreply.threshold_ru", 0.65)
	v.SetDefault("autoreply.threshold_kk", 0.50)
	v.SetDefault("autoreply.verbatim", 0.80)
	v.SetDefault("routing.auto_confidence", 0.75)
	v.SetDefault("routing.clarify_confidence", 0.70)
	v.SetDefault("sla.interval", "60s")
	v.SetDefault("sla.escalation_window", "12h")
	v.SetDefault("metrics.response_time_seconds", 0.8)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	inUnit := func(name string, v float64) error {
		if v < 0 || v > 1 {
			return fmt.Errorf("config: %s must be within [0,1], got %g", name, v)
		}
		return nil
	}
	for name, v := range map[string]float64{
		"autoreply.threshold_ru":     c.AutoReply.ThresholdRU,
		"autoreply.threshold_kk":     c.AutoReply.ThresholdKK,
		"autoreply.verbatim":         c.AutoReply.Verbatim,
		"routing.auto_confidence":    c.Routing.AutoConfidence,
		"routing.clarify_confidence": c.Routing.ClarifyConfidence,
	} {
		if err := inUnit(name, v); err != nil {
			return err
		}
	}
	if c.Bank.Encoder != "hash" && c.Bank.Encoder != "http" {
		return fmt.Errorf("config: bank.encoder must be hash or http, got %q", c.Bank.Encoder)
	}
	if c.Bank.Encoder == "http" && c.Bank.EncoderURL == "" {
		return fmt.Errorf("config: bank.encoder_url is required for the http encoder")
	}
	if c.Bank.Dims <= 0 {
		return fmt.Errorf("config: bank.dims must be positive, got %d", c.Bank.Dims)
	}
	if c.Classifier.Timeout <= 0 {
		return fmt.Errorf("config: classifier.timeout must be positive")
	}
	if c.SLA.Interval <= 0 || c.SLA.EscalationWindow <= 0 {
		return fmt.Errorf("config: sla.interval and sla.escalation_window must be positive")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

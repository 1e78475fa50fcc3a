// Package config loads the chatflow settings file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/dukex/chatflow/pkg/autosave"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort        = 9091
	DefaultDatabaseURL = "file://./data"
	DefaultLogLevel    = "info"
)

// Config holds every setting a chatflow command can take. Command line
// flags and environment variables override values read from the file.
type Config struct {
	Port           int            `yaml:"port"            validate:"min=1,max=65535"`
	DatabaseURL    string         `yaml:"database_url"    validate:"required"`
	StoreKey       string         `yaml:"store_key"       validate:"required"`
	LogLevel       string         `yaml:"log_level"       validate:"oneof=debug info warn error"`
	EventBus       string         `yaml:"event_bus"       validate:"omitempty,oneof=gochannel memory kafka"`
	KafkaBrokers   []string       `yaml:"kafka_brokers"   validate:"required_if=EventBus kafka,dive,hostname_port"`
	Mode           string         `yaml:"mode"            validate:"oneof=edit view"`
	SampleFile     string         `yaml:"sample_file"     validate:"omitempty,file"`
	BackupSchedule string         `yaml:"backup_schedule" validate:"omitempty,cron"`
	Otel           bool           `yaml:"otel"`
	Autosave       AutosaveConfig `yaml:"autosave"`
}

type AutosaveConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval" validate:"min=0"`
}

func Default() Config {
	return Config{
		Port:        DefaultPort,
		DatabaseURL: DefaultDatabaseURL,
		StoreKey:    persistence.StateKey,
		LogLevel:    DefaultLogLevel,
		Mode:        "edit",
		Autosave: AutosaveConfig{
			Enabled:  true,
			Interval: autosave.DefaultInterval,
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func Validate(cfg Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())

	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}

package construct

import (
	"context"
	"errors"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/viant/afs"
	"github.com/viant/construct/internal/logging"
	"github.com/viant/construct/policy"
	"github.com/viant/construct/service/messaging/memory"
	"github.com/viant/construct/service/plugin"
	"github.com/viant/construct/service/signal"
	"gopkg.in/yaml.v3"
)

// Config is a serialisable representation of the engine configuration. The
// zero value of a nested section falls back to its package defaults.
type Config struct {
	Channel string          `json:"channel,omitempty" yaml:"channel,omitempty"`
	Log     *logging.Config `json:"log,omitempty" yaml:"log,omitempty"`
	Events  EventsConfig    `json:"events,omitempty" yaml:"events,omitempty"`
	Plugins PluginsConfig   `json:"plugins,omitempty" yaml:"plugins,omitempty"`
	Policy  *policy.Config  `json:"policy,omitempty" yaml:"policy,omitempty"`
	Metrics MetricsConfig   `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing TracingConfig   `json:"tracing,omitempty" yaml:"tracing,omitempty"`
}

// EventsConfig controls relaying of lifecycle signals onto a queue
type EventsConfig struct {
	Enabled bool          `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Pattern string        `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Queue   memory.Config `json:"queue,omitempty" yaml:"queue,omitempty"`
}

// PluginsConfig lists plugin search paths
type PluginsConfig struct {
	Paths   []string `json:"paths,omitempty" yaml:"paths,omitempty"`
	Pattern string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// MetricsConfig enables Prometheus collectors on the default registerer
type MetricsConfig struct {
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// TracingConfig enables the stdout span exporter
type TracingConfig struct {
	Enabled        bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	ServiceName    string `json:"serviceName,omitempty" yaml:"serviceName,omitempty"`
	ServiceVersion string `json:"serviceVersion,omitempty" yaml:"serviceVersion,omitempty"`
	OutputFile     string `json:"outputFile,omitempty" yaml:"outputFile,omitempty"`
}

// DefaultConfig returns a Config with package defaults
func DefaultConfig() *Config {
	return &Config{
		Channel: signal.DefaultChannel,
		Log:     logging.DefaultConfig(),
		Events: EventsConfig{
			Pattern: "**",
			Queue:   memory.DefaultConfig(),
		},
		Plugins: PluginsConfig{Pattern: plugin.DefaultPattern},
		Tracing: TracingConfig{ServiceName: "construct"},
	}
}

// Validate returns aggregated error describing invalid settings or nil
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Channel == "" {
		errs = append(errs, fmt.Errorf("channel is required"))
	}
	if c.Log != nil {
		switch c.Log.Level {
		case "", logging.DebugLevel, logging.InfoLevel, logging.WarnLevel, logging.ErrorLevel:
		default:
			errs = append(errs, fmt.Errorf("log.level %q is not supported", c.Log.Level))
		}
	}
	if c.Events.Enabled && !doublestar.ValidatePattern(c.Events.Pattern) {
		errs = append(errs, fmt.Errorf("events.pattern %q is invalid", c.Events.Pattern))
	}
	if c.Events.Queue.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("events.queue.maxRetries must be >= 0"))
	}
	if c.Plugins.Pattern != "" && !doublestar.ValidatePattern(c.Plugins.Pattern) {
		errs = append(errs, fmt.Errorf("plugins.pattern %q is invalid", c.Plugins.Pattern))
	}
	if c.Policy != nil {
		switch c.Policy.Mode {
		case "", policy.ModeAsk, policy.ModeAuto, policy.ModeDeny:
		default:
			errs = append(errs, fmt.Errorf("policy.mode %q is not supported", c.Policy.Mode))
		}
	}
	if c.Tracing.Enabled && c.Tracing.ServiceName == "" {
		errs = append(errs, fmt.Errorf("tracing.serviceName is required"))
	}
	return errors.Join(errs...)
}

// LoadConfig reads a YAML (or JSON) config from URL expanding ${env.KEY} expressions
func LoadConfig(ctx context.Context, URL string) (*Config, error) {
	data, err := afs.New().DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %v: %w", URL, err)
	}
	ret := DefaultConfig()
	if err = yaml.Unmarshal([]byte(expandEnv(string(data))), ret); err != nil {
		return nil, fmt.Errorf("failed to decode config %v: %w", URL, err)
	}
	if err = ret.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %v: %w", URL, err)
	}
	return ret, nil
}

package construct

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/viant/construct/internal/logging"
	"github.com/viant/construct/metrics"
	"github.com/viant/construct/model"
	"github.com/viant/construct/model/pipeline"
	"github.com/viant/construct/model/types"
	"github.com/viant/construct/policy"
	"github.com/viant/construct/runtime/loop"
	"github.com/viant/construct/service/event"
	"github.com/viant/construct/service/hub"
	"github.com/viant/construct/service/messaging"
	"github.com/viant/construct/service/messaging/memory"
	"github.com/viant/construct/service/plugin"
	"github.com/viant/construct/service/signal"
	"github.com/viant/construct/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Service wires a hub, a signal bus and the optional observers into one engine
type Service struct {
	config     *Config
	logger     logging.Logger
	bus        *signal.Bus
	channel    *signal.Channel
	hub        *hub.Hub
	policy     *policy.Policy
	registerer prometheus.Registerer
	metrics    *metrics.Collector
	eventQueue messaging.Queue[event.Event[any]]
	relay      *event.Relay
	discoverer plugin.Discoverer
	exporter   sdktrace.SpanExporter
	mux        sync.Mutex
	closed     bool
}

// New creates a service
func New(options ...Option) (*Service, error) {
	ret := &Service{config: DefaultConfig()}
	for _, opt := range options {
		opt(ret)
	}
	if err := ret.init(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *Service) init() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if s.logger == nil {
		s.logger = logging.New(s.config.Log)
	}
	if s.bus == nil {
		s.bus = signal.NewBus()
	}
	s.channel = s.bus.Channel(s.config.Channel)
	s.hub = hub.New(hub.WithChannel(s.channel), hub.WithLogger(s.logger))
	if s.policy == nil {
		s.policy = policy.FromConfig(s.config.Policy)
	}
	if s.registerer == nil && s.config.Metrics.Enabled {
		s.registerer = prometheus.DefaultRegisterer
	}
	if s.registerer != nil {
		collector, err := metrics.New(s.registerer)
		if err != nil {
			return err
		}
		if err = collector.Attach(s.channel); err != nil {
			return err
		}
		s.metrics = collector
	}
	if s.eventQueue == nil && s.config.Events.Enabled {
		s.eventQueue = memory.NewQueue[event.Event[any]](s.config.Events.Queue)
	}
	if s.eventQueue != nil {
		s.relay = event.NewRelay(event.WithQueue(s.eventQueue), event.WithLogger(s.logger))
		pattern := s.config.Events.Pattern
		if pattern == "" {
			pattern = "**"
		}
		if err := s.relay.Attach(s.channel, pattern); err != nil {
			return err
		}
	}
	if err := s.initTracing(); err != nil {
		return fmt.Errorf("failed to initialise tracing: %w", err)
	}
	if s.discoverer == nil {
		discoverer, err := plugin.NewManifestDiscoverer(plugin.WithPattern(s.pluginPattern()), plugin.WithLogger(s.logger))
		if err != nil {
			return err
		}
		s.discoverer = discoverer
	}
	return nil
}

func (s *Service) initTracing() error {
	cfg := s.config.Tracing
	if s.exporter != nil {
		return tracing.InitWithExporter(cfg.ServiceName, cfg.ServiceVersion, s.exporter)
	}
	if !cfg.Enabled {
		return nil
	}
	return tracing.Init(cfg.ServiceName, cfg.ServiceVersion, cfg.OutputFile)
}

func (s *Service) pluginPattern() string {
	if s.config.Plugins.Pattern == "" {
		return plugin.DefaultPattern
	}
	return s.config.Plugins.Pattern
}

// Config returns service configuration
func (s *Service) Config() *Config {
	return s.config
}

// Hub returns action hub
func (s *Service) Hub() *hub.Hub {
	return s.hub
}

// Bus returns signal bus
func (s *Service) Bus() *signal.Bus {
	return s.bus
}

// Channel returns the channel receiving lifecycle signals
func (s *Service) Channel() *signal.Channel {
	return s.channel
}

// Metrics returns Prometheus collector, nil when metrics are disabled
func (s *Service) Metrics() *metrics.Collector {
	return s.metrics
}

// Events returns the signal relay, nil when events are disabled
func (s *Service) Events() *event.Relay {
	return s.relay
}

// Discover registers plugins found in searchPaths, Config.Plugins.Paths when none given
func (s *Service) Discover(ctx context.Context, searchPaths ...string) ([]plugin.Plugin, error) {
	if len(searchPaths) == 0 {
		searchPaths = s.config.Plugins.Paths
	}
	if len(searchPaths) == 0 {
		return nil, nil
	}
	plugins, err := s.discoverer.Discover(ctx, searchPaths)
	if err != nil {
		return nil, err
	}
	for _, p := range plugins {
		if err = p.Register(s.hub); err != nil {
			return nil, fmt.Errorf("failed to register plugin %v: %w", p.Name(), err)
		}
		s.logger.Info("plugin registered", "plugin", p.Name())
	}
	return plugins, nil
}

// NewLoop creates a loop for action wired to the service channel and logger
func (s *Service) NewLoop(action *model.Action, pctx *pipeline.Context, kwargs map[string]interface{}, options ...loop.Option) *loop.Loop {
	opts := append([]loop.Option{
		loop.WithContext(pctx),
		loop.WithChannel(s.channel),
		loop.WithLogger(s.logger),
	}, options...)
	return loop.New(action, kwargs, opts...)
}

// Run resolves id in pctx and runs it with kwargs, returning task outputs
func (s *Service) Run(ctx context.Context, id string, pctx *pipeline.Context, kwargs map[string]interface{}) (map[string]interface{}, error) {
	s.mux.Lock()
	closed := s.closed
	s.mux.Unlock()
	if closed {
		return nil, fmt.Errorf("%w: service closed", types.ErrConstruct)
	}
	action, err := s.hub.GetAction(id, pctx)
	if err != nil {
		return nil, err
	}
	if s.policy != nil && policy.FromContext(ctx) == nil {
		ctx = policy.WithPolicy(ctx, s.policy)
	}
	aLoop := s.NewLoop(action, pctx, kwargs)
	err = aLoop.Run(ctx)
	return aLoop.Outputs(), err
}

// Close detaches observers from the channel; subsequent runs fail
func (s *Service) Close() error {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.relay != nil {
		s.relay.Close()
	}
	if s.metrics != nil {
		s.metrics.Detach(s.channel)
	}
	return nil
}

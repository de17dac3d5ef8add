package construct

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/viant/construct/internal/logging"
	"github.com/viant/construct/policy"
	"github.com/viant/construct/service/event"
	"github.com/viant/construct/service/messaging"
	"github.com/viant/construct/service/plugin"
	"github.com/viant/construct/service/signal"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option customises a Service
type Option func(s *Service)

// WithConfig sets the service configuration
func WithConfig(config *Config) Option {
	return func(s *Service) {
		if config != nil {
			s.config = config
		}
	}
}

// WithLogger sets logger, overriding Config.Log
func WithLogger(logger logging.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithBus sets the signal bus shared with other services
func WithBus(bus *signal.Bus) Option {
	return func(s *Service) {
		s.bus = bus
	}
}

// WithPolicy sets the approval policy applied to every run, overriding Config.Policy
func WithPolicy(p *policy.Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithMetrics registers Prometheus collectors with registerer
func WithMetrics(registerer prometheus.Registerer) Option {
	return func(s *Service) {
		s.registerer = registerer
	}
}

// WithEventQueue relays lifecycle signals onto queue
func WithEventQueue(queue messaging.Queue[event.Event[any]]) Option {
	return func(s *Service) {
		s.eventQueue = queue
	}
}

// WithDiscoverer sets the plugin discoverer
func WithDiscoverer(discoverer plugin.Discoverer) Option {
	return func(s *Service) {
		s.discoverer = discoverer
	}
}

// WithTracing configures OpenTelemetry tracing with the stdout exporter. If
// outputFile is empty spans are written to stdout. The first successful
// initialisation in the process wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		s.config.Tracing = TracingConfig{
			Enabled:        true,
			ServiceName:    serviceName,
			ServiceVersion: serviceVersion,
			OutputFile:     outputFile,
		}
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom SpanExporter
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		s.exporter = exporter
		s.config.Tracing.ServiceName = serviceName
		s.config.Tracing.ServiceVersion = serviceVersion
	}
}

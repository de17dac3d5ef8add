// Package tracing wraps OpenTelemetry so the action loop can open spans for
// actions, groups and tasks. Spans are no-op until Init or InitWithExporter
// installs a provider.
package tracing

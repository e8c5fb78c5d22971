// Package observability provides OpenTelemetry trace export over OTLP
// HTTP. Spans are shipped to a local collector agent, which buffers
// and forwards them; the service never talks to a tracing backend
// directly.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/storegate/storegate/internal/log"
)

// Config for trace export.
type Config struct {
	// AgentHost is the local OTLP HTTP endpoint (default: localhost:4318).
	AgentHost string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// ServiceName is the service name attached to every span.
	ServiceName string
}

// DefaultAgentHost is the default local OTLP HTTP endpoint.
const DefaultAgentHost = "localhost:4318"

// Setup registers a global tracer provider exporting to the local
// collector. Returns a shutdown function that flushes pending spans.
//
// An unreachable exporter disables tracing instead of failing startup;
// the service is useful without it.
func Setup(ctx context.Context, cfg Config, logger log.Logger) (shutdown func(context.Context) error, err error) {
	agentHost := cfg.AgentHost
	if agentHost == "" {
		agentHost = DefaultAgentHost
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "storegate"
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(agentHost),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("creating trace exporter failed, tracing disabled", "error", err)
		return func(context.Context) error { return nil }, nil
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(serviceName)}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentName(cfg.Environment))
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Debug("tracing enabled",
		"agent", agentHost,
		"service", serviceName,
		"environment", cfg.Environment,
	)
	return tp.Shutdown, nil
}

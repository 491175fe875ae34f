// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package export builds the span exporter that carries execution and step
// spans out of the process.
package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Exporter kinds.
const (
	ExporterNone     = "none"
	ExporterConsole  = "console"
	ExporterOTLP     = "otlp"
	ExporterOTLPHTTP = "otlp-http"
)

// Exporters lists the accepted exporter kinds.
func Exporters() []string {
	return []string{ExporterNone, ExporterConsole, ExporterOTLP, ExporterOTLPHTTP}
}

// Config selects and configures a span exporter.
type Config struct {
	// Exporter is one of none, console, otlp (gRPC) or otlp-http.
	// Empty means none.
	Exporter string

	// Endpoint is host:port for the OTLP exporters.
	Endpoint string

	// URLPath overrides /v1/traces for otlp-http.
	URLPath string

	// Insecure disables TLS for the OTLP exporters.
	Insecure bool

	// Headers are sent with every OTLP request.
	Headers map[string]string

	// Writer receives console output. Defaults to stderr so span dumps never
	// mix with command output on stdout.
	Writer io.Writer

	// PrettyPrint indents console output.
	PrettyPrint bool
}

// Validate reports a configuration New would reject.
func (c Config) Validate() error {
	switch strings.ToLower(c.Exporter) {
	case "", ExporterNone, ExporterConsole:
		return nil
	case ExporterOTLP, ExporterOTLPHTTP:
		if c.Endpoint == "" {
			return fmt.Errorf("%s exporter requires an endpoint", c.Exporter)
		}
		return nil
	default:
		return fmt.Errorf("unknown trace exporter %q (want one of %s)",
			c.Exporter, strings.Join(Exporters(), ", "))
	}
}

// New returns the configured exporter, or nil when tracing export is off.
func New(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch strings.ToLower(cfg.Exporter) {
	case ExporterConsole:
		return NewConsoleExporter(cfg)
	case ExporterOTLP:
		return NewOTLPExporter(ctx, cfg)
	case ExporterOTLPHTTP:
		return NewOTLPHTTPExporter(ctx, cfg)
	default:
		return nil, nil
	}
}

// NewConsoleExporter writes spans as JSON, one object per span.
func NewConsoleExporter(cfg Config) (sdktrace.SpanExporter, error) {
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}

	opts := []stdouttrace.Option{stdouttrace.WithWriter(w)}
	if cfg.PrettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}

	exp, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create console exporter: %w", err)
	}
	return exp, nil
}

// NewOTLPExporter sends spans over OTLP/gRPC. Without Insecure the client
// uses TLS with the system roots.
func NewOTLPExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}

	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP gRPC exporter: %w", err)
	}
	return exp, nil
}

// NewOTLPHTTPExporter sends spans over OTLP/HTTP.
func NewOTLPHTTPExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.URLPath != "" {
		opts = append(opts, otlptracehttp.WithURLPath(cfg.URLPath))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}

	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP HTTP exporter: %w", err)
	}
	return exp, nil
}

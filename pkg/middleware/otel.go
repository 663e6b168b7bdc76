package middleware

import (
	"context"
	"fmt"

	"github.com/dataroute/dataroute/pkg/request"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTracerName = "dataroute"

// OTelConfig configures the OpenTelemetry middleware, mirroring the
// teacher's OTelConfig shape.
type OTelConfig struct {
	// TracerName is the name of the tracer (default: "dataroute").
	TracerName string

	// AttributeExtractor extracts custom attributes from the request.
	AttributeExtractor func(req *request.Request) []attribute.KeyValue

	tracer trace.Tracer
}

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*OTelConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) { c.TracerName = name }
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(req *request.Request) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) { c.AttributeExtractor = extractor }
}

func defaultOTelConfig() OTelConfig {
	return OTelConfig{TracerName: defaultTracerName}
}

// OpenTelemetry creates a Middleware that traces every loader/action call
// with the request path, method, and result status.
func OpenTelemetry(opts ...OTelOption) Middleware {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}
	config.tracer = otel.Tracer(config.TracerName)

	return func(req any, next func() (any, error)) (any, error) {
		r, _ := req.(*request.Request)

		spanName := "dataroute.call"
		attrs := []attribute.KeyValue{}
		if r != nil {
			spanName = fmt.Sprintf("dataroute %s %s", r.Method, r.URL.Path)
			attrs = append(attrs,
				attribute.String("dataroute.path", r.URL.Path),
				attribute.String("dataroute.method", r.Method),
			)
			if config.AttributeExtractor != nil {
				attrs = append(attrs, config.AttributeExtractor(r)...)
			}
		}

		spanCtx := context.Background()
		if r != nil {
			spanCtx = r.Context()
		}
		_, span := config.tracer.Start(
			spanCtx,
			spanName,
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		data, err := next()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		return data, err
	}
}

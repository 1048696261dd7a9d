package tracing

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/opentracing/opentracing-go/log"

	"github.com/customeros/sitestack/internal/logger"
	"github.com/customeros/sitestack/internal/utils"
)

const (
	SpanTagTenant    = "tenant"
	SpanTagUserId    = "user-id"
	SpanTagRequestId = "request-id"
	SpanTagAppSource = "app-source"
	SpanTagEntityId  = "entity-id"
	SpanTagProjectId = "project-id"
	SpanTagComponent = "component"
)

const (
	SpanTagComponentPostgresRepository = "postgresRepository"
	SpanTagComponentRest               = "rest"
	SpanTagComponentCronJob            = "cronJob"
	SpanTagComponentService            = "service"
	SpanTagComponentExternalApi        = "externalApi"
)

// StartHttpServerTracerSpanWithHeader continues a trace propagated in the
// request headers, or starts a new root span.
func StartHttpServerTracerSpanWithHeader(ctx context.Context, operationName string, headers http.Header) (context.Context, opentracing.Span) {
	tracer := opentracing.GlobalTracer()
	var span opentracing.Span
	if spanCtx, err := tracer.Extract(opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(headers)); err == nil {
		span = tracer.StartSpan(operationName, ext.RPCServerOption(spanCtx))
	} else {
		span = tracer.StartSpan(operationName)
	}
	return opentracing.ContextWithSpan(ctx, span), span
}

func StartTracerSpan(ctx context.Context, operationName string) (opentracing.Span, context.Context) {
	span := opentracing.GlobalTracer().StartSpan(operationName)
	return span, opentracing.ContextWithSpan(ctx, span)
}

func setDefaultSpanTags(ctx context.Context, span opentracing.Span) {
	customContext := utils.GetContext(ctx)
	tags := map[string]string{
		SpanTagTenant:    customContext.Tenant,
		SpanTagUserId:    customContext.UserId,
		SpanTagRequestId: customContext.RequestId,
		SpanTagAppSource: customContext.AppSource,
	}
	for key, value := range tags {
		if value != "" {
			span.SetTag(key, value)
		}
	}
}

func SetDefaultRestSpanTags(ctx context.Context, span opentracing.Span) {
	setDefaultSpanTags(ctx, span)
	span.SetTag(SpanTagComponent, SpanTagComponentRest)
}

func SetDefaultServiceSpanTags(ctx context.Context, span opentracing.Span) {
	setDefaultSpanTags(ctx, span)
	span.SetTag(SpanTagComponent, SpanTagComponentService)
}

func TraceErr(span opentracing.Span, err error, fields ...log.Field) {
	if span == nil || err == nil {
		return
	}
	ext.LogError(span, err, fields...)
}

func LogObjectAsJson(span opentracing.Span, name string, object any) {
	if object == nil {
		span.LogFields(log.String(name, "nil"))
		return
	}
	if raw, err := json.Marshal(object); err == nil {
		span.LogFields(log.String(name, string(raw)))
		return
	}
	span.LogFields(log.Object(name, object))
}

func TagComponentPostgresRepository(span opentracing.Span) {
	span.SetTag(SpanTagComponent, SpanTagComponentPostgresRepository)
}

func TagComponentCronJob(span opentracing.Span) {
	span.SetTag(SpanTagComponent, SpanTagComponentCronJob)
}

func TagComponentExternalApi(span opentracing.Span) {
	span.SetTag(SpanTagComponent, SpanTagComponentExternalApi)
}

func TagEntity(span opentracing.Span, entityId string) {
	if entityId != "" {
		span.SetTag(SpanTagEntityId, entityId)
	}
}

func TagProject(span opentracing.Span, projectId string) {
	if projectId != "" {
		span.SetTag(SpanTagProjectId, projectId)
	}
}

func logPanic(span opentracing.Span, recovered any, stack []byte) {
	ext.Error.Set(span, true)
	span.LogKV(
		"event", "error",
		"error.object", recovered,
		"stack", string(stack),
	)
}

// RecoveryWithJaeger records a handler panic as a span and re-panics so the
// outer gin.Recovery still answers 500.
func RecoveryWithJaeger(tracer opentracing.Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				span := tracer.StartSpan("panic-recovery")
				ext.HTTPUrl.Set(span, c.Request.URL.Path)
				logPanic(span, r, debug.Stack())
				span.Finish()
				panic(r)
			}
		}()
		c.Next()
	}
}

// RecoverAndLogToJaeger must be deferred directly.
func RecoverAndLogToJaeger(appLogger logger.Logger) {
	if r := recover(); r != nil {
		span := opentracing.GlobalTracer().StartSpan("panic-recovery")
		defer span.Finish()

		stack := debug.Stack()
		logPanic(span, r, stack)
		appLogger.Errorf("Recovered from panic: %v\nStack trace:\n%s", r, stack)
	}
}

// ExtractTextMapCarrier serializes a span context for message headers.
func ExtractTextMapCarrier(spanCtx opentracing.SpanContext) opentracing.TextMapCarrier {
	carrier := make(opentracing.TextMapCarrier)
	if err := opentracing.GlobalTracer().Inject(spanCtx, opentracing.TextMap, carrier); err != nil {
		return make(opentracing.TextMapCarrier)
	}
	return carrier
}

package telemetry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInit_DisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "cinebook"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.Empty(t, TraceID(context.Background()))
}

func TestTracingMiddleware_RecordsServerSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(TracingMiddleware())
	r.GET("/shows/:id", func(c *gin.Context) {
		_, span := StartSpan(c.Request.Context(), "inner")
		EndSpan(span, errors.New("boom"))
		c.Status(http.StatusInternalServerError)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/shows/1", nil))

	assert.NotEmpty(t, w.Header().Get(TraceIDHeader))

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "inner", spans[0].Name())
	assert.Equal(t, "GET /shows/:id", spans[1].Name())
	assert.Equal(t, spans[1].SpanContext().TraceID(), spans[0].Parent().TraceID())
}

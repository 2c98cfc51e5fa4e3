package obs_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/noah-isme/storefront-cart/internal/obs"
)

func TestCartStoreTracerRecordsStatements(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	tracer := obs.CartStoreTracer{Tracer: tp.Tracer("test")}

	ctx := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{
		SQL: "  SELECT payload FROM cart_records WHERE key = $1 " + strings.Repeat("x", 300),
	})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{Err: pgx.ErrNoRows})

	ctx = tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "DELETE FROM cart_records"})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{Err: errors.New("boom")})

	spans := rec.Ended()
	require.Len(t, spans, 2)
	require.Equal(t, "cart_store.select", spans[0].Name())
	require.Equal(t, codes.Unset, spans[0].Status().Code)
	for _, kv := range spans[0].Attributes() {
		if kv.Key == "db.statement" {
			require.True(t, strings.HasSuffix(kv.Value.AsString(), "..."))
		}
	}
	require.Equal(t, "cart_store.delete", spans[1].Name())
	require.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestCartStoreTracerIgnoresForeignContext(t *testing.T) {
	require.NotPanics(t, func() {
		obs.CartStoreTracer{}.TraceQueryEnd(context.Background(), nil, pgx.TraceQueryEndData{})
	})
}

package mq

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type recordingWriter struct {
	msgs []kafka.Message
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestKafkaHeaderCarrier(t *testing.T) {
	var c KafkaHeaderCarrier
	c.Set("traceparent", "a")
	c.Set("tracestate", "b")
	c.Set("traceparent", "c")

	assert.Equal(t, "c", c.Get("traceparent"))
	assert.Equal(t, "", c.Get("baggage"))
	assert.Equal(t, []string{"traceparent", "tracestate"}, c.Keys())
}

func TestProduceMessagePropagatesTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	traceID, _ := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	spanID, _ := trace.SpanIDFromHex("b7ad6b7169203331")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	w := &recordingWriter{}
	require.NoError(t, ProduceMessage(ctx, w, []byte("k"), []byte("v")))
	require.Len(t, w.msgs, 1)

	extracted := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), w.msgs[0].Headers))
	assert.Equal(t, traceID, extracted.TraceID())
	assert.Equal(t, "k", string(w.msgs[0].Key))
}

package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/goleak"

	"storefront/internal/service/order/domain"
)

// scriptedReader 依次返回预置的消息，消息耗尽后阻塞直到 ctx 取消
type scriptedReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	fetchErrs []error
	committed []int64
	drained   chan struct{}
}

func newScriptedReader(msgs ...kafka.Message) *scriptedReader {
	return &scriptedReader{msgs: msgs, drained: make(chan struct{})}
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.msgs) > 0 {
		msg := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	select {
	case <-r.drained:
	default:
		close(r.drained)
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *scriptedReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

type flakyHandler struct {
	mu       sync.Mutex
	failures int
	handled  []string
}

func (h *flakyHandler) HandleReconciliation(_ context.Context, event domain.ReconciliationRequired) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failures > 0 {
		h.failures--
		return errors.New("temporarily unavailable")
	}
	h.handled = append(h.handled, event.OrderNumber)
	return nil
}

func eventMessage(t *testing.T, offset int64, order string) kafka.Message {
	t.Helper()
	value, err := json.Marshal(domain.ReconciliationRequired{OrderNumber: order})
	require.NoError(t, err)
	return kafka.Message{Topic: "inventory-reconciliation", Offset: offset, Key: []byte(order), Value: value}
}

func runConsumer(t *testing.T, reader *scriptedReader, handler ReconciliationHandler) {
	t.Helper()
	consumer := NewReconciliationConsumer(reader, handler, noop.NewTracerProvider().Tracer("test"))
	consumer.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	select {
	case <-reader.drained:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not drain messages")
	}
	cancel()
	require.NoError(t, <-done)
}

func TestReconciliationConsumerHandlesAndCommits(t *testing.T) {
	defer goleak.VerifyNone(t)

	reader := newScriptedReader(eventMessage(t, 1, "ORD-1"), eventMessage(t, 2, "ORD-2"))
	handler := &flakyHandler{}
	runConsumer(t, reader, handler)

	assert.Equal(t, []string{"ORD-1", "ORD-2"}, handler.handled)
	assert.Equal(t, []int64{1, 2}, reader.committed)
}

func TestReconciliationConsumerSkipsMalformedMessages(t *testing.T) {
	defer goleak.VerifyNone(t)

	reader := newScriptedReader(kafka.Message{Offset: 7, Value: []byte("not json")}, eventMessage(t, 8, "ORD-8"))
	handler := &flakyHandler{}
	runConsumer(t, reader, handler)

	assert.Equal(t, []string{"ORD-8"}, handler.handled)
	assert.Equal(t, []int64{7, 8}, reader.committed)
}

func TestReconciliationConsumerRetriesUncommittedOnHandlerFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	msg := eventMessage(t, 3, "ORD-3")
	// 处理失败的消息没有提交，真实的 reader 会在重新拉取时再次返回它
	reader := newScriptedReader(msg, msg)
	reader.fetchErrs = []error{errors.New("broker not available")}
	handler := &flakyHandler{failures: 1}
	runConsumer(t, reader, handler)

	assert.Equal(t, []string{"ORD-3"}, handler.handled)
	assert.Equal(t, []int64{3}, reader.committed)
}

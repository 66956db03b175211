package rabbitmq

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ackRecord struct {
	tag     uint64
	acked   bool
	requeue bool
}

type fakeAcknowledger struct {
	mu      sync.Mutex
	records []ackRecord
	done    chan struct{}
}

func newFakeAcknowledger(expected int) *fakeAcknowledger {
	return &fakeAcknowledger{done: make(chan struct{}, expected)}
}

func (f *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	f.mu.Lock()
	f.records = append(f.records, ackRecord{tag: tag, acked: true})
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	f.mu.Lock()
	f.records = append(f.records, ackRecord{tag: tag, requeue: requeue})
	f.mu.Unlock()
	f.done <- struct{}{}
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func (f *fakeAcknowledger) wait(t *testing.T, n int) {
	t.Helper()
	for range n {
		select {
		case <-f.done:
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for ack/nack")
		}
	}
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConsume_AckNackRequeue(t *testing.T) {
	ack := newFakeAcknowledger(3)
	deliveries := make(chan amqp.Delivery, 3)
	deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte("ok")}
	deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte("fail")}
	deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 3, Body: []byte("fail"), Redelivered: true}
	close(deliveries)

	handler := func(_ context.Context, body []byte) error {
		if string(body) == "fail" {
			return errors.New("boom")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go consume(ctx, deliveries, handler, newNoopLogger())
	ack.wait(t, 3)

	ack.mu.Lock()
	defer ack.mu.Unlock()
	assert.ElementsMatch(t, []ackRecord{
		{tag: 1, acked: true},
		{tag: 2, requeue: true},
		{tag: 3, requeue: false},
	}, ack.records)
}

func TestConsume_StopsOnCancel(t *testing.T) {
	deliveries := make(chan amqp.Delivery)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		consume(ctx, deliveries, func(context.Context, []byte) error { return nil }, newNoopLogger())
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "consume did not stop after cancel")
	}
}

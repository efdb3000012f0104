package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/suPer8Hu/chatcore/internal/chat"
	"github.com/suPer8Hu/chatcore/internal/store/rabbitmq"
)

type fakeAck struct {
	acked   int
	nacked  int
	requeue bool
}

func (f *fakeAck) Ack(uint64, bool) error { f.acked++; return nil }
func (f *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	f.nacked++
	f.requeue = requeue
	return nil
}
func (f *fakeAck) Reject(uint64, bool) error { return nil }

type fakeNamer struct{ err error }

func (f fakeNamer) NameTopic(context.Context, string) error { return f.err }

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func delivery(body string, retries int) amqp.Delivery {
	d := amqp.Delivery{Body: []byte(body)}
	if retries > 0 {
		d.Headers = amqp.Table{rabbitmq.RetryHeader: int32(retries)}
	}
	return d
}

func TestProcess(t *testing.T) {
	boom := errors.New("boom")
	cases := []struct {
		name    string
		body    string
		retries int
		err     error
		acked   int
		nacked  int
		retried bool
	}{
		{name: "ok", body: `{"topic_id":"t1"}`, acked: 1},
		{name: "bad json", body: `{`, nacked: 1},
		{name: "missing topic id", body: `{}`, nacked: 1},
		{name: "topic gone", body: `{"topic_id":"t1"}`, err: chat.ErrNotFound, acked: 1},
		{name: "retry", body: `{"topic_id":"t1"}`, err: boom, acked: 1, retried: true},
		{name: "dead letter", body: `{"topic_id":"t1"}`, retries: maxRetries, err: boom, nacked: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ack := &fakeAck{}
			retried := false
			process(context.Background(), fakeNamer{err: tc.err}, quiet, delivery(tc.body, tc.retries), ack,
				func(amqp.Delivery) error { retried = true; return nil })
			assert.Equal(t, tc.acked, ack.acked)
			assert.Equal(t, tc.nacked, ack.nacked)
			assert.Equal(t, tc.retried, retried)
			assert.False(t, ack.requeue)
		})
	}
}

func TestProcess_RetryPublishFails(t *testing.T) {
	ack := &fakeAck{}
	process(context.Background(), fakeNamer{err: errors.New("boom")}, quiet, delivery(`{"topic_id":"t1"}`, 0), ack,
		func(amqp.Delivery) error { return errors.New("channel closed") })
	assert.Equal(t, 0, ack.acked)
	assert.Equal(t, 1, ack.nacked)
}

func TestProcess_ShutdownRequeues(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ack := &fakeAck{}
	process(ctx, fakeNamer{err: context.Canceled}, quiet, delivery(`{"topic_id":"t1"}`, 0), ack,
		func(amqp.Delivery) error { t.Fatal("unexpected retry"); return nil })
	assert.Equal(t, 1, ack.nacked)
	assert.True(t, ack.requeue)
}

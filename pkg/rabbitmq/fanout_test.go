package rabbitmq

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

type fakeChannel struct {
	mu          sync.Mutex
	declared    []string
	published   []amqp.Publishing
	publishErr  error
	closed      bool
	deliveries  chan amqp.Delivery
	closeNotify chan *amqp.Error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp.Delivery, 8), closeNotify: make(chan *amqp.Error, 1)}
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declared = append(f.declared, name+":"+kind)
	return nil
}

func (f *fakeChannel) QueueDeclare(string, bool, bool, bool, bool, amqp.Table) (Queue, error) {
	return Queue{Name: "amq.gen-test"}, nil
}

func (f *fakeChannel) QueueBind(string, string, string, bool, amqp.Table) error { return nil }

func (f *fakeChannel) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return f.deliveries, nil
}

func (f *fakeChannel) NotifyClose() <-chan *amqp.Error { return f.closeNotify }

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeConnection struct {
	mu       sync.Mutex
	channels []*fakeChannel
	opened   int
}

func (c *fakeConnection) Channel() (Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opened >= len(c.channels) {
		return nil, errors.New("no channel available")
	}
	ch := c.channels[c.opened]
	c.opened++
	return ch, nil
}

func (c *fakeConnection) Close() error   { return nil }
func (c *fakeConnection) IsClosed() bool { return false }

func TestPublisherReusesChannelAndReopensAfterFailure(t *testing.T) {
	first, second := newFakeChannel(), newFakeChannel()
	conn := &fakeConnection{channels: []*fakeChannel{first, second}}
	pub, err := NewPublisher(conn, "cribnosh.changes")
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := pub.Publish(ctx, []byte(`{"n":1}`)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if conn.opened != 1 || len(first.declared) != 1 || first.declared[0] != "cribnosh.changes:fanout" {
		t.Fatalf("expected one channel with one fanout declare, opened=%d declared=%v", conn.opened, first.declared)
	}
	if first.published[0].ContentType != "application/json" {
		t.Fatalf("unexpected content type %q", first.published[0].ContentType)
	}

	first.publishErr = errors.New("channel/connection is not open")
	if err := pub.Publish(ctx, []byte(`{}`)); err == nil {
		t.Fatalf("expected publish error")
	}
	if !first.closed {
		t.Fatalf("failed channel should be closed")
	}
	if err := pub.Publish(ctx, []byte(`{}`)); err != nil {
		t.Fatalf("publish after reopen: %v", err)
	}
	if conn.opened != 2 || len(second.published) != 1 {
		t.Fatalf("expected publish on a fresh channel, opened=%d", conn.opened)
	}
}

func TestSubscriberDeliversAndResubscribes(t *testing.T) {
	first, second := newFakeChannel(), newFakeChannel()
	conn := &fakeConnection{channels: []*fakeChannel{first, second}}
	sub, err := NewSubscriber(conn, "cribnosh.changes", logger.New(logger.Options{Output: io.Discard}))
	if err != nil {
		t.Fatalf("new subscriber: %v", err)
	}
	sub.retryDelay = time.Millisecond

	received := make(chan string, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- sub.Run(ctx, func(_ context.Context, body []byte) error {
			received <- string(body)
			if string(body) == "bad" {
				return errors.New("bad payload")
			}
			return nil
		})
	}()

	first.deliveries <- amqp.Delivery{Body: []byte("bad")}
	first.deliveries <- amqp.Delivery{Body: []byte("one")}
	expect(t, received, "bad")
	expect(t, received, "one")

	first.closeNotify <- &amqp.Error{Code: 320, Reason: "CONNECTION_FORCED"}
	second.deliveries <- amqp.Delivery{Body: []byte("two")}
	expect(t, received, "two")

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context cancellation, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("subscriber did not stop")
	}
}

func expect(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("expected %q got %q", want, got)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

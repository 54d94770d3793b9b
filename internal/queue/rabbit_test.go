package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type stubChannel struct {
	mu         sync.Mutex
	declared   []string
	declareErr error
	failures   int
	published  []amqp.Publishing
	keys       []string
	attempts   int
	closed     bool
}

func (c *stubChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	c.declared = append(c.declared, name+"/"+kind)
	if !durable {
		return errors.New("expected durable exchange")
	}
	return c.declareErr
}

func (c *stubChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.attempts <= c.failures {
		return errors.New("channel busy")
	}
	c.keys = append(c.keys, exchange+":"+key)
	c.published = append(c.published, msg)
	return nil
}

func (c *stubChannel) Close() error {
	c.closed = true
	return nil
}

func fastPublisher(t *testing.T, ch *stubChannel, exchange string) *RabbitPublisher {
	t.Helper()
	p, err := newPublisher(ch, exchange)
	if err != nil {
		t.Fatalf("newPublisher error: %v", err)
	}
	p.baseDelay = time.Millisecond
	p.maxDelay = 2 * time.Millisecond
	return p
}

func TestNewPublisherDefaultsExchange(t *testing.T) {
	t.Parallel()

	ch := &stubChannel{}
	p := fastPublisher(t, ch, "")
	if p.exchange != "jobboard.tasks" {
		t.Fatalf("expected default exchange, got %s", p.exchange)
	}
	if len(ch.declared) != 1 || ch.declared[0] != "jobboard.tasks/topic" {
		t.Fatalf("expected topic exchange declared, got %v", ch.declared)
	}
}

func TestNewPublisherDeclareError(t *testing.T) {
	t.Parallel()

	ch := &stubChannel{declareErr: errors.New("access refused")}
	if _, err := newPublisher(ch, "events"); err == nil {
		t.Fatalf("expected declare error")
	}
	if !ch.closed {
		t.Fatalf("expected channel closed after declare failure")
	}
}

func TestPublishRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	ch := &stubChannel{failures: 2}
	p := fastPublisher(t, ch, "events")

	if err := p.Publish(context.Background(), "task.postnewjob", []byte(`{"task_id":"t1"}`)); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	if ch.attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", ch.attempts)
	}
	if len(ch.keys) != 1 || ch.keys[0] != "events:task.postnewjob" {
		t.Fatalf("unexpected routing %v", ch.keys)
	}
	msg := ch.published[0]
	if msg.ContentType != "application/json" || msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("unexpected publishing %+v", msg)
	}
}

func TestPublishGivesUp(t *testing.T) {
	t.Parallel()

	ch := &stubChannel{failures: 10}
	p := fastPublisher(t, ch, "events")

	if err := p.Publish(context.Background(), "task.editjob", nil); err == nil {
		t.Fatalf("expected error after retries exhausted")
	}
	if ch.attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", ch.attempts)
	}
}

func TestPublishStopsOnCancel(t *testing.T) {
	t.Parallel()

	ch := &stubChannel{failures: 10}
	p := fastPublisher(t, ch, "events")
	p.baseDelay = time.Hour
	p.maxDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Publish(ctx, "task.editjob", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if ch.attempts != 1 {
		t.Fatalf("expected single attempt before cancel, got %d", ch.attempts)
	}
}

func TestCloseWithoutConnection(t *testing.T) {
	t.Parallel()

	ch := &stubChannel{}
	p := fastPublisher(t, ch, "events")
	if err := p.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if !ch.closed {
		t.Fatalf("expected channel closed")
	}
}

// Package queue 将任务事件发布到 RabbitMQ topic exchange。
package queue

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const defaultExchange = "jobboard.tasks"

// channel 为发布所需的 amqp.Channel 能力。
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher 以 topic 作为 routing key 发布 JSON 消息，失败时指数退避重试。
type RabbitPublisher struct {
	conn     *amqp.Connection
	channel  channel
	exchange string

	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// Dial 连接 RabbitMQ 并声明持久化 topic exchange。
func Dial(url, exchange string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	p, err := NewRabbitPublisher(conn, exchange)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return p, nil
}

// NewRabbitPublisher 在已有连接上创建发布者。
func NewRabbitPublisher(conn *amqp.Connection, exchange string) (*RabbitPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	p, err := newPublisher(ch, exchange)
	if err != nil {
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchange string) (*RabbitPublisher, error) {
	if exchange == "" {
		exchange = defaultExchange
	}

	err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &RabbitPublisher{
		channel:     ch,
		exchange:    exchange,
		maxAttempts: 3,
		baseDelay:   200 * time.Millisecond,
		maxDelay:    2 * time.Second,
	}, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	}

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		lastErr = p.channel.PublishWithContext(ctx, p.exchange, topic, false, false, msg)
		if lastErr == nil {
			return nil
		}
		if attempt == p.maxAttempts {
			break
		}

		backoff := p.baseDelay << (attempt - 1)
		if backoff > p.maxDelay {
			backoff = p.maxDelay
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return fmt.Errorf("publish %s: %w", topic, ctx.Err())
		}
	}
	return fmt.Errorf("publish %s after %d attempts: %w", topic, p.maxAttempts, lastErr)
}

// Close 关闭 channel 与连接。
func (p *RabbitPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		return fmt.Errorf("close channel: %w", err)
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

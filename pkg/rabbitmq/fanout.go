package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

const exchangeKind = "fanout"

// Publisher writes JSON messages to a durable fanout exchange over one reused channel.
type Publisher struct {
	conn     Connection
	exchange string

	mu sync.Mutex
	ch Channel
}

func NewPublisher(conn Connection, exchange string) (*Publisher, error) {
	if conn == nil {
		return nil, errors.New("rabbitmq connection required")
	}
	if exchange == "" {
		return nil, errors.New("exchange name required")
	}
	return &Publisher{conn: conn, exchange: exchange}, nil
}

func (p *Publisher) Publish(ctx context.Context, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		ch, err := p.conn.Channel()
		if err != nil {
			return err
		}
		if err := ch.ExchangeDeclare(p.exchange, exchangeKind, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
		}
		p.ch = ch
	}

	err := p.ch.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		// The channel is unusable after a failed publish; reopen on the next call.
		_ = p.ch.Close()
		p.ch = nil
		return fmt.Errorf("publish to %s: %w", p.exchange, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	return err
}

// Handler processes one fanout message body.
type Handler func(ctx context.Context, body []byte) error

// Subscriber binds an exclusive, auto-deleted queue to the fanout exchange so every
// process receives every message.
type Subscriber struct {
	conn       Connection
	exchange   string
	logg       *logger.Logger
	retryDelay time.Duration
}

func NewSubscriber(conn Connection, exchange string, logg *logger.Logger) (*Subscriber, error) {
	if conn == nil {
		return nil, errors.New("rabbitmq connection required")
	}
	if exchange == "" {
		return nil, errors.New("exchange name required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &Subscriber{conn: conn, exchange: exchange, logg: logg, retryDelay: 5 * time.Second}, nil
}

// Run consumes until ctx is cancelled, re-subscribing after channel failures.
// Handler errors are logged and the message is dropped.
func (s *Subscriber) Run(ctx context.Context, handler Handler) error {
	for {
		err := s.consume(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logg.Error(s.logg.WithField(ctx, "exchange", s.exchange), "fanout subscriber disconnected", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryDelay):
		}
	}
}

func (s *Subscriber) consume(ctx context.Context, handler Handler) error {
	ch, err := s.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	closed := ch.NotifyClose()

	if err := ch.ExchangeDeclare(s.exchange, exchangeKind, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", s.exchange, err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", s.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	s.logg.Info(s.logg.WithField(ctx, "exchange", s.exchange), "fanout subscriber started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr != nil {
				return fmt.Errorf("channel closed: %w", amqpErr)
			}
			return errors.New("channel closed")
		case msg, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			if err := handler(ctx, msg.Body); err != nil {
				s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "fanout message dropped")
			}
		}
	}
}

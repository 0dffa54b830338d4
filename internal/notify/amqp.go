package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// session is one broker connection and its publishing channel.
type session struct {
	ch    channel
	close func() error
}

// Publisher publishes notifications to a topic exchange. The routing key is
// the event name, so consumers can bind "booking.*" or "payout.*".
//
// A broker restart closes the channel; the next publish dials again.
type Publisher struct {
	mu       sync.Mutex
	dial     func() (*session, error)
	sess     *session
	exchange string
	logger   *slog.Logger
}

// NewPublisher dials url and declares the exchange. Failing to reach the
// broker here is fatal to the caller; later outages are retried per publish.
func NewPublisher(url, exchange string, logger *slog.Logger) (*Publisher, error) {
	p := newPublisher(func() (*session, error) { return dialSession(url, exchange) }, exchange, logger)
	sess, err := p.dial()
	if err != nil {
		return nil, err
	}
	p.sess = sess
	return p, nil
}

func newPublisher(dial func() (*session, error), exchange string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{dial: dial, exchange: exchange, logger: logger}
}

func dialSession(url, exchange string) (*session, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &session{ch: ch, close: func() error {
		_ = ch.Close()
		return conn.Close()
	}}, nil
}

func (p *Publisher) PublishJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         b,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, p.exchange, key, false, false, msg)
	if !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	// Closed between the check and the publish: one fresh session.
	p.drop()
	if ch, err = p.channel(ctx); err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, p.exchange, key, false, false, msg)
}

// channel returns the open channel, dialing a new session if the current
// one was closed. Callers hold p.mu.
func (p *Publisher) channel(ctx context.Context) (channel, error) {
	if p.sess != nil && !p.sess.ch.IsClosed() {
		return p.sess.ch, nil
	}
	p.drop()
	sess, err := p.dial()
	if err != nil {
		return nil, fmt.Errorf("reconnect: %w", err)
	}
	p.logger.InfoContext(ctx, "rabbitmq session re-established", "exchange", p.exchange)
	p.sess = sess
	return sess.ch, nil
}

func (p *Publisher) drop() {
	if p.sess == nil {
		return
	}
	_ = p.sess.close()
	p.sess = nil
}

// Notify publishes and logs failures instead of returning them.
func (p *Publisher) Notify(ctx context.Context, userID uuid.UUID, event string, payload map[string]any) {
	msg := Message{UserID: userID, Event: event, Payload: payload, OccurredAt: time.Now().UTC()}
	if err := p.PublishJSON(ctx, event, msg); err != nil {
		p.logger.WarnContext(ctx, "notification publish failed", "event", event, "user_id", userID, "error", err)
	}
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sess == nil {
		return nil
	}
	err := p.sess.close()
	p.sess = nil
	return err
}

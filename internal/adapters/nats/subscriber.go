package natsadapter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/namtang/stopmap/internal/core/ports"
)

var _ ports.EventSubscriber = (*Subscriber)(nil)

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn     *nats.Conn
	js       nats.JetStreamContext
	instance string
	subs     []*nats.Subscription
}

// NewSubscriber connects to NATS. instance names the durable consumer, so
// each API instance receives every reload request.
func NewSubscriber(url, instance string) (*Subscriber, error) {
	conn, err := Connect(url)
	if err != nil {
		return nil, err
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js, instance: instance}, nil
}

// SubscribeReloadRequests calls handler for each reload request. Failed
// reloads are redelivered up to three times.
func (s *Subscriber) SubscribeReloadRequests(ctx context.Context, handler func(ctx context.Context) error) error {
	sub, err := s.js.Subscribe(SubjectDatasetReload, func(msg *nats.Msg) {
		if err := handler(ctx); err != nil {
			slog.WarnContext(ctx, "dataset reload failed", "error", err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("reload-"+s.instance),
		nats.ManualAck(),
		nats.MaxDeliver(3),
		nats.DeliverNew(),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}

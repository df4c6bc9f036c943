package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// subjectPrefix roots every Kestrel subject: kestrel.<partition>.<topic>.
const subjectPrefix = "kestrel"

// NATSBus is the Pro tier event bus. Partitions map to subject tokens.
// Global subscribers join a queue group per topic, so each message on the
// topic reaches one worker node rather than all of them.
type NATSBus struct {
	conn *nats.Conn

	mu   sync.Mutex
	subs []*nats.Subscription
}

type natsSubscription struct {
	topic string
	sub   *nats.Subscription
}

// NewNATSBus connects to NATS, retrying up to NATSMaxReconnects times.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	if cfg.NATSUrl == "" {
		cfg.NATSUrl = nats.DefaultURL
	}
	if cfg.NATSMaxReconnects <= 0 {
		cfg.NATSMaxReconnects = 10
	}
	if cfg.NATSReconnectWait <= 0 {
		cfg.NATSReconnectWait = 5
	}
	wait := time.Duration(cfg.NATSReconnectWait) * time.Second

	opts := []nats.Option{
		nats.Name("kestrel"),
		nats.MaxReconnects(cfg.NATSMaxReconnects),
		nats.ReconnectWait(wait),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err, "will_reconnect", !nc.IsClosed())
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			attrs := []any{"error", err}
			if sub != nil {
				attrs = append(attrs, "subject", sub.Subject)
			}
			slog.Error("NATS async error", attrs...)
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}

	var (
		conn *nats.Conn
		err  error
	)
	for attempt := 1; attempt <= cfg.NATSMaxReconnects; attempt++ {
		if conn, err = nats.Connect(cfg.NATSUrl, opts...); err == nil {
			break
		}
		slog.Warn("NATS connection attempt failed", "attempt", attempt, "max_attempts", cfg.NATSMaxReconnects, "error", err)
		if attempt < cfg.NATSMaxReconnects {
			time.Sleep(wait)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: connect to NATS at %s: %v", domain.ErrUpstreamUnavailable, cfg.NATSUrl, err)
	}

	slog.Info("NATS connected", "url", conn.ConnectedUrl(), "server_id", conn.ConnectedServerId())
	return &NATSBus{conn: conn}, nil
}

// Publish wraps payload in a Message envelope and sends it.
func (b *NATSBus) Publish(ctx context.Context, partition string, topic string, payload []byte) error {
	if partition == "" {
		return fmt.Errorf("%w: partition is required", domain.ErrInvalidInput)
	}

	data, err := json.Marshal(newMessage(ctx, partition, topic, payload))
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	subject := subjectFor(partition, topic)
	if err := b.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("%w: publish %s: %v", domain.ErrUpstreamUnavailable, subject, err)
	}
	return nil
}

// Subscribe delivers messages of one partition, or of every partition when
// partition is GlobalPartition.
func (b *NATSBus) Subscribe(ctx context.Context, partition string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if partition == "" {
		return nil, fmt.Errorf("%w: partition is required", domain.ErrInvalidInput)
	}

	deliver := func(m *nats.Msg) {
		var msg domain.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			slog.Error("dropping malformed NATS message", "subject", m.Subject, "error", err)
			return
		}
		if err := handler(ctx, &msg); err != nil {
			slog.Error("handler error",
				"subject", m.Subject,
				"message_id", msg.ID,
				"trace_id", TraceID(&msg),
				"error", err,
			)
		}
	}

	var (
		sub *nats.Subscription
		err error
	)
	if partition == domain.GlobalPartition {
		sub, err = b.conn.QueueSubscribe(subjectPrefix+".*."+topic, subjectPrefix+"-"+topic, deliver)
	} else {
		sub, err = b.conn.Subscribe(subjectFor(partition, topic), deliver)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: subscribe %s: %v", domain.ErrUpstreamUnavailable, topic, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return &natsSubscription{topic: topic, sub: sub}, nil
}

// Ping round-trips to the server.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("%w: NATS not connected", domain.ErrUpstreamUnavailable)
	}
	if err := b.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	return nil
}

// Close unsubscribes everything and closes the connection.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
	b.mu.Unlock()

	b.conn.Close()
	return nil
}

func subjectFor(partition, topic string) string {
	return subjectPrefix + "." + partitionToken(partition) + "." + topic
}

func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

func (s *natsSubscription) Topic() string {
	return s.topic
}

package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"go.opentelemetry.io/otel/trace"
)

// traceIDKey carries the publisher's trace ID in Message.Metadata.
const traceIDKey = "trace_id"

// New creates a new event bus based on configuration.
// For Community tier: returns ChannelBus.
// For Pro tier: returns NATSBus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("%w: unsupported event bus type: %s", domain.ErrInvalidInput, cfg.Type)
	}
}

// newMessage builds the envelope for payload, stamping the caller's trace.
func newMessage(ctx context.Context, partition, topic string, payload []byte) *domain.Message {
	msg := &domain.Message{
		ID:        uuid.New().String(),
		Partition: partition,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		msg.Metadata[traceIDKey] = sc.TraceID().String()
	}
	return msg
}

// TraceID returns the publisher's trace ID recorded on msg, if any.
func TraceID(msg *domain.Message) string {
	return msg.Metadata[traceIDKey]
}

// partitionToken makes a partition key safe for use as a subject token.
func partitionToken(partition string) string {
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(partition)
}

// PublishEvent JSON-encodes event and publishes it to partition.
func PublishEvent(ctx context.Context, b domain.EventBus, partition, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}
	return b.Publish(ctx, partition, topic, payload)
}

// Handle adapts a typed handler to a MessageHandler. A payload that does not
// decode into T fails with ErrInvalidInput before fn runs.
func Handle[T any](fn func(ctx context.Context, msg *domain.Message, event T) error) domain.MessageHandler {
	return func(ctx context.Context, msg *domain.Message) error {
		var event T
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			return fmt.Errorf("%w: decode %s payload: %v", domain.ErrInvalidInput, msg.Topic, err)
		}
		return fn(ctx, msg, event)
	}
}

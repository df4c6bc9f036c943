package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
// Subjects are namespaced by a partition key; the engines use the user ID.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, partition string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, partition string, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Partition string            `json:"partition"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `mapstructure:"type"`

	// Channel settings (Community tier)
	ChannelBufferSize int `mapstructure:"channel_buffer_size"`

	// NATS settings (Pro tier)
	NATSUrl           string `mapstructure:"nats_url"`
	NATSToken         string `mapstructure:"nats_token"`
	NATSMaxReconnects int    `mapstructure:"nats_max_reconnects"`
	NATSReconnectWait int    `mapstructure:"nats_reconnect_wait"` // seconds
}

// GlobalPartition receives every message regardless of user, for workers that
// serve all users.
const GlobalPartition = "_global"

// Standard topic names.
const (
	TopicTransactionIngested = "kestrel.transaction.ingested"
	TopicAlertOpened         = "kestrel.alert.opened"
	TopicAlertResolved       = "kestrel.alert.resolved"
	TopicTransactionRejected = "kestrel.transaction.rejected"
)

// AlertEvent is the payload of alert lifecycle topics.
type AlertEvent struct {
	AlertID       string      `json:"alertId"`
	UserID        string      `json:"userId"`
	TransactionID string      `json:"transactionId,omitempty"`
	Type          string      `json:"type"`
	Severity      Severity    `json:"severity"`
	Status        AlertStatus `json:"status"`
	Resolution    Resolution  `json:"resolution,omitempty"`
	Reason        string      `json:"reason,omitempty"`
}

// RejectionEvent is the payload of TopicTransactionRejected.
type RejectionEvent struct {
	UserID      string             `json:"userId"`
	Transaction TransactionSummary `json:"transaction"`
	Reason      string             `json:"reason"`
}

// Package jobs hands order lifecycle events to the workers that send e-mails and start
// fulfilment.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/oklog/ulid/v2"

	"github.com/spikeboom/love-cosmetics-website-sub000/internal/services"
)

// PubSubOrderPublisher publishes one JSON message per event. Messages of the same order share
// an ordering key, so subscribers see placed before paid.
type PubSubOrderPublisher struct {
	topic *pubsub.Topic
}

func NewPubSubOrderPublisher(topic *pubsub.Topic) (*PubSubOrderPublisher, error) {
	if topic == nil {
		return nil, errors.New("jobs: pubsub topic is required")
	}
	topic.EnableMessageOrdering = true
	return &PubSubOrderPublisher{topic: topic}, nil
}

// PublishOrderEvent blocks until the server assigns a message id.
func (p *PubSubOrderPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("jobs: encode %s: %w", event.Type, err)
	}
	key := strings.TrimSpace(event.OrderID)
	id, err := p.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  attributes(event),
		OrderingKey: key,
	}).Get(ctx)
	if err != nil {
		// A failed ordered publish pauses the key until resumed.
		if key != "" {
			p.topic.ResumePublish(key)
		}
		return "", fmt.Errorf("jobs: publish %s for order %s: %w", event.Type, key, err)
	}
	return id, nil
}

// attributes lets subscriptions filter without decoding the payload.
func attributes(event services.OrderEvent) map[string]string {
	attrs := map[string]string{}
	for name, value := range map[string]string{
		"type":        string(event.Type),
		"orderId":     event.OrderID,
		"orderNumber": event.Number,
		"status":      event.Status,
		"method":      event.Method,
	} {
		if value = strings.TrimSpace(value); value != "" {
			attrs[name] = value
		}
	}
	if event.Courtesy {
		attrs["courtesy"] = strconv.FormatBool(true)
	}
	return attrs
}

// LogOrderPublisher writes events to the event log. Local runs without Pub/Sub use it.
type LogOrderPublisher struct {
	Logger func(ctx context.Context, event string, fields map[string]any)
	Clock  func() time.Time
}

func (p LogOrderPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) (string, error) {
	at := time.Now()
	if p.Clock != nil {
		at = p.Clock()
	}
	id := ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String()
	if p.Logger != nil {
		p.Logger(ctx, "orders.event_published", map[string]any{
			"messageId": id,
			"type":      string(event.Type),
			"orderId":   event.OrderID,
			"status":    event.Status,
			"total":     event.Total,
		})
	}
	return id, nil
}

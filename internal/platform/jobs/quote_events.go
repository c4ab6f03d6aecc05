package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/homequote/api/internal/services"
)

// PubSubQuoteEventPublisher publishes quote lifecycle events to a Pub/Sub topic.
// Events for the same quote share an ordering key so subscribers see them in commit order.
type PubSubQuoteEventPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.QuoteEventPublisher = (*PubSubQuoteEventPublisher)(nil)

type quoteEventPayload struct {
	Type         string    `json:"type"`
	QuoteID      string    `json:"quoteId"`
	OwnerID      string    `json:"ownerUid"`
	State        string    `json:"state,omitempty"`
	MonthlyTotal string    `json:"monthlyTotal,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// NewPubSubQuoteEventPublisher constructs a Pub/Sub backed quote event publisher.
func NewPubSubQuoteEventPublisher(topic *pubsub.Topic) (*PubSubQuoteEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub quote event publisher: topic is required")
	}
	topic.EnableMessageOrdering = true
	return &PubSubQuoteEventPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishQuoteEvent sends the event and waits for the server-assigned message id.
func (p *PubSubQuoteEventPublisher) PublishQuoteEvent(ctx context.Context, event services.QuoteEvent) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub quote event publisher: not initialised")
	}
	quoteID := strings.TrimSpace(event.QuoteID)
	if quoteID == "" {
		return "", errors.New("pubsub quote event publisher: quote id is required")
	}

	data, err := p.marshal(quoteEventPayload{
		Type:         string(event.Type),
		QuoteID:      quoteID,
		OwnerID:      event.OwnerID,
		State:        event.State,
		MonthlyTotal: event.MonthlyTotal,
		OccurredAt:   event.OccurredAt.UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal quote event: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "eventType", string(event.Type))
	setAttr(attrs, "quoteId", quoteID)
	setAttr(attrs, "state", event.State)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		Attributes:  attrs,
		OrderingKey: quoteID,
	})

	id, err := result.Get(ctx)
	if err != nil {
		// A failed ordered publish pauses the key until resumed.
		p.topic.ResumePublish(quoteID)
		return "", fmt.Errorf("publish quote event: %w", err)
	}
	return id, nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

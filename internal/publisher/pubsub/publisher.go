// Package pubsub publishes batch completion events to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type publishFunc func(ctx context.Context, topic string, msg *pubsub.Message) publishResult

// Publisher sends JSON payloads to Pub/Sub topics of one client.
type Publisher struct {
	publish publishFunc
	stop    func()
}

// New creates a Publisher backed by client. Topic handles are created lazily and
// stopped by Close.
func New(client *pubsub.Client) *Publisher {
	var (
		mu     sync.Mutex
		topics = make(map[string]*pubsub.Topic)
	)
	topicFor := func(name string) *pubsub.Topic {
		mu.Lock()
		defer mu.Unlock()
		t, ok := topics[name]
		if !ok {
			t = client.Topic(name)
			topics[name] = t
		}
		return t
	}
	return &Publisher{
		publish: func(ctx context.Context, topic string, msg *pubsub.Message) publishResult {
			return topicFor(topic).Publish(ctx, msg)
		},
		stop: func() {
			mu.Lock()
			defer mu.Unlock()
			for _, t := range topics {
				t.Stop()
			}
		},
	}
}

// Publish marshals the payload to JSON and waits for the server-assigned message ID.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if p == nil || p.publish == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	if topic == "" {
		return "", fmt.Errorf("pubsub topic is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{Data: data, Attributes: map[string]string{}}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(msg.Attributes))

	id, err := p.publish(ctx, topic, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Close flushes and stops every topic handle.
func (p *Publisher) Close() {
	if p != nil && p.stop != nil {
		p.stop()
	}
}

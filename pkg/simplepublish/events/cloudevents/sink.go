// Package cloudevents provides an EventSink that posts lifecycle events to
// an HTTP endpoint in CloudEvents format.
package cloudevents

import (
	"context"
	"fmt"
	"time"

	ce "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/tendant/simple-publish/pkg/simplepublish"
)

const defaultSource = "simplepublish"

// Event types emitted by the sink.
const (
	TypeItemSubmitted       = "com.simplepublish.item.submitted"
	TypeItemStateChanged    = "com.simplepublish.item.state_changed"
	TypeItemPublished       = "com.simplepublish.item.published"
	TypeItemFailed          = "com.simplepublish.item.failed"
	TypeBatchCompleted      = "com.simplepublish.batch.completed"
	TypeBreakerStateChanged = "com.simplepublish.breaker.state_changed"
)

// Sink delivers queue lifecycle events as CloudEvents over HTTP. Delivery
// failures are returned to the caller; the service logs them and moves on,
// so a down receiver never blocks publishing.
type Sink struct {
	client ce.Client
	target string
	source string
}

var _ simplepublish.EventSink = (*Sink)(nil)

// Option configures a Sink.
type Option func(*Sink)

// WithClient overrides the CloudEvents client, mainly for tests.
func WithClient(client ce.Client) Option {
	return func(s *Sink) {
		if client != nil {
			s.client = client
		}
	}
}

// WithSource sets the CloudEvents source attribute (default "simplepublish").
func WithSource(source string) Option {
	return func(s *Sink) {
		if source != "" {
			s.source = source
		}
	}
}

// New creates a Sink posting to the given endpoint URL.
func New(target string, opts ...Option) (*Sink, error) {
	if target == "" {
		return nil, fmt.Errorf("target endpoint is required")
	}

	s := &Sink{
		target: target,
		source: defaultSource,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		client, err := ce.NewClientHTTP()
		if err != nil {
			return nil, fmt.Errorf("failed to create cloudevents client: %w", err)
		}
		s.client = client
	}
	return s, nil
}

// ItemSubmitted implements simplepublish.EventSink.
func (s *Sink) ItemSubmitted(ctx context.Context, item *simplepublish.Item) error {
	return s.send(ctx, TypeItemSubmitted, item.ID.String(), item)
}

// ItemStateChanged implements simplepublish.EventSink.
func (s *Sink) ItemStateChanged(ctx context.Context, item *simplepublish.Item, from, to simplepublish.ItemStatus) error {
	data := struct {
		Item *simplepublish.Item      `json:"item"`
		From simplepublish.ItemStatus `json:"from"`
		To   simplepublish.ItemStatus `json:"to"`
	}{item, from, to}
	return s.send(ctx, TypeItemStateChanged, item.ID.String(), data)
}

// ItemPublished implements simplepublish.EventSink.
func (s *Sink) ItemPublished(ctx context.Context, item *simplepublish.Item) error {
	return s.send(ctx, TypeItemPublished, item.ID.String(), item)
}

// ItemFailed implements simplepublish.EventSink.
func (s *Sink) ItemFailed(ctx context.Context, item *simplepublish.Item, reason string) error {
	data := struct {
		Item   *simplepublish.Item `json:"item"`
		Reason string              `json:"reason"`
	}{item, reason}
	return s.send(ctx, TypeItemFailed, item.ID.String(), data)
}

// BatchCompleted implements simplepublish.EventSink.
func (s *Sink) BatchCompleted(ctx context.Context, result *simplepublish.BatchResult) error {
	return s.send(ctx, TypeBatchCompleted, "", result)
}

// BreakerStateChanged implements simplepublish.EventSink.
func (s *Sink) BreakerStateChanged(ctx context.Context, target string, from, to simplepublish.BreakerState) error {
	data := struct {
		Target string                     `json:"target"`
		From   simplepublish.BreakerState `json:"from"`
		To     simplepublish.BreakerState `json:"to"`
	}{target, from, to}
	return s.send(ctx, TypeBreakerStateChanged, target, data)
}

func (s *Sink) send(ctx context.Context, eventType, subject string, data interface{}) error {
	event := ce.NewEvent()
	event.SetID(uuid.New().String())
	event.SetSource(s.source)
	event.SetType(eventType)
	event.SetTime(time.Now().UTC())
	if subject != "" {
		event.SetSubject(subject)
	}
	if err := event.SetData(ce.ApplicationJSON, data); err != nil {
		return fmt.Errorf("failed to encode event data: %w", err)
	}

	if result := s.client.Send(ce.ContextWithTarget(ctx, s.target), event); ce.IsUndelivered(result) {
		return fmt.Errorf("failed to deliver %s event: %w", eventType, result)
	}
	return nil
}

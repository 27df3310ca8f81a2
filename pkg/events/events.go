// Package events publishes profile change notifications.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/codeGROOVE-dev/codepulse/pkg/profile"
)

// Event types.
const (
	ProfileUpdated   = "profile.updated"
	ProfileDeleted   = "profile.deleted"
	RefreshCompleted = "refresh.completed"
)

// Event is one notification. Handle is empty for refresh.completed.
type Event struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Handle   string           `json:"handle,omitempty"`
	Platform profile.Platform `json:"platform"`
	At       time.Time        `json:"at"`

	// Set on refresh.completed.
	Total   int `json:"total,omitempty"`
	Updated int `json:"updated,omitempty"`
	Failed  int `json:"failed,omitempty"`
	Skipped int `json:"skipped,omitempty"`
}

// New stamps an event with a fresh ID and the current time.
func New(typ, handle string, p profile.Platform) Event {
	return Event{ID: uuid.NewString(), Type: typ, Handle: handle, Platform: p, At: time.Now().UTC()}
}

// Publisher delivers events. Delivery failures never undo the change they describe.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	events []Event
	mu     sync.Mutex
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Close implements Publisher.
func (*Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// messageWriter is the subset of *kafka.Writer used by Kafka.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes JSON events to a topic, keyed by "platform:handle" so that
// events for one record stay on one partition.
type Kafka struct {
	w     messageWriter
	topic string
}

// NewKafka creates a Kafka publisher for brokers and topic.
func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		topic: topic,
	}
}

// Publish implements Publisher.
func (k *Kafka) Publish(ctx context.Context, ev Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := kafka.Message{
		Topic: k.topic,
		Key:   []byte(string(ev.Platform) + ":" + ev.Handle),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish %s: %w", ev.Type, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *Kafka) Close() error { return k.w.Close() }

package notify

import (
	"context"
	"sync"
	"time"

	"github.com/yourorg/photo-gallery/pkg/utils"
)

// EventTypePhotoUploaded is the type of events published after a successful upload.
const EventTypePhotoUploaded = "photo.uploaded"

// UploadedEvent announces a stored photo to downstream consumers (thumbnailers, indexers).
type UploadedEvent struct {
	EventID       string    `json:"event_id"`
	Type          string    `json:"type"`
	Container     string    `json:"container"`
	Name          string    `json:"name"`
	URL           string    `json:"url,omitempty"`
	ContentLength int64     `json:"content_length"`
	RequestID     string    `json:"request_id,omitempty"`
	TraceID       string    `json:"trace_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewUploadedEvent stamps a new event with an ID and the current time.
func NewUploadedEvent(container, name, url string, size int64) UploadedEvent {
	return UploadedEvent{
		EventID:       utils.GenerateUUID(),
		Type:          EventTypePhotoUploaded,
		Container:     container,
		Name:          name,
		URL:           url,
		ContentLength: size,
		OccurredAt:    time.Now().UTC(),
	}
}

// Publisher delivers upload events.
type Publisher interface {
	PublishUploaded(ctx context.Context, event UploadedEvent) error
	Close(ctx context.Context) error
}

// NopPublisher drops every event. It is used when no events queue is configured.
type NopPublisher struct{}

func (NopPublisher) PublishUploaded(context.Context, UploadedEvent) error { return nil }
func (NopPublisher) Close(context.Context) error                          { return nil }

// MemoryPublisher keeps published events in memory for tests.
type MemoryPublisher struct {
	mu       sync.Mutex
	events   []UploadedEvent
	attempts int
	// Err, when set, is returned by every publish.
	Err error
}

// NewMemoryPublisher creates an empty in-memory publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// PublishUploaded records event unless Err is set.
func (m *MemoryPublisher) PublishUploaded(ctx context.Context, event UploadedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempts++
	if m.Err != nil {
		return m.Err
	}
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (m *MemoryPublisher) Events() []UploadedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]UploadedEvent(nil), m.events...)
}

// Attempts reports how many publishes were tried, failed ones included.
func (m *MemoryPublisher) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.attempts
}

// Close implements Publisher.
func (m *MemoryPublisher) Close(context.Context) error { return nil }

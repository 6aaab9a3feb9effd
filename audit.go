package authcore

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/MrEthical07/authcore/internal/ids"
	"github.com/MrEthical07/authcore/store"
)

// AuditEvent is one security-relevant occurrence. Metadata never carries
// plaintext secrets.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	AccountID string            `json:"account_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives audit events from the dispatcher. A returned error makes
// the dispatcher retry the event.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent) error
}

// NoOpSink discards every event.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, AuditEvent) error { return nil }

// ChannelSink forwards events to a buffered channel.
type ChannelSink struct {
	events chan AuditEvent
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) error {
	select {
	case s.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(_ context.Context, event AuditEvent) error {
	if s == nil || s.writer == nil {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.writer.Write(data)
	return err
}

// StoreSink appends events to the persistent audit log.
type StoreSink struct {
	log store.AuditLog
}

func NewStoreSink(log store.AuditLog) *StoreSink {
	return &StoreSink{log: log}
}

func (s *StoreSink) Emit(ctx context.Context, event AuditEvent) error {
	detail := make(map[string]string, len(event.Metadata)+1)
	for k, v := range event.Metadata {
		detail[k] = v
	}
	if event.SessionID != "" {
		detail["session_id"] = event.SessionID
	}

	return s.log.AppendAudit(ctx, store.AuditEntry{
		ID:        ids.NewULID(event.Timestamp),
		Timestamp: event.Timestamp,
		AccountID: event.AccountID,
		Kind:      event.EventType,
		Success:   event.Success,
		Reason:    event.Error,
		Origin:    event.IP,
		UserAgent: event.UserAgent,
		Detail:    detail,
	})
}

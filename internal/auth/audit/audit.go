// Package audit defines the security event sink consumed by the auth core.
// Emitting is fire-and-forget: a sink must never block or fail a request.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the core.
const (
	EventLoginSucceeded      = "login_succeeded"
	EventLoginFailed         = "login_failed"
	EventSecondFactorFailed  = "second_factor_failed"
	EventRefreshRotated      = "refresh_rotated"
	EventRefreshReplay       = "refresh_replay_detected"
	EventSessionsRevoked     = "sessions_revoked"
	EventTwoFactorEnabled    = "two_factor_enabled"
	EventTwoFactorDisabled   = "two_factor_disabled"
	EventPasswordChanged     = "password_changed"
	EventBackupCodeConsumed  = "backup_code_consumed"
	EventBackupCodesReissued = "backup_codes_reissued"
)

// Event is one structured security event.
type Event struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Type      string            `json:"type"`
	AccountID string            `json:"account_id,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewEvent stamps an event with an ID and the current time.
func NewEvent(eventType, accountID, clientIP string, metadata map[string]string) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		AccountID: accountID,
		ClientIP:  clientIP,
		Metadata:  metadata,
	}
}

// Sink receives security events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoopSink discards everything.
type NoopSink struct{}

func (NoopSink) Emit(context.Context, Event) {}

// SlogSink writes events through the structured logger. This is the default
// sink; deployments wanting a dedicated audit pipeline inject their own.
type SlogSink struct {
	Logger *slog.Logger
}

func (s SlogSink) Emit(_ context.Context, event Event) {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Info("audit_event",
		"event_id", event.ID,
		"event_type", event.Type,
		"account_id", event.AccountID,
		"client_ip", event.ClientIP,
		"metadata", event.Metadata,
	)
}

// ChannelSink buffers events on a channel, mainly for tests to assert on.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	default:
		// Full buffer drops the event rather than blocking the request.
	}
}

func (s *ChannelSink) Events() <-chan Event { return s.events }

// Drain returns everything currently buffered without blocking.
func (s *ChannelSink) Drain() []Event {
	var out []Event
	for {
		select {
		case e := <-s.events:
			out = append(out, e)
		default:
			return out
		}
	}
}

// Package notify delivers fire-and-forget notification events to the
// owning local user. Actual rendering/delivery is an external concern;
// this subsystem only emits structured events.
package notify

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// Kind classifies a notification event.
type Kind string

const (
	KindIntroReceived    Kind = "intro_received"
	KindConfirmCompleted Kind = "confirm_completed"
)

// Event is a structured notification for a local user.
type Event struct {
	Kind      Kind
	UserID    uuid.UUID
	ContactID uuid.UUID
	Message   string
}

// Notifier delivers events. Implementations must not block the
// handshake; failures are swallowed.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Log is a Notifier that records events to the structured log. It stands
// in until a real delivery channel (mail, UI) is attached.
type Log struct{ log *zap.Logger }

// NewLog constructs a log-backed notifier.
func NewLog(log *zap.Logger) *Log { return &Log{log: log} }

// Notify logs the event.
func (l *Log) Notify(_ context.Context, ev Event) {
	l.log.Info("notification",
		zap.String("kind", string(ev.Kind)),
		zap.String("user_id", ev.UserID.String()),
		zap.String("contact_id", ev.ContactID.String()),
		zap.String("message", ev.Message),
	)
}

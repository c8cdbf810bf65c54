package session

import (
	"context"

	"go.uber.org/zap"
)

// Event types recorded by a Manager.
const (
	EventLogin            = "login"
	EventLogout           = "logout"
	EventIdentityMismatch = "identity_mismatch"
	EventCorruptSession   = "corrupt_session"
)

// Event describes a session lifecycle change of one browser.
type Event struct {
	ClientHash string
	Variant    string
	Type       string
	SubjectID  int64
	Detail     string
}

// EventRecorder keeps an audit trail of session events. Recording failures
// are handled by the recorder and never fail a session operation.
type EventRecorder interface {
	Record(ctx context.Context, e Event)
}

// LogRecorder writes events to the logger only.
type LogRecorder struct {
	Logger *zap.SugaredLogger
}

func (r LogRecorder) Record(_ context.Context, e Event) {
	if r.Logger == nil {
		return
	}
	r.Logger.Infow("Session event",
		"client", e.ClientHash,
		"variant", e.Variant,
		"type", e.Type,
		"subject_id", e.SubjectID,
		"detail", e.Detail,
	)
}

// Package notify provides the concrete engine.NotificationDispatcher
// backends: a structured-log dispatcher for development and a Notion
// dispatcher that posts notifications as pages in a shared database.
package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/dvloznov/savings-autopilot/internal/engine"
)

// LogDispatcher writes notifications to the structured log. Used in
// development and as a fallback when no external channel is configured.
type LogDispatcher struct {
	log zerolog.Logger
}

// NewLogDispatcher creates a dispatcher writing to log.
func NewLogDispatcher(log zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

// Notify implements engine.NotificationDispatcher.
func (d *LogDispatcher) Notify(ctx context.Context, userID, kind, title, message string, data map[string]interface{}) error {
	d.log.Info().
		Str("user_id", userID).
		Str("kind", kind).
		Str("title", title).
		Str("message", message).
		Fields(data).
		Msg("Notification")
	return nil
}

var _ engine.NotificationDispatcher = (*LogDispatcher)(nil)

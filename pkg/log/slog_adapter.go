package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes lifecycle events to an slog.Logger.
// Useful for development when you want to see events in the console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("session_id", event.SessionID),
		slog.String("category", event.Category.String()),
	}

	if event.DeviceName != "" {
		attrs = append(attrs, slog.String("device", event.DeviceName))
	}

	switch {
	case event.Network != nil:
		attrs = append(attrs,
			slog.String("base", string(event.Network.Base)),
			slog.String("event", event.Network.Name()),
		)
		if event.Network.Addr != "" {
			attrs = append(attrs, slog.String("addr", event.Network.Addr))
		}
		if event.Network.SSID != "" {
			attrs = append(attrs, slog.String("ssid", event.Network.SSID))
		}
		if event.Network.Reason != nil {
			attrs = append(attrs, slog.Uint64("reason", uint64(*event.Network.Reason)))
		}
	case event.Command != nil:
		attrs = append(attrs, slog.String("command", event.Command.Command))
		if event.Command.Arg != "" {
			attrs = append(attrs, slog.String("arg", event.Command.Arg))
		}
		if event.Command.Err != "" {
			attrs = append(attrs, slog.String("error", event.Command.Err))
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
			slog.Bool("fatal", event.Error.Fatal),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "lifecycle", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)

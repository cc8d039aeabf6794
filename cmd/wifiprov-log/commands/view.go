// Package commands implements the wifiprov-log CLI commands.
package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/wifiprov/wifiprov-go/pkg/event"
	"github.com/wifiprov/wifiprov-go/pkg/log"
)

const timestampLayout = "2006-01-02T15:04:05.000000Z"

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, ev log.Event) {
	// Header line: timestamp [sess:id] CATEGORY Type
	ts := ev.Timestamp.UTC().Format(timestampLayout)
	fmt.Fprintf(w, "%s [sess:%s] %-7s %s\n", ts, shortenID(ev.SessionID), ev.Category.String(), eventType(ev))

	switch {
	case ev.Network != nil:
		formatNetworkDetails(w, ev.Network)
	case ev.Command != nil:
		formatCommandDetails(w, ev.Command)
	case ev.StateChange != nil:
		formatStateChangeDetails(w, ev.StateChange)
	case ev.Error != nil:
		formatErrorDetails(w, ev.Error)
	}

	fmt.Fprintln(w) // Blank line between events
}

// eventType returns the label shown in the header line.
func eventType(ev log.Event) string {
	switch {
	case ev.Network != nil:
		return string(ev.Network.Base) + "/" + ev.Network.Name()
	case ev.Command != nil:
		return ev.Command.Command
	case ev.StateChange != nil:
		return ev.StateChange.Entity.String()
	case ev.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// shortenID returns the first 8 characters of a session ID.
func shortenID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatNetworkDetails(w io.Writer, n *log.NetworkEvent) {
	if n.SSID != "" {
		fmt.Fprintf(w, "  SSID: %s\n", n.SSID)
	}
	if n.Addr != "" {
		fmt.Fprintf(w, "  Address: %s\n", n.Addr)
	}
	if n.Reason != nil {
		fmt.Fprintf(w, "  Reason: %d\n", *n.Reason)
	}
}

func formatCommandDetails(w io.Writer, c *log.CommandEvent) {
	if c.Arg != "" {
		fmt.Fprintf(w, "  Arg: %s\n", c.Arg)
	}
	if c.Err != "" {
		fmt.Fprintf(w, "  Failed: %s\n", c.Err)
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, e *log.ErrorEventData) {
	fmt.Fprintf(w, "  Message: %s\n", e.Message)
	if e.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", e.Context)
	}
	if e.Fatal {
		fmt.Fprintln(w, "  Fatal: yes")
	}
}

// ParseCategoryFlag parses a category string from command-line flag (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "network":
		return log.CategoryNetwork, nil
	case "command":
		return log.CategoryCommand, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be network, command, state, or error)", s)
	}
}

// ParseBaseFlag parses an event base from command-line flag (case-insensitive).
func ParseBaseFlag(s string) (event.Base, error) {
	switch strings.ToLower(s) {
	case "wifi":
		return event.BaseWiFi, nil
	case "ip":
		return event.BaseIP, nil
	case "prov":
		return event.BaseProvisioning, nil
	default:
		return "", fmt.Errorf("invalid base: %s (must be wifi, ip, or prov)", s)
	}
}

// RunView executes the view command.
func RunView(path string, filter log.Filter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		ev, err := reader.Next()
		if err == io.EOF {
			break
		}
		if errors.Is(err, log.ErrTruncated) {
			fmt.Fprintln(output, "(log ends with a partial event)")
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, ev)
	}

	return nil
}

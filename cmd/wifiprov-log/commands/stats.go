package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/wifiprov/wifiprov-go/pkg/log"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents      int
	EventsByCategory map[log.Category]int
	Sessions         map[string]*SessionStats
	Errors           int
	TimeRange        struct {
		Start time.Time
		End   time.Time
	}
}

// SessionStats holds statistics for one lifecycle module session.
type SessionStats struct {
	FirstSeen   time.Time
	LastSeen    time.Time
	Events      int
	DeviceName  string
	Connects    int
	Disconnects int
	Provisioned bool

	// FirstAddr is when the first address was acquired, zero if never.
	FirstAddr time.Time
}

// TimeToConnect returns how long the session took to acquire its first
// address, or zero if it never did.
func (s *SessionStats) TimeToConnect() time.Duration {
	if s.FirstAddr.IsZero() {
		return 0
	}
	return s.FirstAddr.Sub(s.FirstSeen)
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := collectStats(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func collectStats(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByCategory: make(map[log.Category]int),
		Sessions:         make(map[string]*SessionStats),
	}

	for {
		ev, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}

		stats.TotalEvents++
		stats.EventsByCategory[ev.Category]++

		if stats.TimeRange.Start.IsZero() || ev.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = ev.Timestamp
		}
		if ev.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = ev.Timestamp
		}

		sess, ok := stats.Sessions[ev.SessionID]
		if !ok {
			sess = &SessionStats{FirstSeen: ev.Timestamp, LastSeen: ev.Timestamp}
			stats.Sessions[ev.SessionID] = sess
		}
		sess.Events++
		if ev.Timestamp.After(sess.LastSeen) {
			sess.LastSeen = ev.Timestamp
		}
		if ev.DeviceName != "" && sess.DeviceName == "" {
			sess.DeviceName = ev.DeviceName
		}

		switch {
		case ev.Command != nil && ev.Command.Command == "connect":
			sess.Connects++
		case ev.Network != nil && ev.Network.Name() == "STA_DISCONNECTED":
			sess.Disconnects++
		case ev.StateChange != nil:
			sc := ev.StateChange
			if sc.Entity == log.StateEntityProvisioning && sc.NewState == "ENDED" {
				sess.Provisioned = true
			}
			if sc.Entity == log.StateEntityConnection && sc.NewState == "CONNECTED" && sess.FirstAddr.IsZero() {
				sess.FirstAddr = ev.Timestamp
			}
		case ev.Error != nil:
			stats.Errors++
		}
	}

	return stats, nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== WiFi Lifecycle Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryNetwork, log.CategoryCommand, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Sessions: %d\n", len(stats.Sessions))
	if len(stats.Sessions) > 0 {
		type sessInfo struct {
			id    string
			stats *SessionStats
		}
		sessions := make([]sessInfo, 0, len(stats.Sessions))
		for id, ss := range stats.Sessions {
			sessions = append(sessions, sessInfo{id, ss})
		}
		sort.Slice(sessions, func(i, j int) bool {
			return sessions[i].stats.FirstSeen.Before(sessions[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, s := range sessions {
			duration := s.stats.LastSeen.Sub(s.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenID(s.id), s.stats.Events, duration)
			if s.stats.DeviceName != "" {
				fmt.Fprintf(w, "           Device: %s\n", s.stats.DeviceName)
			}
			if s.stats.Provisioned {
				fmt.Fprintln(w, "           Provisioned: yes")
			}
			fmt.Fprintf(w, "           Connect attempts: %d (disconnects: %d)\n", s.stats.Connects, s.stats.Disconnects)
			if !s.stats.FirstAddr.IsZero() {
				fmt.Fprintf(w, "           Time to connect: %s\n", s.stats.TimeToConnect().Round(time.Millisecond))
			} else {
				fmt.Fprintln(w, "           Time to connect: never")
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}

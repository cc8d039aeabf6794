package log

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wifiprov/wifiprov-go/pkg/event"
)

func writeEvents(t *testing.T, events ...Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.wlog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	for _, ev := range events {
		logger.Log(ev)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return path
}

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	defer r.Close()
	var out []Event
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		out = append(out, ev)
	}
}

func TestFilteredReader(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	path := writeEvents(t,
		Event{Timestamp: base, SessionID: "a", Category: CategoryNetwork,
			Network: &NetworkEvent{Base: event.BaseWiFi, ID: event.WiFiStaStart}},
		Event{Timestamp: base.Add(time.Second), SessionID: "a", Category: CategoryCommand,
			Command: &CommandEvent{Command: "connect"}},
		Event{Timestamp: base.Add(2 * time.Second), SessionID: "b", Category: CategoryNetwork,
			Network: &NetworkEvent{Base: event.BaseIP, ID: event.IPStaGotIP, Addr: "10.0.0.5"}},
		Event{Timestamp: base.Add(3 * time.Second), SessionID: "b", Category: CategoryState,
			StateChange: &StateChangeEvent{Entity: StateEntityConnection, NewState: "CONNECTED"}},
	)

	t.Run("All", func(t *testing.T) {
		r, err := NewReader(path)
		if err != nil {
			t.Fatalf("NewReader failed: %v", err)
		}
		if got := len(readAll(t, r)); got != 4 {
			t.Errorf("got %d events, want 4", got)
		}
	})

	t.Run("Session", func(t *testing.T) {
		r, err := NewFilteredReader(path, Filter{SessionID: "b"})
		if err != nil {
			t.Fatalf("NewFilteredReader failed: %v", err)
		}
		if got := len(readAll(t, r)); got != 2 {
			t.Errorf("got %d events, want 2", got)
		}
	})

	t.Run("Category", func(t *testing.T) {
		c := CategoryNetwork
		r, err := NewFilteredReader(path, Filter{Category: &c})
		if err != nil {
			t.Fatalf("NewFilteredReader failed: %v", err)
		}
		if got := len(readAll(t, r)); got != 2 {
			t.Errorf("got %d events, want 2", got)
		}
	})

	t.Run("Base", func(t *testing.T) {
		r, err := NewFilteredReader(path, Filter{Base: event.BaseIP})
		if err != nil {
			t.Fatalf("NewFilteredReader failed: %v", err)
		}
		events := readAll(t, r)
		if len(events) != 1 || events[0].Network.Addr != "10.0.0.5" {
			t.Errorf("events = %+v", events)
		}
	})

	t.Run("TimeWindow", func(t *testing.T) {
		start := base.Add(time.Second)
		end := base.Add(3 * time.Second)
		r, err := NewFilteredReader(path, Filter{TimeStart: &start, TimeEnd: &end})
		if err != nil {
			t.Fatalf("NewFilteredReader failed: %v", err)
		}
		if got := len(readAll(t, r)); got != 2 {
			t.Errorf("got %d events, want 2", got)
		}
	})
}

func TestReaderMissingFile(t *testing.T) {
	if _, err := NewReader(filepath.Join(t.TempDir(), "nope.wlog")); err == nil {
		t.Error("NewReader succeeded for a missing file")
	}
}

func TestReaderTruncatedTail(t *testing.T) {
	ev := Event{SessionID: "s", Category: CategoryState, StateChange: &StateChangeEvent{NewState: "CONNECTING"}}
	path := writeEvents(t, ev, ev)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if err := os.WriteFile(path, data[:len(data)-3], 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	if _, err := r.Next(); err != nil {
		t.Fatalf("first event: %v", err)
	}
	if _, err := r.Next(); !errors.Is(err, ErrTruncated) {
		t.Errorf("Next() error = %v, want ErrTruncated", err)
	}
}

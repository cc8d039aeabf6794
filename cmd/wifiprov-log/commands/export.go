package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/wifiprov/wifiprov-go/pkg/log"
)

// RunExport exports the log file to the specified format.
func RunExport(path, format, output string) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		ev, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(ev); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "session_id", "device", "category", "type", "addr", "ssid", "reason", "detail"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		ev, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		var addr, ssid, reason, detail string
		switch {
		case ev.Network != nil:
			addr = ev.Network.Addr
			ssid = ev.Network.SSID
			if ev.Network.Reason != nil {
				reason = strconv.Itoa(int(*ev.Network.Reason))
			}
		case ev.Command != nil:
			detail = ev.Command.Arg
			if ev.Command.Err != "" {
				detail = ev.Command.Err
			}
		case ev.StateChange != nil:
			detail = ev.StateChange.OldState + "->" + ev.StateChange.NewState
			reason = ev.StateChange.Reason
		case ev.Error != nil:
			detail = ev.Error.Message
			reason = ev.Error.Context
		}

		row := []string{
			ev.Timestamp.UTC().Format(timestampLayout),
			ev.SessionID,
			ev.DeviceName,
			ev.Category.String(),
			eventType(ev),
			addr,
			ssid,
			reason,
			detail,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return nil
}

package eventlog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cycletrack/internal/event"
)

// CSV layout used by import and export:
//
//	tracker_id,event,dev_name,points,reason,extended_reason,created_at
//	1234567,start,Dev One,2,,,1460469660
//	1234567,block,Dev One,,BUG,flaky login,1460473260
//
// Columns are matched by header name, so order may vary and optional columns
// may be omitted. created_at accepts epoch seconds or "2006-01-02 15:04:05"
// in local time.
var csvColumns = []string{
	"tracker_id", "event", "dev_name", "points", "reason", "extended_reason", "created_at",
}

// requiredColumns must be present in an imported file.
var requiredColumns = []string{"tracker_id", "event", "created_at"}

const csvTimeLayout = "2006-01-02 15:04:05"

// ReadCSVFile reads events from a CSV file.
func ReadCSVFile(path string, catalog *event.Catalog) ([]event.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event file: %w", err)
	}
	defer f.Close()

	return ReadCSV(f, catalog)
}

// ReadCSV parses events from r in file order. Every event kind must be
// registered in catalog (nil selects [event.Default]).
func ReadCSV(r io.Reader, catalog *event.Catalog) ([]event.Event, error) {
	if catalog == nil {
		catalog = event.Default
	}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read event file header: %w", err)
	}

	colIndex := buildColumnIndex(header)
	if err := validateColumns(colIndex); err != nil {
		return nil, err
	}

	var events []event.Event
	lineNum := 1
	for {
		lineNum++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event file line %d: %w", lineNum, err)
		}

		e, err := parseRecord(record, colIndex, catalog)
		if err != nil {
			return nil, fmt.Errorf("event file line %d: %w", lineNum, err)
		}
		events = append(events, e)
	}
	return events, nil
}

func parseRecord(record []string, colIndex map[string]int, catalog *event.Catalog) (event.Event, error) {
	e := event.Event{
		TrackerID:      getField(record, colIndex, "tracker_id"),
		Developer:      getField(record, colIndex, "dev_name"),
		Reason:         getField(record, colIndex, "reason"),
		ExtendedReason: getField(record, colIndex, "extended_reason"),
	}
	if e.TrackerID == "" {
		return event.Event{}, fmt.Errorf("tracker_id is required")
	}

	kind, err := catalog.Parse(getField(record, colIndex, "event"))
	if err != nil {
		return event.Event{}, err
	}
	e.Kind = kind

	if p := getField(record, colIndex, "points"); p != "" {
		d, err := decimal.NewFromString(p)
		if err != nil {
			return event.Event{}, fmt.Errorf("invalid points %q: %w", p, err)
		}
		e.Points = decimal.NewNullDecimal(d)
	}

	at, err := parseCreatedAt(getField(record, colIndex, "created_at"))
	if err != nil {
		return event.Event{}, err
	}
	e.CreatedAt = at
	return e, nil
}

func parseCreatedAt(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("created_at is required")
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0), nil
	}
	t, err := time.ParseInLocation(csvTimeLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid created_at %q", s)
	}
	return t, nil
}

func buildColumnIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.TrimSpace(strings.ToLower(col))] = i
	}
	return index
}

func validateColumns(colIndex map[string]int) error {
	for _, col := range requiredColumns {
		if _, ok := colIndex[col]; !ok {
			return fmt.Errorf("event file missing required column: %s", col)
		}
	}
	return nil
}

func getField(record []string, colIndex map[string]int, column string) string {
	idx, ok := colIndex[column]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// WriteCSV writes events to w with a header row. created_at is written as
// epoch seconds so that files round-trip exactly.
func WriteCSV(w io.Writer, events []event.Event) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvColumns); err != nil {
		return err
	}
	for _, e := range events {
		points := ""
		if e.Points.Valid {
			points = e.Points.Decimal.String()
		}
		row := []string{
			e.TrackerID,
			string(e.Kind),
			e.Developer,
			points,
			e.Reason,
			e.ExtendedReason,
			strconv.FormatInt(e.CreatedAt.Unix(), 10),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Import appends events to s in order and returns how many were written.
// It stops at the first failure.
func Import(ctx context.Context, s Store, events []event.Event) (int, error) {
	for i, e := range events {
		if _, err := s.Append(ctx, e); err != nil {
			return i, err
		}
	}
	return len(events), nil
}

package model

import "fmt"

// Normalize maps one decoded record onto an Event.
//
// The comment is read from extendedProps.commentaire. Missing or null keys
// become empty strings; incomplete records are not rejected here.
func Normalize(record map[string]any) Event {
	e := Event{
		ID:              stringField(record, "id"),
		Start:           stringField(record, "start"),
		End:             stringField(record, "end"),
		Title:           stringField(record, "title"),
		ClassName:       stringField(record, "className"),
		BackgroundColor: stringField(record, "backgroundColor"),
	}
	if props, ok := record["extendedProps"].(map[string]any); ok {
		e.Comment = stringField(props, "commentaire")
	}
	return e
}

// NormalizeAll normalizes every record, preserving order.
func NormalizeAll(records []map[string]any) []Event {
	events := make([]Event, 0, len(records))
	for _, r := range records {
		events = append(events, Normalize(r))
	}
	return events
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		// JSON numbers and booleans, e.g. a numeric id.
		return fmt.Sprint(v)
	}
}

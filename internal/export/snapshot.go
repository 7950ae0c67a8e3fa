package export

import (
	"encoding/json"
	"io"

	"gestescal/internal/model"
)

// WriteJSON dumps events as an indented JSON array. HTML in comments is kept
// verbatim (no < escaping) so the file stays readable.
func WriteJSON(events []model.Event, path string) error {
	if events == nil {
		events = []model.Event{}
	}
	return writeFileAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "    ")
		return enc.Encode(events)
	})
}

// WriteRaw stores body as-is, e.g. a rejected login page kept for inspection.
func WriteRaw(body []byte, path string) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		_, err := w.Write(body)
		return err
	})
}

package export

import (
	"encoding/csv"
	"io"

	"gestescal/internal/model"
)

// CSVHeader is the first row of the schedule table.
var CSVHeader = []string{"ID", "Title", "Start", "End", "Comment", "BackgroundColor"}

// WriteCSV writes one row per event, in input order, to path.
func WriteCSV(events []model.Event, path string) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		return encodeCSV(w, events)
	})
}

func encodeCSV(w io.Writer, events []model.Event) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, e := range events {
		row := []string{e.ID, e.Title, e.Start, e.End, e.Comment, e.BackgroundColor}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

package export

import (
	"bytes"
	"errors"
	"io"
	"os"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	appLog "gestescal/internal/log"
	"gestescal/internal/model"
)

const productID = "-//gestescal//GESTES schedule//FR"

// uidNamespace seeds the name-based UIDs so a portal event keeps the same UID
// across refreshes and calendar clients update it in place.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://www.gestes.info/gestes"))

// CalendarWriter renders events as an iCalendar subscription file.
type CalendarWriter struct {
	// Name is published as X-WR-CALNAME.
	Name string
	// Location is written on every entry; the portal has no room data.
	Location string
	// Shift is added to start and end. The portal's wall-clock times are
	// written as UTC after this correction (default -1h).
	Shift time.Duration
	// Now stamps DTSTAMP; time.Now when nil.
	Now func() time.Time
}

// Write renders events to path and returns how many entries were written.
// Events whose start or end cannot be parsed are skipped and logged.
func (cw CalendarWriter) Write(events []model.Event, path string) (int, error) {
	cal, written := cw.build(events)
	err := writeFileAtomic(path, func(w io.Writer) error {
		return cal.SerializeTo(w)
	})
	if err != nil {
		return 0, err
	}
	appLog.Info("calendar written", "path", path, "name", cw.Name, "entries", written, "skipped", len(events)-written)
	return written, nil
}

func (cw CalendarWriter) build(events []model.Event) (*ical.Calendar, int) {
	now := time.Now
	if cw.Now != nil {
		now = cw.Now
	}
	stamp := now().UTC()

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if cw.Name != "" {
		cal.SetXWRCalName(cw.Name)
	}

	written := 0
	for _, ev := range events {
		start, err := ev.StartTime()
		if err != nil {
			appLog.Warn("calendar entry skipped", "id", ev.ID, "field", "start", "err", err)
			continue
		}
		end, err := ev.EndTime()
		if err != nil {
			appLog.Warn("calendar entry skipped", "id", ev.ID, "field", "end", "err", err)
			continue
		}

		ve := cal.AddEvent(EventUID(ev.ID))
		ve.SetDtStampTime(stamp)
		ve.SetStartAt(start.Add(cw.Shift))
		ve.SetEndAt(end.Add(cw.Shift))
		ve.SetSummary(ev.Title)
		ve.SetDescription(ev.Comment)
		ve.SetLocation(cw.Location)
		written++
	}
	return cal, written
}

// EventUID derives a stable UID from a portal event ID. Events without an ID
// get a random one.
func EventUID(id string) string {
	if id == "" {
		return uuid.New().String()
	}
	return uuid.NewSHA1(uidNamespace, []byte(id)).String()
}

// Entry is a VEVENT read back from a published calendar file. Text values are
// returned as stored, RFC 5545 escaping included.
type Entry struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

// ReadCalendar parses a published calendar file.
func ReadCalendar(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCalendar(data)
}

// ParseCalendar parses an iCalendar payload into entries. A VEVENT without a
// UID is skipped.
func ParseCalendar(body []byte) ([]Entry, error) {
	if len(body) == 0 {
		return nil, errors.New("export: empty calendar")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0)
	for _, ve := range cal.Events() {
		uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
		if uidProp == nil || uidProp.Value == "" {
			continue
		}
		e := Entry{UID: uidProp.Value}
		if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
			e.Summary = p.Value
		}
		if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
			e.Description = p.Value
		}
		if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
			e.Location = p.Value
		}
		e.Start, _ = ve.GetStartAt()
		e.End, _ = ve.GetEndAt()
		entries = append(entries, e)
	}
	return entries, nil
}

package portal

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// calendarMarker identifies the script that initializes the calendar widget.
const calendarMarker = "FullCalendar.Calendar"

// eventsPattern captures the events array up to the first "]," that follows.
// The match is non-greedy, so a "]," inside the array would truncate it.
var eventsPattern = regexp.MustCompile(`(?s)events: (\[.*?\]),`)

// ExtractEventsBlock returns the raw text of the events array embedded in the
// first script that mentions FullCalendar.Calendar.
func ExtractEventsBlock(page string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", err
	}

	var script string
	found := false
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		if strings.Contains(text, calendarMarker) {
			script = text
			found = true
			return false
		}
		return true
	})
	if !found {
		return "", ErrMarkerNotFound
	}

	m := eventsPattern.FindStringSubmatch(script)
	if m == nil {
		return "", ErrEventsBlockNotFound
	}
	return m[1], nil
}

// extractToken reads the value of the login form's _csrfToken input.
func extractToken(page string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", err
	}
	token, ok := doc.Find(`input[name="_csrfToken"]`).First().Attr("value")
	if !ok || token == "" {
		return "", ErrTokenNotFound
	}
	return token, nil
}

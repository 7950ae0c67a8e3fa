package model

// Category is the kind of an event, derived from its background color.
type Category string

const (
	Course Category = "course"
	Exam   Category = "exam"
)

// DefaultExamColor is the backgroundColor the portal uses for exams once the
// multi-line value has been collapsed. The spacing is significant.
const DefaultExamColor = "rgb(255, 0 ,0)"

// Classifier partitions events by exact backgroundColor match.
// No color parsing is done: "rgb(255, 0, 0)" and "rgb(255, 0 ,0)" differ.
type Classifier struct {
	ExamColor string
}

// NewClassifier returns a Classifier for examColor, or DefaultExamColor if
// examColor is empty.
func NewClassifier(examColor string) Classifier {
	if examColor == "" {
		examColor = DefaultExamColor
	}
	return Classifier{ExamColor: examColor}
}

// Category returns Exam iff e.BackgroundColor equals ExamColor.
func (c Classifier) Category(e Event) Category {
	if e.BackgroundColor == c.ExamColor {
		return Exam
	}
	return Course
}

// Split returns courses and exams, each preserving input order. Both slices
// are non-nil.
func (c Classifier) Split(events []Event) (courses, exams []Event) {
	courses = make([]Event, 0, len(events))
	exams = make([]Event, 0)
	for _, e := range events {
		if c.Category(e) == Exam {
			exams = append(exams, e)
		} else {
			courses = append(courses, e)
		}
	}
	return courses, exams
}

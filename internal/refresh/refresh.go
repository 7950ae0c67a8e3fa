// Package refresh runs the fetch, repair, classify and publish cycle, either
// on a schedule or on demand, and keeps the result of the last good cycle.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"gestescal/internal/config"
	"gestescal/internal/export"
	appLog "gestescal/internal/log"
	"gestescal/internal/model"
	"gestescal/internal/portal"
	"gestescal/internal/repair"
)

// Stage names carried by StageError.
const (
	StageFetch         = "fetch"
	StageParse         = "parse"
	StageWriteTable    = "write-table"
	StageWriteCourses  = "write-courses"
	StageWriteExams    = "write-exams"
	StageWriteSnapshot = "write-snapshot"
)

// Fetcher returns the raw events array text for one session.
// portal.Client and capture.BrowserFetcher implement it.
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// StageError reports which stage of a cycle failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Refresher owns the sync state. RefreshOnce calls are serialized, so the
// background loop and manual triggers never run a cycle concurrently.
type Refresher struct {
	fetcher    Fetcher
	output     config.OutputConfig
	classifier model.Classifier
	courses    export.CalendarWriter
	exams      export.CalendarWriter
	schedule   cron.Schedule

	runMu sync.Mutex

	stateMu  sync.RWMutex
	lastSync time.Time
	events   []model.Event
}

// New builds a Refresher from cfg. cfg must have passed Validate.
func New(cfg *config.Config, f Fetcher) (*Refresher, error) {
	if f == nil {
		return nil, errors.New("refresh: fetcher is nil")
	}
	sched, err := cfg.Schedule()
	if err != nil {
		return nil, err
	}
	shift, err := cfg.ShiftDuration()
	if err != nil {
		return nil, err
	}

	return &Refresher{
		fetcher:    f,
		output:     cfg.Output,
		classifier: model.NewClassifier(cfg.Calendar.ExamColor),
		courses:    export.CalendarWriter{Name: "Courses", Location: cfg.Calendar.Location, Shift: shift},
		exams:      export.CalendarWriter{Name: "Exams", Location: cfg.Calendar.Location, Shift: shift},
		schedule:   sched,
	}, nil
}

// LastSync returns the completion time of the last fully successful cycle.
// ok is false until one has succeeded.
func (r *Refresher) LastSync() (t time.Time, ok bool) {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.lastSync, !r.lastSync.IsZero()
}

// Events returns a copy of the events published by the last good cycle.
func (r *Refresher) Events() []model.Event {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	out := make([]model.Event, len(r.events))
	copy(out, r.events)
	return out
}

// RefreshOnce runs one full cycle. On failure it returns a *StageError and
// leaves the last sync time untouched; files already written by earlier
// stages of the same cycle are not rolled back.
func (r *Refresher) RefreshOnce(ctx context.Context) error {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	runID := uuid.NewString()
	started := time.Now()
	appLog.Info("refresh start", "run_id", runID)

	events, err := r.cycle(ctx, runID)
	if err != nil {
		var se *StageError
		stage := "unknown"
		if errors.As(err, &se) {
			stage = se.Stage
		}
		appLog.Error("refresh failed", err, "run_id", runID, "stage", stage)
		return err
	}

	now := time.Now()
	r.stateMu.Lock()
	r.lastSync = now
	r.events = events
	r.stateMu.Unlock()

	appLog.Info("refresh done", "run_id", runID, "events", len(events), "elapsed", time.Since(started).Round(time.Millisecond))
	return nil
}

func (r *Refresher) cycle(ctx context.Context, runID string) ([]model.Event, error) {
	block, err := r.fetcher.Fetch(ctx)
	if err != nil {
		r.dumpLoginFailure(err, runID)
		return nil, &StageError{Stage: StageFetch, Err: err}
	}

	records, err := repair.Parse(block)
	if err != nil {
		var pe *repair.ParseError
		if errors.As(err, &pe) {
			appLog.Debug("parse context", "run_id", runID, "line", pe.Line, "column", pe.Column, "near", pe.Context)
		}
		return nil, &StageError{Stage: StageParse, Err: err}
	}
	events := model.NormalizeAll(records)
	appLog.Info("events parsed", "run_id", runID, "count", len(events))

	if err := export.WriteCSV(events, r.output.CSV); err != nil {
		return nil, &StageError{Stage: StageWriteTable, Err: err}
	}

	courses, exams := r.classifier.Split(events)
	if _, err := r.courses.Write(courses, r.output.Courses); err != nil {
		return nil, &StageError{Stage: StageWriteCourses, Err: err}
	}
	if _, err := r.exams.Write(exams, r.output.Exams); err != nil {
		return nil, &StageError{Stage: StageWriteExams, Err: err}
	}

	if r.output.Snapshot != "" {
		if err := export.WriteJSON(events, r.output.Snapshot); err != nil {
			return nil, &StageError{Stage: StageWriteSnapshot, Err: err}
		}
	}

	return events, nil
}

func (r *Refresher) dumpLoginFailure(err error, runID string) {
	var ae *portal.AuthError
	if !errors.As(err, &ae) || r.output.LoginFailure == "" || ae.Body == "" {
		return
	}
	if werr := export.WriteRaw([]byte(ae.Body), r.output.LoginFailure); werr != nil {
		appLog.Error("login failure dump failed", werr, "run_id", runID)
		return
	}
	appLog.Warn("login rejected, response saved", "run_id", runID, "path", r.output.LoginFailure, "status", ae.StatusCode)
}

// Run performs a cycle immediately, then sleeps until the schedule's next
// activation after each cycle completes. Failures are logged and the loop
// continues. Run returns when ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) {
	for {
		_ = r.RefreshOnce(ctx)

		next := r.schedule.Next(time.Now())
		appLog.Info("next refresh scheduled", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			appLog.Info("refresh loop stopped")
			return
		case <-timer.C:
		}
	}
}

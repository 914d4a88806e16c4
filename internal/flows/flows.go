// Package flows sequences the multi-step user interactions: the goal
// creation wizard and the per-day tracking flow. Flows validate input
// before any gateway round-trip, short-circuit to login when the
// session is anonymous, and read all derived state through the store.
package flows

import (
	"context"
	"errors"
	"fmt"

	"aivora/internal/domain"
	"aivora/internal/gateway"
	"aivora/internal/session"
	"aivora/internal/store"
)

// WizardStep orders the goal creation wizard.
type WizardStep int

const (
	StepTitle WizardStep = iota
	StepSchedule
	StepConfirm
	StepDone
)

// GoalWizard collects and validates goal fields step by step, then runs
// the long-running create call. Validation failures keep the wizard on
// the failing step; nothing is sent until Submit.
type GoalWizard struct {
	store *store.Store
	sess  *session.Session

	step        WizardStep
	title       string
	description string
	duration    int
	hoursPerDay float64
}

func NewGoalWizard(st *store.Store, sess *session.Session) *GoalWizard {
	return &GoalWizard{store: st, sess: sess, step: StepTitle}
}

func (w *GoalWizard) Step() WizardStep { return w.step }

// SetTitle validates and stores the title, advancing to the schedule
// step. The description is optional and may be set at any point before
// submit.
func (w *GoalWizard) SetTitle(title string) error {
	trimmed, err := domain.ValidateTitle(title)
	if err != nil {
		return err
	}
	w.title = trimmed
	if w.step == StepTitle {
		w.step = StepSchedule
	}
	return nil
}

func (w *GoalWizard) SetDescription(desc string) error {
	if err := domain.ValidateDescription(desc); err != nil {
		return err
	}
	w.description = desc
	return nil
}

func (w *GoalWizard) SetSchedule(durationDays int, hoursPerDay float64) error {
	if err := domain.ValidateDuration(durationDays); err != nil {
		return err
	}
	if err := domain.ValidateHoursPerDay(hoursPerDay); err != nil {
		return err
	}
	w.duration = durationDays
	w.hoursPerDay = hoursPerDay
	if w.step == StepSchedule {
		w.step = StepConfirm
	}
	return nil
}

// Submit runs the create call. Plan generation happens synchronously on
// the backend, so this can take several seconds; callers should treat
// it as long-running rather than instantaneous.
func (w *GoalWizard) Submit(ctx context.Context) (domain.Goal, error) {
	if err := w.sess.RequireAuthenticated(); err != nil {
		return domain.Goal{}, err
	}
	if w.step != StepConfirm {
		return domain.Goal{}, fmt.Errorf("wizard incomplete: title and schedule are required")
	}
	g, err := w.store.CreateGoal(ctx, w.title, w.description, w.duration, w.hoursPerDay)
	if err != nil {
		return domain.Goal{}, err
	}
	w.step = StepDone
	return g, nil
}

// DayLockedError reports a gating violation, naming the blocking day
// for the user-facing message.
type DayLockedError struct {
	Day         int
	BlockingDay int
}

func (e *DayLockedError) Error() string {
	return fmt.Sprintf("please complete Day %d before tracking Day %d", e.BlockingDay, e.Day)
}

// TrackingState names the states of a single day's tracking flow:
// locked -> unlockable -> in-progress -> submitting -> tracked, with
// failed returning to in-progress on retry.
type TrackingState string

const (
	TrackingLocked     TrackingState = "locked"
	TrackingUnlockable TrackingState = "unlockable"
	TrackingInProgress TrackingState = "in_progress"
	TrackingSubmitting TrackingState = "submitting"
	TrackingTracked    TrackingState = "tracked"
	TrackingFailed     TrackingState = "failed"
)

// TrackingFlow drives one day's tracking. Day-unlock gating is enforced
// here, at the flow boundary, not by the store or the backend.
type TrackingFlow struct {
	store  *store.Store
	sess   *session.Session
	goalID string
	day    int

	state     TrackingState
	completed bool
	comment   string
	hours     *float64
	lastErr   error
}

// NewTrackingFlow builds the flow for (goal, day). It returns
// ErrNotAuthenticated for an anonymous session and *DayLockedError when
// the previous day is not completed; in the latter case the returned
// flow is in the locked state.
func NewTrackingFlow(st *store.Store, sess *session.Session, goalID string, day int) (*TrackingFlow, error) {
	if err := sess.RequireAuthenticated(); err != nil {
		return nil, err
	}
	g, ok := st.Goal(goalID)
	if !ok {
		return nil, fmt.Errorf("goal %s not loaded", goalID)
	}
	if err := domain.ValidateDay(g, day); err != nil {
		return nil, err
	}
	f := &TrackingFlow{store: st, sess: sess, goalID: goalID, day: day}
	if !st.IsDayUnlocked(goalID, day) {
		f.state = TrackingLocked
		return f, &DayLockedError{Day: day, BlockingDay: day - 1}
	}
	f.state = TrackingUnlockable
	return f, nil
}

func (f *TrackingFlow) State() TrackingState { return f.state }
func (f *TrackingFlow) Err() error           { return f.lastErr }

// Open moves an unlockable day into editing (the modal opens). A day
// already tracked may be reopened to amend the record; the submission
// upserts the same (goal, day) slot.
func (f *TrackingFlow) Open() error {
	switch f.state {
	case TrackingUnlockable, TrackingTracked:
		f.state = TrackingInProgress
		if prev, ok := f.store.ProgressForDay(f.goalID, f.day); ok {
			f.completed = prev.Completed
			f.comment = prev.Comment
			f.hours = prev.HoursSpent
		}
		return nil
	default:
		return fmt.Errorf("cannot open tracking in state %s", f.state)
	}
}

func (f *TrackingFlow) SetCompleted(completed bool) error {
	if f.state != TrackingInProgress {
		return fmt.Errorf("not editing")
	}
	f.completed = completed
	return nil
}

func (f *TrackingFlow) SetComment(comment string) error {
	if f.state != TrackingInProgress {
		return fmt.Errorf("not editing")
	}
	if err := domain.ValidateComment(comment); err != nil {
		return err
	}
	f.comment = comment
	return nil
}

func (f *TrackingFlow) SetHours(hours float64) error {
	if f.state != TrackingInProgress {
		return fmt.Errorf("not editing")
	}
	if hours < 0 {
		return fmt.Errorf("hours spent cannot be negative")
	}
	f.hours = &hours
	return nil
}

// Submit sends the record. Success merges the cache and lands in
// tracked; failure lands in failed with the error retained, and Retry
// returns to editing with fields intact.
func (f *TrackingFlow) Submit(ctx context.Context) (domain.Progress, error) {
	if f.state != TrackingInProgress {
		return domain.Progress{}, fmt.Errorf("cannot submit in state %s", f.state)
	}
	f.state = TrackingSubmitting
	p, err := f.store.SubmitProgress(ctx, gateway.ProgressInput{
		GoalID:     f.goalID,
		Day:        f.day,
		Completed:  f.completed,
		Comment:    f.comment,
		HoursSpent: f.hours,
	})
	if err != nil {
		f.state = TrackingFailed
		f.lastErr = err
		return domain.Progress{}, err
	}
	f.state = TrackingTracked
	f.lastErr = nil
	return p, nil
}

// Retry returns a failed flow to editing.
func (f *TrackingFlow) Retry() error {
	if f.state != TrackingFailed {
		return fmt.Errorf("nothing to retry in state %s", f.state)
	}
	f.state = TrackingInProgress
	return nil
}

// GenerateInsight gates insight generation on at least one completed
// progress record before spending a generation round-trip.
func GenerateInsight(ctx context.Context, st *store.Store, sess *session.Session, goalID string) (domain.Insight, error) {
	if err := sess.RequireAuthenticated(); err != nil {
		return domain.Insight{}, err
	}
	hasCompleted := false
	for _, p := range st.Progress(goalID) {
		if p.Completed {
			hasCompleted = true
			break
		}
	}
	if !hasCompleted {
		return domain.Insight{}, errors.New("complete at least one day before generating insights")
	}
	return st.GenerateInsight(ctx, goalID)
}

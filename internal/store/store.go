// Package store is the in-memory cache of goals, progress, and insights
// fetched through the gateway, plus the derivations computed from them.
// It is the single writer of cached entities: presentation flows read
// derived values and invoke mutation operations, never touching cache
// state directly. Mutations are non-optimistic; the cache is written
// only after a successful gateway response, so a failed call always
// leaves previously displayed data intact.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"aivora/internal/domain"
	"aivora/internal/gateway"
)

// Gateway is the slice of the backend client the store depends on.
// *gateway.Client satisfies it.
type Gateway interface {
	CreateGoal(ctx context.Context, title, description string, duration int, hoursPerDay float64) (domain.Goal, error)
	ListGoals(ctx context.Context, status string) ([]domain.Goal, error)
	GetGoal(ctx context.Context, id string) (domain.Goal, error)
	UpdateGoal(ctx context.Context, id string, upd gateway.GoalUpdate) (domain.Goal, error)
	DeleteGoal(ctx context.Context, id string) error
	RegeneratePlan(ctx context.Context, id, feedback string) (domain.Goal, error)
	SubmitProgress(ctx context.Context, in gateway.ProgressInput) (domain.Progress, error)
	UpdateProgress(ctx context.Context, id string, completed *bool, comment *string) (domain.Progress, error)
	ListProgress(ctx context.Context, goalID string) ([]domain.Progress, error)
	GetProgressStats(ctx context.Context, goalID string) (domain.ProgressStats, error)
	GenerateInsight(ctx context.Context, goalID string) (domain.Insight, error)
	ListInsights(ctx context.Context, goalID string) ([]domain.Insight, error)
	GetLatestInsight(ctx context.Context, goalID string) (domain.Insight, error)
	FetchReport(ctx context.Context, goalID string) (domain.Report, error)
}

var _ Gateway = (*gateway.Client)(nil)

// Store caches remote entities and exposes derived reads. Constructed
// once at application start and injected into flows; there is no
// package-level instance.
type Store struct {
	gw Gateway

	mu          sync.Mutex
	goals       map[string]domain.Goal
	goalOrder   []string
	progress    map[string]map[int]domain.Progress
	insights    map[string][]domain.Insight
	serverStats map[string]domain.ProgressStats

	Now    func() time.Time
	Logger *zerolog.Logger
}

func New(gw Gateway) *Store {
	return &Store{
		gw:          gw,
		goals:       map[string]domain.Goal{},
		progress:    map[string]map[int]domain.Progress{},
		insights:    map[string][]domain.Insight{},
		serverStats: map[string]domain.ProgressStats{},
		Now:         time.Now,
	}
}

func (s *Store) log() *zerolog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	l := zerolog.Nop()
	return &l
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// --- goal mutations ---

// CreateGoal runs the long-running create-and-generate call and caches
// the result. Nothing is cached on failure: a failed generation leaves
// no partial or placeholder goal behind.
func (s *Store) CreateGoal(ctx context.Context, title, description string, duration int, hoursPerDay float64) (domain.Goal, error) {
	g, err := s.gw.CreateGoal(ctx, title, description, duration, hoursPerDay)
	if err != nil {
		return domain.Goal{}, err
	}
	s.mu.Lock()
	s.putGoal(g)
	s.mu.Unlock()
	return g, nil
}

// RefreshGoals fetches the goal list. With no status filter the cached
// goal set is replaced wholesale; with a filter, fetched goals are
// merged in without dropping the rest.
func (s *Store) RefreshGoals(ctx context.Context, status string) ([]domain.Goal, error) {
	goals, err := s.gw.ListGoals(ctx, status)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if status == "" {
		s.goals = make(map[string]domain.Goal, len(goals))
		s.goalOrder = s.goalOrder[:0]
	}
	for _, g := range goals {
		s.putGoal(g)
	}
	s.mu.Unlock()
	return goals, nil
}

// RefreshGoal fetches one goal; a NotFound response evicts it from the
// cache before the error propagates.
func (s *Store) RefreshGoal(ctx context.Context, id string) (domain.Goal, error) {
	g, err := s.gw.GetGoal(ctx, id)
	if err != nil {
		s.evictOnNotFound(id, err)
		return domain.Goal{}, err
	}
	s.mu.Lock()
	s.putGoal(g)
	s.mu.Unlock()
	return g, nil
}

func (s *Store) UpdateGoal(ctx context.Context, id string, upd gateway.GoalUpdate) (domain.Goal, error) {
	g, err := s.gw.UpdateGoal(ctx, id, upd)
	if err != nil {
		s.evictOnNotFound(id, err)
		return domain.Goal{}, err
	}
	s.mu.Lock()
	s.putGoal(g)
	s.mu.Unlock()
	return g, nil
}

// DeleteGoal is a gateway passthrough; on success the goal and all its
// dependent cached state are dropped.
func (s *Store) DeleteGoal(ctx context.Context, id string) error {
	if err := s.gw.DeleteGoal(ctx, id); err != nil {
		s.evictOnNotFound(id, err)
		return err
	}
	s.mu.Lock()
	s.dropGoal(id)
	s.mu.Unlock()
	return nil
}

// Regenerate replaces the cached goal's plan with the server-returned
// plan in full. Cached progress records are never discarded or altered:
// regeneration never invalidates progress history.
func (s *Store) Regenerate(ctx context.Context, id, feedback string) (domain.Goal, error) {
	s.mu.Lock()
	before, hadBefore := s.goals[id]
	s.mu.Unlock()
	g, err := s.gw.RegeneratePlan(ctx, id, feedback)
	if err != nil {
		s.evictOnNotFound(id, err)
		return domain.Goal{}, err
	}
	if hadBefore {
		s.checkCompletedDaysPreserved(before, g)
	}
	s.mu.Lock()
	s.putGoal(g)
	s.mu.Unlock()
	return g, nil
}

// checkCompletedDaysPreserved audits the regeneration contract: the
// server must keep plan entries for already-completed days. A drifted
// entry is accepted (the server plan wins) but logged.
func (s *Store) checkCompletedDaysPreserved(before, after domain.Goal) {
	s.mu.Lock()
	byDay := s.progress[before.ID]
	completed := make(map[int]bool, len(byDay))
	for day, p := range byDay {
		if p.Completed {
			completed[day] = true
		}
	}
	s.mu.Unlock()
	oldPlan := planByDay(before.Plan)
	newPlan := planByDay(after.Plan)
	for day := range completed {
		o, okOld := oldPlan[day]
		n, okNew := newPlan[day]
		if okOld && okNew && o != n {
			s.log().Warn().Str("goal_id", before.ID).Int("day", day).
				Msg("regeneration changed a completed day's plan entry")
		}
	}
}

func planByDay(plan []domain.DayPlan) map[int]domain.DayPlan {
	m := make(map[int]domain.DayPlan, len(plan))
	for _, p := range plan {
		m[p.Day] = p
	}
	return m
}

// --- progress mutations ---

// SubmitProgress records tracking for a day and merges the returned
// record into the cache by (goal, day) before returning, so an
// immediate follow-up read observes it.
func (s *Store) SubmitProgress(ctx context.Context, in gateway.ProgressInput) (domain.Progress, error) {
	p, err := s.gw.SubmitProgress(ctx, in)
	if err != nil {
		s.evictOnNotFound(in.GoalID, err)
		return domain.Progress{}, err
	}
	s.mu.Lock()
	s.putProgress(p)
	s.mu.Unlock()
	return p, nil
}

// UpdateProgress amends an existing record; the result merges into the
// same (goal, day) slot.
func (s *Store) UpdateProgress(ctx context.Context, id string, completed *bool, comment *string) (domain.Progress, error) {
	p, err := s.gw.UpdateProgress(ctx, id, completed, comment)
	if err != nil {
		return domain.Progress{}, err
	}
	s.mu.Lock()
	s.putProgress(p)
	s.mu.Unlock()
	return p, nil
}

// RefreshProgress fetches a goal's progress records and merges them by
// (goal, day). The backend has been observed to return duplicates for a
// key; the last record in response order wins, and after the merge the
// cache holds at most one record per day.
func (s *Store) RefreshProgress(ctx context.Context, goalID string) ([]domain.Progress, error) {
	records, err := s.gw.ListProgress(ctx, goalID)
	if err != nil {
		s.evictOnNotFound(goalID, err)
		return nil, err
	}
	s.mu.Lock()
	s.progress[goalID] = make(map[int]domain.Progress, len(records))
	for _, p := range records {
		s.putProgress(p)
	}
	s.mu.Unlock()
	return s.Progress(goalID), nil
}

// --- insight mutations ---

func (s *Store) GenerateInsight(ctx context.Context, goalID string) (domain.Insight, error) {
	ins, err := s.gw.GenerateInsight(ctx, goalID)
	if err != nil {
		s.evictOnNotFound(goalID, err)
		return domain.Insight{}, err
	}
	s.mu.Lock()
	s.insights[goalID] = append(s.insights[goalID], ins)
	s.mu.Unlock()
	return ins, nil
}

func (s *Store) RefreshInsights(ctx context.Context, goalID string) ([]domain.Insight, error) {
	insights, err := s.gw.ListInsights(ctx, goalID)
	if err != nil {
		s.evictOnNotFound(goalID, err)
		return nil, err
	}
	s.mu.Lock()
	s.insights[goalID] = insights
	s.mu.Unlock()
	return insights, nil
}

func (s *Store) LatestInsight(ctx context.Context, goalID string) (domain.Insight, error) {
	return s.gw.GetLatestInsight(ctx, goalID)
}

// RefreshStats fetches and caches the server-computed stats, which are
// preferred over the local derivation for display.
func (s *Store) RefreshStats(ctx context.Context, goalID string) (domain.ProgressStats, error) {
	st, err := s.gw.GetProgressStats(ctx, goalID)
	if err != nil {
		s.evictOnNotFound(goalID, err)
		return domain.ProgressStats{}, err
	}
	s.mu.Lock()
	s.serverStats[goalID] = st
	s.mu.Unlock()
	return st, nil
}

// FetchReport is a passthrough; the document bytes are opaque here.
func (s *Store) FetchReport(ctx context.Context, goalID string) (domain.Report, error) {
	return s.gw.FetchReport(ctx, goalID)
}

// --- cached reads ---

func (s *Store) Goal(id string) (domain.Goal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	return g, ok
}

func (s *Store) Goals() []domain.Goal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Goal, 0, len(s.goalOrder))
	for _, id := range s.goalOrder {
		if g, ok := s.goals[id]; ok {
			out = append(out, g)
		}
	}
	return out
}

// Progress returns the merged records for a goal ordered by day.
func (s *Store) Progress(goalID string) []domain.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	byDay := s.progress[goalID]
	out := make([]domain.Progress, 0, len(byDay))
	for _, p := range byDay {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

func (s *Store) ProgressForDay(goalID string, day int) (domain.Progress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.progress[goalID][day]
	return p, ok
}

func (s *Store) Insights(goalID string) []domain.Insight {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Insight, len(s.insights[goalID]))
	copy(out, s.insights[goalID])
	return out
}

// --- cache internals (callers hold s.mu) ---

func (s *Store) putGoal(g domain.Goal) {
	if _, exists := s.goals[g.ID]; !exists {
		s.goalOrder = append(s.goalOrder, g.ID)
	}
	s.goals[g.ID] = g
}

func (s *Store) putProgress(p domain.Progress) {
	byDay := s.progress[p.GoalID]
	if byDay == nil {
		byDay = map[int]domain.Progress{}
		s.progress[p.GoalID] = byDay
	}
	byDay[p.Day] = p
}

func (s *Store) dropGoal(id string) {
	delete(s.goals, id)
	delete(s.progress, id)
	delete(s.insights, id)
	delete(s.serverStats, id)
	for i, gid := range s.goalOrder {
		if gid == id {
			s.goalOrder = append(s.goalOrder[:i], s.goalOrder[i+1:]...)
			break
		}
	}
}

// evictOnNotFound drops a goal's cached state when the server reports
// the entity gone.
func (s *Store) evictOnNotFound(goalID string, err error) {
	var nf *gateway.NotFoundError
	if !errors.As(err, &nf) {
		return
	}
	s.mu.Lock()
	s.dropGoal(goalID)
	s.mu.Unlock()
	s.log().Debug().Str("goal_id", goalID).Msg("evicted goal after not-found response")
}

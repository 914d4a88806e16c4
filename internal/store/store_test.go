package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"aivora/internal/domain"
	"aivora/internal/gateway"
	"aivora/internal/store"
)

var fixedNow = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

func ptr(f float64) *float64 { return &f }

func dayStamp(daysAgo int) string {
	return fixedNow.AddDate(0, 0, -daysAgo).Format(time.RFC3339)
}

// fakeGateway serves canned responses; Err, when set, is returned by
// every operation.
type fakeGateway struct {
	Goal     domain.Goal
	Goals    []domain.Goal
	Progress []domain.Progress
	Insight  domain.Insight
	Insights []domain.Insight
	Stats    domain.ProgressStats
	Report   domain.Report
	Err      error

	Deleted   []string
	Submitted []gateway.ProgressInput
}

func (f *fakeGateway) CreateGoal(ctx context.Context, title, description string, duration int, hoursPerDay float64) (domain.Goal, error) {
	return f.Goal, f.Err
}
func (f *fakeGateway) ListGoals(ctx context.Context, status string) ([]domain.Goal, error) {
	return f.Goals, f.Err
}
func (f *fakeGateway) GetGoal(ctx context.Context, id string) (domain.Goal, error) {
	return f.Goal, f.Err
}
func (f *fakeGateway) UpdateGoal(ctx context.Context, id string, upd gateway.GoalUpdate) (domain.Goal, error) {
	return f.Goal, f.Err
}
func (f *fakeGateway) DeleteGoal(ctx context.Context, id string) error {
	if f.Err == nil {
		f.Deleted = append(f.Deleted, id)
	}
	return f.Err
}
func (f *fakeGateway) RegeneratePlan(ctx context.Context, id, feedback string) (domain.Goal, error) {
	return f.Goal, f.Err
}
func (f *fakeGateway) SubmitProgress(ctx context.Context, in gateway.ProgressInput) (domain.Progress, error) {
	if f.Err != nil {
		return domain.Progress{}, f.Err
	}
	f.Submitted = append(f.Submitted, in)
	return domain.Progress{
		ID:         fmt.Sprintf("p-%s-%d", in.GoalID, in.Day),
		GoalID:     in.GoalID,
		Day:        in.Day,
		Completed:  in.Completed,
		Comment:    in.Comment,
		HoursSpent: in.HoursSpent,
		Timestamp:  fixedNow.Format(time.RFC3339),
	}, nil
}
func (f *fakeGateway) UpdateProgress(ctx context.Context, id string, completed *bool, comment *string) (domain.Progress, error) {
	if f.Err != nil {
		return domain.Progress{}, f.Err
	}
	if len(f.Progress) == 0 {
		return domain.Progress{}, errors.New("no record")
	}
	p := f.Progress[0]
	if completed != nil {
		p.Completed = *completed
	}
	if comment != nil {
		p.Comment = *comment
	}
	return p, nil
}
func (f *fakeGateway) ListProgress(ctx context.Context, goalID string) ([]domain.Progress, error) {
	return f.Progress, f.Err
}
func (f *fakeGateway) GetProgressStats(ctx context.Context, goalID string) (domain.ProgressStats, error) {
	return f.Stats, f.Err
}
func (f *fakeGateway) GenerateInsight(ctx context.Context, goalID string) (domain.Insight, error) {
	return f.Insight, f.Err
}
func (f *fakeGateway) ListInsights(ctx context.Context, goalID string) ([]domain.Insight, error) {
	return f.Insights, f.Err
}
func (f *fakeGateway) GetLatestInsight(ctx context.Context, goalID string) (domain.Insight, error) {
	return f.Insight, f.Err
}
func (f *fakeGateway) FetchReport(ctx context.Context, goalID string) (domain.Report, error) {
	return f.Report, f.Err
}

func testGoal(id string, duration int) domain.Goal {
	plan := make([]domain.DayPlan, 0, duration)
	for d := 1; d <= duration; d++ {
		plan = append(plan, domain.DayPlan{Day: d, Task: fmt.Sprintf("task %d", d), EstimatedHours: 1})
	}
	return domain.Goal{
		ID:          id,
		Title:       "Learn Go",
		Duration:    duration,
		HoursPerDay: 1,
		Plan:        plan,
		Status:      domain.StatusActive,
		CreatedAt:   dayStamp(10),
	}
}

func newStore(t *testing.T, fg *fakeGateway) *store.Store {
	t.Helper()
	st := store.New(fg)
	st.Now = func() time.Time { return fixedNow }
	return st
}

func seedGoal(t *testing.T, st *store.Store, fg *fakeGateway, g domain.Goal) {
	t.Helper()
	fg.Goal = g
	if _, err := st.RefreshGoal(context.Background(), g.ID); err != nil {
		t.Fatalf("seed goal: %v", err)
	}
}

func seedProgress(t *testing.T, st *store.Store, fg *fakeGateway, goalID string, records []domain.Progress) {
	t.Helper()
	fg.Progress = records
	if _, err := st.RefreshProgress(context.Background(), goalID); err != nil {
		t.Fatalf("seed progress: %v", err)
	}
}

func TestRefreshProgressMergesDuplicates(t *testing.T) {
	fg := &fakeGateway{}
	st := newStore(t, fg)
	seedGoal(t, st, fg, testGoal("g1", 30))
	seedProgress(t, st, fg, "g1", []domain.Progress{
		{ID: "a", GoalID: "g1", Day: 3, Completed: false, Comment: "first"},
		{ID: "b", GoalID: "g1", Day: 1, Completed: true},
		{ID: "c", GoalID: "g1", Day: 3, Completed: true, Comment: "second"},
	})
	records := st.Progress("g1")
	if len(records) != 2 {
		t.Fatalf("want 2 merged records, got %d", len(records))
	}
	if records[0].Day != 1 || records[1].Day != 3 {
		t.Fatalf("records not ordered by day: %+v", records)
	}
	day3, ok := st.ProgressForDay("g1", 3)
	if !ok || day3.ID != "c" || day3.Comment != "second" {
		t.Fatalf("last duplicate should win, got %+v", day3)
	}
}

func TestSubmitProgressMergesByDay(t *testing.T) {
	fg := &fakeGateway{}
	st := newStore(t, fg)
	seedGoal(t, st, fg, testGoal("g1", 30))
	ctx := context.Background()
	if _, err := st.SubmitProgress(ctx, gateway.ProgressInput{GoalID: "g1", Day: 1, Completed: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.SubmitProgress(ctx, gateway.ProgressInput{GoalID: "g1", Day: 1, Completed: false, Comment: "redo"}); err != nil {
		t.Fatal(err)
	}
	if got := len(st.Progress("g1")); got != 1 {
		t.Fatalf("resubmitting a day must upsert, got %d records", got)
	}
	p, _ := st.ProgressForDay("g1", 1)
	if p.Completed || p.Comment != "redo" {
		t.Fatalf("second submission should win: %+v", p)
	}
}

func TestSubmitProgressFailureLeavesCacheIntact(t *testing.T) {
	fg := &fakeGateway{}
	st := newStore(t, fg)
	seedGoal(t, st, fg, testGoal("g1", 30))
	seedProgress(t, st, fg, "g1", []domain.Progress{
		{ID: "a", GoalID: "g1", Day: 1, Completed: true, Timestamp: dayStamp(0)},
	})
	fg.Err = &gateway.UpstreamError{Message: "boom"}
	if _, err := st.SubmitProgress(context.Background(), gateway.ProgressInput{GoalID: "g1", Day: 2, Completed: true}); err == nil {
		t.Fatal("expected error")
	}
	if got := len(st.Progress("g1")); got != 1 {
		t.Fatalf("failed submit must not touch cache, got %d records", got)
	}
}

func TestCompletionRate(t *testing.T) {
	fg := &fakeGateway{}
	st := newStore(t, fg)
	seedGoal(t, st, fg, testGoal("g1", 30))
	seedProgress(t, st, fg, "g1", []domain.Progress{
		{ID: "a", GoalID: "g1", Day: 1, Completed: true, Timestamp: dayStamp(0)},
		{ID: "b", GoalID: "g1", Day: 2, Completed: false, Timestamp: dayStamp(0)},
	})
	if got := st.CompletionRate("g1"); got != 3 {
		t.Fatalf("1/30 completed: want 3, got %d", got)
	}

	seedGoal(t, st, fg, testGoal("g2", 3))
	seedProgress(t, st, fg, "g2", []domain.Progress{
		{ID: "c", GoalID: "g2", Day: 1, Completed: true, Timestamp: dayStamp(0)},
		{ID: "d", GoalID: "g2", Day: 2, Completed: true, Timestamp: dayStamp(0)},
	})
	if got := st.CompletionRate("g2"); got != 67 {
		t.Fatalf("2/3 completed: want 67, got %d", got)
	}
	if got := st.CompletionRate("missing"); got != 0 {
		t.Fatalf("unknown goal: want 0, got %d", got)
	}
}

func TestCurrentStreak(t *testing.T) {
	cases := []struct {
		name    string
		daysAgo []int
		want    int
	}{
		{"run ending today with gap", []int{0, 1, 2, 5}, 3},
		{"anchored yesterday", []int{1, 2}, 2},
		{"stale", []int{2}, 0},
		{"empty", nil, 0},
		{"same day duplicates", []int{0, 0, 1}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fg := &fakeGateway{}
			st := newStore(t, fg)
			seedGoal(t, st, fg, testGoal("g1", 30))
			var records []domain.Progress
			for i, ago := range tc.daysAgo {
				records = append(records, domain.Progress{
					ID: fmt.Sprintf("p%d", i), GoalID: "g1", Day: i + 1,
					Completed: true, Timestamp: dayStamp(ago),
				})
			}
			seedProgress(t, st, fg, "g1", records)
			if got := st.CurrentStreak("g1"); got != tc.want {
				t.Fatalf("want %d, got %d", tc.want, got)
			}
		})
	}
}

func TestStreakIgnoresUnparseableTimestamps(t *testing.T) {
	fg := &fakeGateway{}
	st := newStore(t, fg)
	seedGoal(t, st, fg, testGoal("g1", 30))
	seedProgress(t, st, fg, "g1", []domain.Progress{
		{ID: "a", GoalID: "g1", Day: 1, Completed: true, Timestamp: dayStamp(0)},
		{ID: "b", GoalID: "g1", Day: 2, Completed: true, Timestamp: "not-a-time"},
		{ID: "c", GoalID: "g1", Day: 3, Completed: true},
	})
	if got := st.CurrentStreak("g1"); got != 1 {
		t.Fatalf("only the parseable record counts: want 1, got %d", got)
	}
}

func TestGlobalStreakSpansGoals(t *testing.T) {
	fg := &fakeGateway{}
	st := newStore(t, fg)
	seedGoal(t, st, fg, testGoal("g1", 30))
	seedProgress(t, st, fg, "g1", []domain.Progress{
		{ID: "a", GoalID: "g1", Day: 1, Completed: true, Timestamp: dayStamp(0)},
	})
	seedGoal(t, st, fg, testGoal("g2", 30))
	seedProgress(t, st, fg, "g2", []domain.Progress{
		{ID: "b", GoalID: "g2", Day: 1, Completed: true, Timestamp: dayStamp(1)},
	})
	if got := st.CurrentStreak("g1"); got != 1 {
		t.Fatalf("per-goal streak: want 1, got %d", got)
	}
	if got := st.GlobalStreak(); got != 2 {
		t.Fatalf("global streak should combine goals: want 2, got %d", got)
	}
}

func TestIsDayUnlocked(t *testing.T) {
	fg := &fakeGateway{}
	st := newStore(t, fg)
	seedGoal(t, st, fg, testGoal("g1", 30))
	if !st.IsDayUnlocked("g1", 1) {
		t.Fatal("day 1 must always be unlocked")
	}
	if st.IsDayUnlocked("g1", 0) {
		t.Fatal("day 0 is out of range")
	}
	if st.IsDayUnlocked("g1", 2) {
		t.Fatal("day 2 locked until day 1 completed")
	}
	seedProgress(t, st, fg, "g1", []domain.Progress{
		{ID: "a", GoalID: "g1", Day: 1, Completed: false},
	})
	if st.IsDayUnlocked("g1", 2) {
		t.Fatal("an incomplete day 1 record does not unlock day 2")
	}
	seedProgress(t, st, fg, "g1", []domain.Progress{
		{ID: "a", GoalID: "g1", Day: 1, Completed: true},
	})
	if !st.IsDayUnlocked("g1", 2) {
		t.Fatal("day 2 unlocks once day 1 is completed")
	}
	if st.IsDayUnlocked("g1", 3) {
		t.Fatal("day 3 still locked")
	}
}

func TestAverageSentimentExcludesUnscored(t *testing.T) {
	fg := &fakeGateway{}
	st := newStore(t, fg)
	seedGoal(t, st, fg, testGoal("g1", 30))
	seedProgress(t, st, fg, "g1", []domain.Progress{
		{ID: "a", GoalID: "g1", Day: 1, Completed: true, SentimentScore: ptr(0.5)},
		{ID: "b", GoalID: "g1", Day: 2, Completed: true, SentimentScore: ptr(-0.2)},
		{ID: "c", GoalID: "g1", Day: 3, Completed: true},
	})
	got := st.AverageSentiment("g1")
	if got < 0.1499 || got > 0.1501 {
		t.Fatalf("want 0.15, got %v", got)
	}
	if st.AverageSentiment("empty") != 0 {
		t.Fatal("no scored records: want 0")
	}
}

func TestRegeneratePreservesProgress(t *testing.T) {
	fg := &fakeGateway{}
	st := newStore(t, fg)
	g := testGoal("g1", 5)
	seedGoal(t, st, fg, g)
	seedProgress(t, st, fg, "g1", []domain.Progress{
		{ID: "a", GoalID: "g1", Day: 1, Completed: true, Comment: "kept", Timestamp: dayStamp(1)},
	})

	regen := testGoal("g1", 5)
	for i := range regen.Plan {
		regen.Plan[i].Task = fmt.Sprintf("revised task %d", i+1)
	}
	fg.Goal = regen
	got, err := st.Regenerate(context.Background(), "g1", "make it harder")
	if err != nil {
		t.Fatal(err)
	}
	if got.Plan[0].Task != "revised task 1" {
		t.Fatalf("plan should be replaced wholesale: %+v", got.Plan[0])
	}
	p, ok := st.ProgressForDay("g1", 1)
	if !ok || p.Comment != "kept" {
		t.Fatalf("regeneration must not touch progress, got %+v ok=%v", p, ok)
	}
	cached, _ := st.Goal("g1")
	if cached.Plan[0].Task != "revised task 1" {
		t.Fatal("cached goal should carry the new plan")
	}
}

func TestEvictOnNotFound(t *testing.T) {
	fg := &fakeGateway{}
	st := newStore(t, fg)
	seedGoal(t, st, fg, testGoal("g1", 30))
	seedProgress(t, st, fg, "g1", []domain.Progress{
		{ID: "a", GoalID: "g1", Day: 1, Completed: true},
	})
	fg.Err = &gateway.NotFoundError{Message: "goal not found"}
	_, err := st.RefreshGoal(context.Background(), "g1")
	var nf *gateway.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("want NotFoundError, got %v", err)
	}
	if _, ok := st.Goal("g1"); ok {
		t.Fatal("goal should be evicted after not-found")
	}
	if got := len(st.Progress("g1")); got != 0 {
		t.Fatalf("dependent progress should be evicted, got %d", got)
	}
}

func TestOtherErrorsDoNotEvict(t *testing.T) {
	fg := &fakeGateway{}
	st := newStore(t, fg)
	seedGoal(t, st, fg, testGoal("g1", 30))
	fg.Err = &gateway.UpstreamError{Message: "flaky"}
	if _, err := st.RefreshGoal(context.Background(), "g1"); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := st.Goal("g1"); !ok {
		t.Fatal("cache must survive non-notfound failures")
	}
}

func TestDeleteGoalDropsDependentState(t *testing.T) {
	fg := &fakeGateway{}
	st := newStore(t, fg)
	seedGoal(t, st, fg, testGoal("g1", 30))
	seedProgress(t, st, fg, "g1", []domain.Progress{
		{ID: "a", GoalID: "g1", Day: 1, Completed: true},
	})
	if err := st.DeleteGoal(context.Background(), "g1"); err != nil {
		t.Fatal(err)
	}
	if _, ok := st.Goal("g1"); ok {
		t.Fatal("goal not dropped")
	}
	if len(st.Progress("g1")) != 0 {
		t.Fatal("progress not dropped")
	}
	if len(fg.Deleted) != 1 || fg.Deleted[0] != "g1" {
		t.Fatalf("delete not forwarded: %v", fg.Deleted)
	}
}

func TestStatsPrefersServerValue(t *testing.T) {
	fg := &fakeGateway{}
	st := newStore(t, fg)
	seedGoal(t, st, fg, testGoal("g1", 30))
	seedProgress(t, st, fg, "g1", []domain.Progress{
		{ID: "a", GoalID: "g1", Day: 1, Completed: true, HoursSpent: ptr(2), Timestamp: dayStamp(0)},
	})

	local := st.Stats("g1")
	if local.CompletedDays != 1 || local.CompletionRate != 3 || local.CurrentStreak != 1 || local.TotalHoursSpent != 2 {
		t.Fatalf("local fallback wrong: %+v", local)
	}

	fg.Stats = domain.ProgressStats{TotalDays: 30, CompletedDays: 9, CompletionRate: 30, CurrentStreak: 4}
	if _, err := st.RefreshStats(context.Background(), "g1"); err != nil {
		t.Fatal(err)
	}
	got := st.Stats("g1")
	if got.CompletedDays != 9 || got.CurrentStreak != 4 {
		t.Fatalf("server stats should win once fetched: %+v", got)
	}
}

func TestRefreshGoalsReplaceVersusMerge(t *testing.T) {
	fg := &fakeGateway{}
	st := newStore(t, fg)
	ctx := context.Background()

	fg.Goals = []domain.Goal{testGoal("g1", 5), testGoal("g2", 5)}
	if _, err := st.RefreshGoals(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if got := len(st.Goals()); got != 2 {
		t.Fatalf("want 2 goals, got %d", got)
	}

	// Filtered refresh merges without dropping the rest.
	fg.Goals = []domain.Goal{testGoal("g3", 5)}
	if _, err := st.RefreshGoals(ctx, "active"); err != nil {
		t.Fatal(err)
	}
	if got := len(st.Goals()); got != 3 {
		t.Fatalf("filtered refresh must merge: want 3, got %d", got)
	}

	// Unfiltered refresh replaces the whole set.
	fg.Goals = []domain.Goal{testGoal("g2", 5)}
	if _, err := st.RefreshGoals(ctx, ""); err != nil {
		t.Fatal(err)
	}
	goals := st.Goals()
	if len(goals) != 1 || goals[0].ID != "g2" {
		t.Fatalf("unfiltered refresh must replace: %+v", goals)
	}
}

func TestAverageCompletion(t *testing.T) {
	fg := &fakeGateway{}
	st := newStore(t, fg)
	if st.AverageCompletion() != 0 {
		t.Fatal("no goals: want 0")
	}
	seedGoal(t, st, fg, testGoal("g1", 2))
	seedProgress(t, st, fg, "g1", []domain.Progress{
		{ID: "a", GoalID: "g1", Day: 1, Completed: true},
		{ID: "b", GoalID: "g1", Day: 2, Completed: true},
	})
	seedGoal(t, st, fg, testGoal("g2", 2))
	if got := st.AverageCompletion(); got != 50 {
		t.Fatalf("mean of 100%% and 0%%: want 50, got %d", got)
	}
}

func TestDaysActive(t *testing.T) {
	fg := &fakeGateway{}
	st := newStore(t, fg)
	g := testGoal("g1", 30)
	g.CreatedAt = fixedNow.Add(-60 * time.Hour).Format(time.RFC3339)
	if got := st.DaysActive(g); got != 3 {
		t.Fatalf("60h ago: want 3, got %d", got)
	}
	g.CreatedAt = fixedNow.Format(time.RFC3339)
	if got := st.DaysActive(g); got != 1 {
		t.Fatalf("created just now: want 1, got %d", got)
	}
	g.CreatedAt = "garbage"
	if got := st.DaysActive(g); got != 0 {
		t.Fatalf("unparseable creation time: want 0, got %d", got)
	}
}

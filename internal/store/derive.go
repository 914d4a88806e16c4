package store

import (
	"math"
	"sort"
	"time"

	"aivora/internal/domain"
)

// Derived reads over the cache. The definitions here mirror the
// server's stats computation so the local fallback agrees with it.

// CompletionRate returns round(100 * completed distinct days /
// duration) for a goal, 0 when the goal is not cached.
func (s *Store) CompletionRate(goalID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completionRateLocked(goalID)
}

func (s *Store) completionRateLocked(goalID string) int {
	g, ok := s.goals[goalID]
	if !ok || g.Duration <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(s.completedDaysLocked(goalID)) / float64(g.Duration)))
}

func (s *Store) completedDaysLocked(goalID string) int {
	n := 0
	for _, p := range s.progress[goalID] {
		if p.Completed {
			n++
		}
	}
	return n
}

// CurrentStreak counts consecutive calendar days with a completed
// record for one goal, anchored at today or yesterday.
func (s *Store) CurrentStreak(goalID string) int {
	s.mu.Lock()
	dates := s.completedDatesLocked(goalID)
	s.mu.Unlock()
	return streakFromDates(dates, s.now())
}

// GlobalStreak is the dashboard aggregate: the streak over completed
// records of every cached goal combined.
func (s *Store) GlobalStreak() int {
	s.mu.Lock()
	var dates []time.Time
	for goalID := range s.progress {
		dates = append(dates, s.completedDatesLocked(goalID)...)
	}
	s.mu.Unlock()
	return streakFromDates(dates, s.now())
}

// completedDatesLocked collects the effective completion dates of a
// goal's completed records, truncated to calendar days. A record with
// no parseable timestamp contributes no date; it is excluded from
// streak calculation rather than assumed to be today.
func (s *Store) completedDatesLocked(goalID string) []time.Time {
	var dates []time.Time
	for _, p := range s.progress[goalID] {
		if !p.Completed || p.Timestamp == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, p.Timestamp)
		if err != nil {
			continue
		}
		dates = append(dates, truncateDay(ts))
	}
	return dates
}

// streakFromDates walks distinct dates descending from the most recent:
// streak is 0 if the most recent completed date is more than one day
// before today, otherwise 1 plus the run of exactly-one-day-apart
// predecessors.
func streakFromDates(dates []time.Time, now time.Time) int {
	if len(dates) == 0 {
		return 0
	}
	distinct := make(map[time.Time]bool, len(dates))
	for _, d := range dates {
		distinct[d] = true
	}
	sorted := make([]time.Time, 0, len(distinct))
	for d := range distinct {
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].After(sorted[j]) })

	today := truncateDay(now)
	if sorted[0].Before(today.AddDate(0, 0, -1)) {
		return 0
	}
	streak := 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].AddDate(0, 0, -1).Equal(sorted[i]) {
			streak++
			continue
		}
		break
	}
	return streak
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// IsDayUnlocked reports whether tracking for a day is accessible: day 1
// always is, day N requires a completed record for day N-1. Flows
// enforce this before opening the tracking modal; the store only
// answers the query.
func (s *Store) IsDayUnlocked(goalID string, day int) bool {
	if day <= 1 {
		return day == 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.progress[goalID][day-1]
	return ok && prev.Completed
}

// AverageSentiment is the mean sentiment over records that carry a
// score; unscored records are excluded from both numerator and
// denominator.
func (s *Store) AverageSentiment(goalID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.averageSentimentLocked(goalID)
}

func (s *Store) averageSentimentLocked(goalID string) float64 {
	sum := 0.0
	n := 0
	for _, p := range s.progress[goalID] {
		if p.SentimentScore == nil {
			continue
		}
		sum += *p.SentimentScore
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// TotalHours sums recorded hours across a goal's progress.
func (s *Store) TotalHours(goalID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalHoursLocked(goalID)
}

func (s *Store) totalHoursLocked(goalID string) float64 {
	sum := 0.0
	for _, p := range s.progress[goalID] {
		if p.HoursSpent != nil {
			sum += *p.HoursSpent
		}
	}
	return sum
}

// LocalStats derives the full stats object from cached state, matching
// the server definition field for field.
func (s *Store) LocalStats(goalID string) domain.ProgressStats {
	s.mu.Lock()
	g := s.goals[goalID]
	st := domain.ProgressStats{
		TotalDays:        g.Duration,
		CompletedDays:    s.completedDaysLocked(goalID),
		CompletionRate:   s.completionRateLocked(goalID),
		AverageSentiment: s.averageSentimentLocked(goalID),
		TotalHoursSpent:  s.totalHoursLocked(goalID),
	}
	dates := s.completedDatesLocked(goalID)
	s.mu.Unlock()
	st.CurrentStreak = streakFromDates(dates, s.now())
	return st
}

// Stats prefers the cached server-computed stats and falls back to the
// local derivation when no server value has been fetched.
func (s *Store) Stats(goalID string) domain.ProgressStats {
	s.mu.Lock()
	st, ok := s.serverStats[goalID]
	s.mu.Unlock()
	if ok {
		return st
	}
	return s.LocalStats(goalID)
}

// AverageCompletion is the mean completion rate across all cached
// goals, rounded; 0 with no goals.
func (s *Store) AverageCompletion() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.goalOrder) == 0 {
		return 0
	}
	total := 0
	for _, id := range s.goalOrder {
		total += s.completionRateLocked(id)
	}
	return int(math.Round(float64(total) / float64(len(s.goalOrder))))
}

// DaysActive counts whole days elapsed since a goal's creation,
// minimum 1 for a goal created today.
func (s *Store) DaysActive(g domain.Goal) int {
	created, err := time.Parse(time.RFC3339, g.CreatedAt)
	if err != nil {
		return 0
	}
	days := int(math.Ceil(s.now().Sub(created).Hours() / 24))
	if days < 1 {
		days = 1
	}
	return days
}

package domain

// Status is the closed goal lifecycle enumeration. Server values outside
// the set are normalized at the gateway boundary, never stored raw.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

// NormalizeStatus maps a raw server status string onto the closed enum.
// Legacy variants ("paused" and anything unrecognized) collapse to
// abandoned. The second return reports whether the input was canonical.
func NormalizeStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusActive, StatusCompleted, StatusAbandoned:
		return Status(raw), true
	default:
		return StatusAbandoned, false
	}
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at,omitempty" format:"date-time"`
}

// DayPlan is one day's entry in a goal's generated plan.
type DayPlan struct {
	Day            int        `json:"day"`
	Task           string     `json:"task"`
	Focus          string     `json:"focus,omitempty"`
	Difficulty     Difficulty `json:"difficulty" enum:"Easy,Medium,Hard"`
	EstimatedHours float64    `json:"estimated_hours"`
	IsRestDay      bool       `json:"is_rest_day,omitempty"`
}

type Goal struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Duration    int       `json:"duration"`
	HoursPerDay float64   `json:"hours_per_day"`
	Plan        []DayPlan `json:"plan"`
	Status      Status    `json:"status" enum:"active,completed,abandoned"`
	CreatedAt   string    `json:"created_at" format:"date-time"`
	UpdatedAt   string    `json:"updated_at,omitempty" format:"date-time"`
}

// EstimatedHours is the planned total effort across the full duration.
func (g Goal) EstimatedHours() float64 {
	return float64(g.Duration) * g.HoursPerDay
}

// Progress records one day's tracking for one goal. At most one record
// exists per (goal, day) pair after a cache merge; the backend may hand
// back duplicates and the store reconciles them.
type Progress struct {
	ID             string   `json:"id"`
	GoalID         string   `json:"goal_id"`
	Day            int      `json:"day"`
	Completed      bool     `json:"completed"`
	Comment        string   `json:"comment,omitempty"`
	HoursSpent     *float64 `json:"hours_spent,omitempty"`
	SentimentScore *float64 `json:"sentiment_score,omitempty"`
	Timestamp      string   `json:"timestamp,omitempty" format:"date-time"`
}

// ProgressStats is the server-computed stats shape; the store derives an
// equivalent locally when the endpoint is unavailable.
type ProgressStats struct {
	TotalDays        int     `json:"total_days"`
	CompletedDays    int     `json:"completed_days"`
	CompletionRate   int     `json:"completion_rate"`
	CurrentStreak    int     `json:"current_streak"`
	AverageSentiment float64 `json:"average_sentiment"`
	TotalHoursSpent  float64 `json:"total_hours_spent"`
}

type MoodPoint struct {
	Day   int     `json:"day"`
	Score float64 `json:"score"`
}

// Insight is an AI-generated weekly analysis. Read-only once created.
type Insight struct {
	ID              string      `json:"id"`
	GoalID          string      `json:"goal_id"`
	WeekNumber      int         `json:"week_number"`
	Summary         string      `json:"summary"`
	Highlights      []string    `json:"highlights,omitempty"`
	Blockers        []string    `json:"blockers,omitempty"`
	Recommendations []string    `json:"recommendations,omitempty"`
	MotivationLevel int         `json:"motivation_level"`
	MoodTrend       []MoodPoint `json:"mood_trend,omitempty"`
	GeneratedAt     string      `json:"generated_at" format:"date-time"`
}

// Report is the opaque backend-rendered document plus the filename the
// server suggested for it.
type Report struct {
	Filename string `json:"filename"`
	Data     []byte `json:"-"`
}

package gateway

import (
	"encoding/json"
	"fmt"

	"aivora/internal/domain"
)

// The backend contract drifted across versions: some responses wrap the
// entity in an envelope ({"goal": {...}}), some return it bare, and ids
// arrive as either "_id" or "id". Everything is reconciled here into
// one canonical shape per operation; domain logic never sees the raw
// variants.

type rawUser struct {
	ID        string `json:"id"`
	LegacyID  string `json:"_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"createdAt"`
}

type rawDayPlan struct {
	Day            int     `json:"day"`
	Task           string  `json:"task"`
	Focus          string  `json:"focus"`
	Difficulty     string  `json:"difficulty"`
	EstimatedHours float64 `json:"estimatedHours"`
	IsRestDay      bool    `json:"isRestDay"`
}

type rawGoal struct {
	ID          string       `json:"id"`
	LegacyID    string       `json:"_id"`
	UserID      string       `json:"userId"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Duration    int          `json:"duration"`
	HoursPerDay float64      `json:"hoursPerDay"`
	Plan        []rawDayPlan `json:"plan"`
	Status      string       `json:"status"`
	CreatedAt   string       `json:"createdAt"`
	UpdatedAt   string       `json:"updatedAt"`
}

type rawProgress struct {
	ID             string   `json:"id"`
	LegacyID       string   `json:"_id"`
	GoalID         string   `json:"goalId"`
	Day            int      `json:"day"`
	Completed      bool     `json:"completed"`
	Comment        string   `json:"comment"`
	HoursSpent     *float64 `json:"hoursSpent"`
	SentimentScore *float64 `json:"sentimentScore"`
	Timestamp      string   `json:"timestamp"`
	CreatedAt      string   `json:"createdAt"`
}

type rawMoodPoint struct {
	Day   int     `json:"day"`
	Score float64 `json:"score"`
}

type rawInsight struct {
	ID              string         `json:"id"`
	LegacyID        string         `json:"_id"`
	GoalID          string         `json:"goalId"`
	WeekNumber      int            `json:"weekNumber"`
	Summary         string         `json:"summary"`
	Highlights      []string       `json:"highlights"`
	Blockers        []string       `json:"blockers"`
	Recommendations []string       `json:"recommendations"`
	MotivationLevel int            `json:"motivationLevel"`
	MoodTrend       []rawMoodPoint `json:"moodTrend"`
	GeneratedAt     string         `json:"generatedAt"`
}

type rawStats struct {
	TotalDays        int     `json:"totalDays"`
	CompletedDays    int     `json:"completedDays"`
	CompletionRate   int     `json:"completionRate"`
	CurrentStreak    int     `json:"currentStreak"`
	AverageSentiment float64 `json:"averageSentiment"`
	TotalHoursSpent  float64 `json:"totalHoursSpent"`
}

type rawAuth struct {
	User  rawUser `json:"user"`
	Token string  `json:"token"`
}

func pickID(id, legacy string) string {
	if id != "" {
		return id
	}
	return legacy
}

func (c *Client) normalizeUser(r rawUser) (domain.User, error) {
	id := pickID(r.ID, r.LegacyID)
	if id == "" {
		return domain.User{}, fmt.Errorf("user response missing id")
	}
	return domain.User{ID: id, Name: r.Name, Email: r.Email, CreatedAt: r.CreatedAt}, nil
}

func (c *Client) normalizeGoal(r rawGoal) (domain.Goal, error) {
	id := pickID(r.ID, r.LegacyID)
	if id == "" {
		return domain.Goal{}, fmt.Errorf("goal response missing id")
	}
	status, canonical := domain.NormalizeStatus(r.Status)
	if !canonical {
		c.log().Warn().Str("goal_id", id).Str("status", r.Status).Msg("normalized unrecognized goal status")
	}
	plan := make([]domain.DayPlan, 0, len(r.Plan))
	for _, p := range r.Plan {
		plan = append(plan, domain.DayPlan{
			Day:            p.Day,
			Task:           p.Task,
			Focus:          p.Focus,
			Difficulty:     normalizeDifficulty(p.Difficulty),
			EstimatedHours: p.EstimatedHours,
			IsRestDay:      p.IsRestDay,
		})
	}
	if err := domain.ValidatePlan(plan, r.Duration); err != nil {
		return domain.Goal{}, fmt.Errorf("goal %s: malformed plan: %w", id, err)
	}
	return domain.Goal{
		ID:          id,
		UserID:      r.UserID,
		Title:       r.Title,
		Description: r.Description,
		Duration:    r.Duration,
		HoursPerDay: r.HoursPerDay,
		Plan:        plan,
		Status:      status,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}, nil
}

func normalizeDifficulty(raw string) domain.Difficulty {
	switch raw {
	case "Easy", "easy":
		return domain.DifficultyEasy
	case "Hard", "hard":
		return domain.DifficultyHard
	default:
		return domain.DifficultyMedium
	}
}

func (c *Client) normalizeProgress(r rawProgress) (domain.Progress, error) {
	id := pickID(r.ID, r.LegacyID)
	if id == "" {
		return domain.Progress{}, fmt.Errorf("progress response missing id")
	}
	if r.GoalID == "" {
		return domain.Progress{}, fmt.Errorf("progress %s missing goalId", id)
	}
	ts := r.Timestamp
	if ts == "" {
		ts = r.CreatedAt
	}
	return domain.Progress{
		ID:             id,
		GoalID:         r.GoalID,
		Day:            r.Day,
		Completed:      r.Completed,
		Comment:        r.Comment,
		HoursSpent:     r.HoursSpent,
		SentimentScore: r.SentimentScore,
		Timestamp:      ts,
	}, nil
}

func (c *Client) normalizeInsight(r rawInsight) (domain.Insight, error) {
	id := pickID(r.ID, r.LegacyID)
	if id == "" {
		return domain.Insight{}, fmt.Errorf("insight response missing id")
	}
	trend := make([]domain.MoodPoint, 0, len(r.MoodTrend))
	for _, m := range r.MoodTrend {
		trend = append(trend, domain.MoodPoint{Day: m.Day, Score: m.Score})
	}
	level := r.MotivationLevel
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	return domain.Insight{
		ID:              id,
		GoalID:          r.GoalID,
		WeekNumber:      r.WeekNumber,
		Summary:         r.Summary,
		Highlights:      r.Highlights,
		Blockers:        r.Blockers,
		Recommendations: r.Recommendations,
		MotivationLevel: level,
		MoodTrend:       trend,
		GeneratedAt:     r.GeneratedAt,
	}, nil
}

// decodeEnveloped decodes data into out, unwrapping an optional
// single-key envelope ({"goal": {...}}) if present.
func decodeEnveloped(data []byte, key string, out any) error {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err == nil {
		if inner, ok := env[key]; ok && len(inner) > 0 && string(inner) != "null" {
			return json.Unmarshal(inner, out)
		}
	}
	return json.Unmarshal(data, out)
}

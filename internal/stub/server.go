// Package stub is an in-memory development backend speaking the Aivora
// API contract, including its historical quirks: some endpoints return
// `_id`, some `id`; some wrap the payload in an envelope, some return
// it bare; errors arrive as either a string or a code/message object.
// It exists so the CLI and the gateway tests can run against a real
// HTTP boundary without the production service.
package stub

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"aivora/internal/domain"
)

// Config for the stub handler.
type Config struct {
	JWTSecret string
	BasePath  string
	Logger    *zerolog.Logger
	Now       func() time.Time
}

type apiErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// apiError is the structured error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// stringError is the older envelope, a bare string under "error". The
// auth endpoints still emit this shape.
type stringError struct {
	status int
	Body   string `json:"error"`
}

func (e *stringError) GetStatus() int { return e.status }
func (e *stringError) Error() string  { return e.Body }

func newAPIError(status int, code, message string) huma.StatusError {
	return &apiError{status: status, Body: apiErrorBody{Code: code, Message: message}}
}

func newStringError(status int, message string) huma.StatusError {
	return &stringError{status: status, Body: message}
}

type user struct {
	ID       string
	Name     string
	Email    string
	Password string
	Created  time.Time
}

type goal struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	Duration    int
	HoursPerDay float64
	Status      string
	Plan        []planDay
	Created     time.Time
	Updated     time.Time
}

type planDay struct {
	Day            int     `json:"day"`
	Task           string  `json:"task"`
	Focus          string  `json:"focus"`
	EstimatedHours float64 `json:"estimatedHours"`
	Difficulty     string  `json:"difficulty"`
	IsRestDay      bool    `json:"isRestDay,omitempty"`
}

type progress struct {
	ID        string
	GoalID    string
	OwnerID   string
	Day       int
	Completed bool
	Comment   string
	Hours     *float64
	Sentiment *float64
	Created   time.Time
	Updated   time.Time
}

type insight struct {
	ID              string
	GoalID          string
	OwnerID         string
	Week            int
	Summary         string
	Highlights      []string
	Blockers        []string
	Recommendations []string
	Motivation      int
	MoodTrend       []moodPoint
	Generated       time.Time
}

type moodPoint struct {
	Day   int     `json:"day"`
	Score float64 `json:"score"`
}

// state is the whole in-memory world, guarded by a single mutex.
type state struct {
	mu       sync.Mutex
	users    map[string]*user
	byEmail  map[string]*user
	goals    map[string]*goal
	progress map[string]*progress
	insights map[string]*insight
}

type userKey struct{}

// New returns an HTTP handler exposing the stub API.
func New(cfg Config) http.Handler {
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "aivora-dev-secret"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	st := &state{
		users:    map[string]*user{},
		byEmail:  map[string]*user{},
		goals:    map[string]*goal{},
		progress: map[string]*progress{},
		insights: map[string]*insight{},
	}

	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, codeForStatus(status), msg)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		return newAPIError(status, codeForStatus(status), msg)
	}

	router := chi.NewRouter()
	if cfg.Logger != nil {
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				start := time.Now()
				next.ServeHTTP(w, r)
				cfg.Logger.Debug().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Dur("elapsed", time.Since(start)).
					Msg("handled")
			})
		})
	}
	router.Use(newAuthMiddleware(basePath, cfg))
	hcfg := huma.DefaultConfig("Aivora Dev API", "0.1.0")
	hcfg.DocsPath = ""
	hcfg.OpenAPIPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerAuth(group, st, cfg)
	registerGoals(group, st, cfg)
	registerProgress(group, st, cfg)
	registerInsights(group, st, cfg)
	registerReport(router, st, cfg, basePath)

	return router
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func signToken(userID, secret string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(30 * 24 * time.Hour)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseToken(token, secret string) (string, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwt.RegisteredClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", fmt.Errorf("invalid token")
	}
	return claims.Subject, nil
}

func newAuthMiddleware(basePath string, cfg Config) func(http.Handler) http.Handler {
	open := map[string]bool{
		basePath + "/auth/register": true,
		basePath + "/auth/login":    true,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !strings.HasPrefix(req.URL.Path, basePath) || open[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}
			authz := strings.Fields(req.Header.Get("Authorization"))
			if len(authz) != 2 || !strings.EqualFold(authz[0], "bearer") {
				respondUnauthorized(w)
				return
			}
			userID, err := parseToken(authz[1], cfg.JWTSecret)
			if err != nil {
				respondUnauthorized(w)
				return
			}
			ctx := context.WithValue(req.Context(), userKey{}, userID)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

func respondUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"not authorized, token failed"}`))
}

func userFromContext(ctx context.Context) (string, huma.StatusError) {
	if id, ok := ctx.Value(userKey{}).(string); ok && id != "" {
		return id, nil
	}
	return "", newStringError(http.StatusUnauthorized, "not authorized")
}

// legacyUser carries the Mongo-era `_id` field name.
type legacyUser struct {
	ID        string `json:"_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"createdAt"`
}

func userDTO(u *user) legacyUser {
	return legacyUser{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.Created.UTC().Format(time.RFC3339),
	}
}

type authResponse struct {
	User  legacyUser `json:"user"`
	Token string     `json:"token"`
}

func registerAuth(api huma.API, st *state, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          "/auth/register",
		Summary:       "Create an account",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body struct {
			Name     string `json:"name"`
			Email    string `json:"email"`
			Password string `json:"password"`
		} `json:"body"`
	}) (*struct {
		Body authResponse `json:"body"`
	}, error) {
		name := strings.TrimSpace(input.Body.Name)
		email := strings.ToLower(strings.TrimSpace(input.Body.Email))
		if name == "" || email == "" || len(input.Body.Password) < 6 {
			return nil, newStringError(http.StatusBadRequest, "name, email and a password of at least 6 characters are required")
		}
		st.mu.Lock()
		defer st.mu.Unlock()
		if _, taken := st.byEmail[email]; taken {
			return nil, newStringError(http.StatusConflict, "user already exists")
		}
		u := &user{
			ID:       uuid.NewString(),
			Name:     name,
			Email:    email,
			Password: input.Body.Password,
			Created:  cfg.Now(),
		}
		st.users[u.ID] = u
		st.byEmail[email] = u
		token, err := signToken(u.ID, cfg.JWTSecret, cfg.Now())
		if err != nil {
			return nil, err
		}
		return &struct {
			Body authResponse `json:"body"`
		}{Body: authResponse{User: userDTO(u), Token: token}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Exchange credentials for a token",
	}, func(ctx context.Context, input *struct {
		Body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		} `json:"body"`
	}) (*struct {
		Body authResponse `json:"body"`
	}, error) {
		st.mu.Lock()
		defer st.mu.Unlock()
		u, ok := st.byEmail[strings.ToLower(strings.TrimSpace(input.Body.Email))]
		if !ok || u.Password != input.Body.Password {
			return nil, newStringError(http.StatusUnauthorized, "invalid email or password")
		}
		token, err := signToken(u.ID, cfg.JWTSecret, cfg.Now())
		if err != nil {
			return nil, err
		}
		return &struct {
			Body authResponse `json:"body"`
		}{Body: authResponse{User: userDTO(u), Token: token}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/auth/me",
		Summary:     "Current user",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			User legacyUser `json:"user"`
		} `json:"body"`
	}, error) {
		userID, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st.mu.Lock()
		defer st.mu.Unlock()
		u, ok := st.users[userID]
		if !ok {
			return nil, newStringError(http.StatusUnauthorized, "not authorized")
		}
		out := &struct {
			Body struct {
				User legacyUser `json:"user"`
			} `json:"body"`
		}{}
		out.Body.User = userDTO(u)
		return out, nil
	})
}

// goalDTO is the modern shape with `id`; legacyGoal keeps `_id`. Create
// returns the legacy envelope, reads return the modern bare shape.
type goalDTO struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Duration    int       `json:"duration"`
	HoursPerDay float64   `json:"hoursPerDay"`
	Status      string    `json:"status"`
	Plan        []planDay `json:"plan"`
	CreatedAt   string    `json:"createdAt"`
	UpdatedAt   string    `json:"updatedAt"`
}

type legacyGoal struct {
	ID          string    `json:"_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Duration    int       `json:"duration"`
	HoursPerDay float64   `json:"hoursPerDay"`
	Status      string    `json:"status"`
	Plan        []planDay `json:"plan"`
	CreatedAt   string    `json:"createdAt"`
	UpdatedAt   string    `json:"updatedAt"`
}

func toGoalDTO(g *goal) goalDTO {
	return goalDTO{
		ID:          g.ID,
		Title:       g.Title,
		Description: g.Description,
		Duration:    g.Duration,
		HoursPerDay: g.HoursPerDay,
		Status:      g.Status,
		Plan:        g.Plan,
		CreatedAt:   g.Created.UTC().Format(time.RFC3339),
		UpdatedAt:   g.Updated.UTC().Format(time.RFC3339),
	}
}

func toLegacyGoal(g *goal) legacyGoal {
	d := toGoalDTO(g)
	return legacyGoal{
		ID: d.ID, Title: d.Title, Description: d.Description,
		Duration: d.Duration, HoursPerDay: d.HoursPerDay, Status: d.Status,
		Plan: d.Plan, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt,
	}
}

// generatePlan stands in for the AI planner: a deterministic ramp that
// front-loads fundamentals and hardens toward the end.
func generatePlan(title string, duration int, hoursPerDay float64) []planDay {
	plan := make([]planDay, 0, duration)
	for day := 1; day <= duration; day++ {
		difficulty := "Easy"
		phase := "fundamentals"
		switch {
		case day > (2*duration)/3:
			difficulty = "Hard"
			phase = "advanced practice"
		case day > duration/3:
			difficulty = "Medium"
			phase = "applied practice"
		}
		plan = append(plan, planDay{
			Day:            day,
			Task:           fmt.Sprintf("Work on %s: %s", title, phase),
			Focus:          phase,
			EstimatedHours: hoursPerDay,
			Difficulty:     difficulty,
			IsRestDay:      day%7 == 0,
		})
	}
	return plan
}

func (st *state) ownedGoal(id, ownerID string) (*goal, huma.StatusError) {
	g, ok := st.goals[id]
	if !ok || g.OwnerID != ownerID {
		return nil, newAPIError(http.StatusNotFound, "not_found", "goal not found")
	}
	return g, nil
}

func registerGoals(api huma.API, st *state, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-goal",
		Method:        http.MethodPost,
		Path:          "/goals",
		Summary:       "Create goal with a generated plan",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body struct {
			Title       string  `json:"title"`
			Description string  `json:"description,omitempty"`
			Duration    int     `json:"duration"`
			HoursPerDay float64 `json:"hoursPerDay"`
		} `json:"body"`
	}) (*struct {
		Body struct {
			Goal legacyGoal `json:"goal"`
		} `json:"body"`
	}, error) {
		userID, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		title := strings.TrimSpace(input.Body.Title)
		if len(title) < domain.TitleMinLen {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is too short")
		}
		if len(input.Body.Description) > domain.DescMaxLen {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "description is too long")
		}
		if input.Body.Duration < domain.MinDuration || input.Body.Duration > domain.MaxDuration {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "duration must be between 1 and 365 days")
		}
		if input.Body.HoursPerDay < domain.MinHoursPerDay || input.Body.HoursPerDay > domain.MaxHoursPerDay {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "hoursPerDay must be between 0.5 and 24")
		}
		now := cfg.Now()
		g := &goal{
			ID:          uuid.NewString(),
			OwnerID:     userID,
			Title:       title,
			Description: strings.TrimSpace(input.Body.Description),
			Duration:    input.Body.Duration,
			HoursPerDay: input.Body.HoursPerDay,
			Status:      "active",
			Plan:        generatePlan(title, input.Body.Duration, input.Body.HoursPerDay),
			Created:     now,
			Updated:     now,
		}
		st.mu.Lock()
		st.goals[g.ID] = g
		st.mu.Unlock()
		out := &struct {
			Body struct {
				Goal legacyGoal `json:"goal"`
			} `json:"body"`
		}{}
		out.Body.Goal = toLegacyGoal(g)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-goals",
		Method:      http.MethodGet,
		Path:        "/goals",
		Summary:     "List goals",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
	}) (*struct {
		Body []goalDTO `json:"body"`
	}, error) {
		userID, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st.mu.Lock()
		defer st.mu.Unlock()
		items := make([]goalDTO, 0)
		for _, g := range st.goals {
			if g.OwnerID != userID {
				continue
			}
			if input.Status != "" && g.Status != input.Status {
				continue
			}
			items = append(items, toGoalDTO(g))
		}
		sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt < items[j].CreatedAt })
		return &struct {
			Body []goalDTO `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-goal",
		Method:      http.MethodGet,
		Path:        "/goals/{goal_id}",
		Summary:     "Get goal",
	}, func(ctx context.Context, input *struct {
		GoalID string `path:"goal_id"`
	}) (*struct {
		Body goalDTO `json:"body"`
	}, error) {
		userID, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st.mu.Lock()
		defer st.mu.Unlock()
		g, apiErr := st.ownedGoal(input.GoalID, userID)
		if apiErr != nil {
			return nil, apiErr
		}
		return &struct {
			Body goalDTO `json:"body"`
		}{Body: toGoalDTO(g)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-goal",
		Method:      http.MethodPut,
		Path:        "/goals/{goal_id}",
		Summary:     "Update goal fields",
	}, func(ctx context.Context, input *struct {
		GoalID string `path:"goal_id"`
		Body   struct {
			Title       *string `json:"title,omitempty"`
			Description *string `json:"description,omitempty"`
			Status      *string `json:"status,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body goalDTO `json:"body"`
	}, error) {
		userID, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st.mu.Lock()
		defer st.mu.Unlock()
		g, apiErr := st.ownedGoal(input.GoalID, userID)
		if apiErr != nil {
			return nil, apiErr
		}
		if input.Body.Title != nil {
			title := strings.TrimSpace(*input.Body.Title)
			if len(title) < domain.TitleMinLen {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is too short")
			}
			g.Title = title
		}
		if input.Body.Description != nil {
			if len(*input.Body.Description) > domain.DescMaxLen {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "description is too long")
			}
			g.Description = strings.TrimSpace(*input.Body.Description)
		}
		if input.Body.Status != nil {
			if _, known := domain.NormalizeStatus(*input.Body.Status); !known {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown status")
			}
			g.Status = *input.Body.Status
		}
		g.Updated = cfg.Now()
		return &struct {
			Body goalDTO `json:"body"`
		}{Body: toGoalDTO(g)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-goal",
		Method:      http.MethodDelete,
		Path:        "/goals/{goal_id}",
		Summary:     "Delete goal and its records",
	}, func(ctx context.Context, input *struct {
		GoalID string `path:"goal_id"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		userID, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st.mu.Lock()
		defer st.mu.Unlock()
		if _, apiErr := st.ownedGoal(input.GoalID, userID); apiErr != nil {
			return nil, apiErr
		}
		delete(st.goals, input.GoalID)
		for id, p := range st.progress {
			if p.GoalID == input.GoalID {
				delete(st.progress, id)
			}
		}
		for id, ins := range st.insights {
			if ins.GoalID == input.GoalID {
				delete(st.insights, id)
			}
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"message": "goal removed"}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "regenerate-plan",
		Method:      http.MethodPost,
		Path:        "/goals/{goal_id}/regenerate",
		Summary:     "Regenerate the plan, keeping completed days",
	}, func(ctx context.Context, input *struct {
		GoalID string `path:"goal_id"`
		Body   struct {
			Feedback string `json:"feedback,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body struct {
			Goal goalDTO `json:"goal"`
		} `json:"body"`
	}, error) {
		userID, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st.mu.Lock()
		defer st.mu.Unlock()
		g, apiErr := st.ownedGoal(input.GoalID, userID)
		if apiErr != nil {
			return nil, apiErr
		}
		completed := map[int]bool{}
		for _, p := range st.progress {
			if p.GoalID == g.ID && p.Completed {
				completed[p.Day] = true
			}
		}
		fresh := generatePlan(g.Title+" (revised)", g.Duration, g.HoursPerDay)
		for i, entry := range g.Plan {
			if completed[entry.Day] && i < len(fresh) {
				fresh[i] = entry
			}
		}
		g.Plan = fresh
		g.Updated = cfg.Now()
		out := &struct {
			Body struct {
				Goal goalDTO `json:"goal"`
			} `json:"body"`
		}{}
		out.Body.Goal = toGoalDTO(g)
		return out, nil
	})
}

type progressDTO struct {
	ID             string   `json:"id"`
	GoalID         string   `json:"goalId"`
	Day            int      `json:"day"`
	Completed      bool     `json:"completed"`
	Comment        string   `json:"comment,omitempty"`
	HoursSpent     *float64 `json:"hoursSpent,omitempty"`
	SentimentScore *float64 `json:"sentimentScore,omitempty"`
	Timestamp      string   `json:"timestamp"`
	CreatedAt      string   `json:"createdAt"`
}

func toProgressDTO(p *progress) progressDTO {
	return progressDTO{
		ID:             p.ID,
		GoalID:         p.GoalID,
		Day:            p.Day,
		Completed:      p.Completed,
		Comment:        p.Comment,
		HoursSpent:     p.Hours,
		SentimentScore: p.Sentiment,
		Timestamp:      p.Updated.UTC().Format(time.RFC3339),
		CreatedAt:      p.Created.UTC().Format(time.RFC3339),
	}
}

// scoreSentiment stands in for the AI scorer: a keyword count squashed
// into [-1, 1]. Empty comments stay unscored.
func scoreSentiment(comment string) *float64 {
	if strings.TrimSpace(comment) == "" {
		return nil
	}
	positive := []string{"great", "good", "happy", "progress", "easy", "fun", "proud", "love"}
	negative := []string{"hard", "tired", "stuck", "frustrat", "bad", "difficult", "hate", "boring"}
	lowered := strings.ToLower(comment)
	score := 0.0
	for _, w := range positive {
		if strings.Contains(lowered, w) {
			score += 0.25
		}
	}
	for _, w := range negative {
		if strings.Contains(lowered, w) {
			score -= 0.25
		}
	}
	clamped := math.Max(-1, math.Min(1, score))
	return &clamped
}

func registerProgress(api huma.API, st *state, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-progress",
		Method:        http.MethodPost,
		Path:          "/progress",
		Summary:       "Upsert a day's tracking record",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body struct {
			GoalID     string   `json:"goalId"`
			Day        int      `json:"day"`
			Completed  bool     `json:"completed"`
			Comment    string   `json:"comment,omitempty"`
			HoursSpent *float64 `json:"hoursSpent,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body struct {
			Progress progressDTO `json:"progress"`
		} `json:"body"`
	}, error) {
		userID, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st.mu.Lock()
		defer st.mu.Unlock()
		g, apiErr := st.ownedGoal(input.Body.GoalID, userID)
		if apiErr != nil {
			return nil, apiErr
		}
		if input.Body.Day < 1 || input.Body.Day > g.Duration {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", fmt.Sprintf("day must be between 1 and %d", g.Duration))
		}
		now := cfg.Now()
		var rec *progress
		for _, p := range st.progress {
			if p.GoalID == g.ID && p.Day == input.Body.Day {
				rec = p
				break
			}
		}
		if rec == nil {
			rec = &progress{
				ID:      uuid.NewString(),
				GoalID:  g.ID,
				OwnerID: userID,
				Day:     input.Body.Day,
				Created: now,
			}
			st.progress[rec.ID] = rec
		}
		rec.Completed = input.Body.Completed
		rec.Comment = input.Body.Comment
		rec.Hours = input.Body.HoursSpent
		rec.Sentiment = scoreSentiment(input.Body.Comment)
		rec.Updated = now
		out := &struct {
			Body struct {
				Progress progressDTO `json:"progress"`
			} `json:"body"`
		}{}
		out.Body.Progress = toProgressDTO(rec)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-progress",
		Method:      http.MethodPut,
		Path:        "/progress/{progress_id}",
		Summary:     "Amend a tracking record",
	}, func(ctx context.Context, input *struct {
		ProgressID string `path:"progress_id"`
		Body       struct {
			Completed *bool   `json:"completed,omitempty"`
			Comment   *string `json:"comment,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body progressDTO `json:"body"`
	}, error) {
		userID, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st.mu.Lock()
		defer st.mu.Unlock()
		rec, ok := st.progress[input.ProgressID]
		if !ok || rec.OwnerID != userID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "progress record not found")
		}
		if input.Body.Completed != nil {
			rec.Completed = *input.Body.Completed
		}
		if input.Body.Comment != nil {
			rec.Comment = *input.Body.Comment
			rec.Sentiment = scoreSentiment(*input.Body.Comment)
		}
		rec.Updated = cfg.Now()
		return &struct {
			Body progressDTO `json:"body"`
		}{Body: toProgressDTO(rec)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-progress",
		Method:      http.MethodGet,
		Path:        "/progress/goal/{goal_id}",
		Summary:     "List a goal's tracking records",
	}, func(ctx context.Context, input *struct {
		GoalID string `path:"goal_id"`
	}) (*struct {
		Body []progressDTO `json:"body"`
	}, error) {
		userID, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st.mu.Lock()
		defer st.mu.Unlock()
		if _, apiErr := st.ownedGoal(input.GoalID, userID); apiErr != nil {
			return nil, apiErr
		}
		items := make([]progressDTO, 0)
		for _, p := range st.progress {
			if p.GoalID == input.GoalID {
				items = append(items, toProgressDTO(p))
			}
		}
		sort.Slice(items, func(i, j int) bool { return items[i].Day < items[j].Day })
		return &struct {
			Body []progressDTO `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "progress-stats",
		Method:      http.MethodGet,
		Path:        "/progress/stats/{goal_id}",
		Summary:     "Aggregate stats for a goal",
	}, func(ctx context.Context, input *struct {
		GoalID string `path:"goal_id"`
	}) (*struct {
		Body struct {
			Stats statsDTO `json:"stats"`
		} `json:"body"`
	}, error) {
		userID, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st.mu.Lock()
		defer st.mu.Unlock()
		g, apiErr := st.ownedGoal(input.GoalID, userID)
		if apiErr != nil {
			return nil, apiErr
		}
		out := &struct {
			Body struct {
				Stats statsDTO `json:"stats"`
			} `json:"body"`
		}{}
		out.Body.Stats = computeStats(st, g, cfg.Now())
		return out, nil
	})
}

type statsDTO struct {
	TotalDays        int     `json:"totalDays"`
	CompletedDays    int     `json:"completedDays"`
	CompletionRate   float64 `json:"completionRate"`
	CurrentStreak    int     `json:"currentStreak"`
	AverageSentiment float64 `json:"averageSentiment"`
	TotalHoursSpent  float64 `json:"totalHoursSpent"`
}

func computeStats(st *state, g *goal, now time.Time) statsDTO {
	stats := statsDTO{TotalDays: g.Duration}
	var sentimentSum float64
	var sentimentCount int
	var dates []time.Time
	for _, p := range st.progress {
		if p.GoalID != g.ID {
			continue
		}
		if p.Completed {
			stats.CompletedDays++
			dates = append(dates, p.Updated)
		}
		if p.Sentiment != nil {
			sentimentSum += *p.Sentiment
			sentimentCount++
		}
		if p.Hours != nil {
			stats.TotalHoursSpent += *p.Hours
		}
	}
	if g.Duration > 0 {
		stats.CompletionRate = math.Round(float64(stats.CompletedDays) / float64(g.Duration) * 100)
	}
	if sentimentCount > 0 {
		stats.AverageSentiment = sentimentSum / float64(sentimentCount)
	}
	stats.CurrentStreak = streak(dates, now)
	return stats
}

// streak counts consecutive calendar days ending today or yesterday.
func streak(dates []time.Time, now time.Time) int {
	seen := map[time.Time]bool{}
	for _, d := range dates {
		u := d.UTC()
		seen[time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)] = true
	}
	if len(seen) == 0 {
		return 0
	}
	u := now.UTC()
	day := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	if !seen[day] {
		day = day.AddDate(0, 0, -1)
		if !seen[day] {
			return 0
		}
	}
	count := 0
	for seen[day] {
		count++
		day = day.AddDate(0, 0, -1)
	}
	return count
}

type insightDTO struct {
	ID              string      `json:"id"`
	GoalID          string      `json:"goalId"`
	WeekNumber      int         `json:"weekNumber"`
	Summary         string      `json:"summary"`
	Highlights      []string    `json:"highlights,omitempty"`
	Blockers        []string    `json:"blockers,omitempty"`
	Recommendations []string    `json:"recommendations,omitempty"`
	MotivationLevel int         `json:"motivationLevel"`
	MoodTrend       []moodPoint `json:"moodTrend,omitempty"`
	GeneratedAt     string      `json:"generatedAt"`
}

func toInsightDTO(i *insight) insightDTO {
	return insightDTO{
		ID:              i.ID,
		GoalID:          i.GoalID,
		WeekNumber:      i.Week,
		Summary:         i.Summary,
		Highlights:      i.Highlights,
		Blockers:        i.Blockers,
		Recommendations: i.Recommendations,
		MotivationLevel: i.Motivation,
		MoodTrend:       i.MoodTrend,
		GeneratedAt:     i.Generated.UTC().Format(time.RFC3339),
	}
}

func registerInsights(api huma.API, st *state, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "generate-insight",
		Method:        http.MethodPost,
		Path:          "/insights/generate/{goal_id}",
		Summary:       "Generate a weekly insight",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		GoalID string `path:"goal_id"`
	}) (*struct {
		Body struct {
			Insight insightDTO `json:"insight"`
		} `json:"body"`
	}, error) {
		userID, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st.mu.Lock()
		defer st.mu.Unlock()
		g, apiErr := st.ownedGoal(input.GoalID, userID)
		if apiErr != nil {
			return nil, apiErr
		}
		stats := computeStats(st, g, cfg.Now())
		if stats.CompletedDays == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "no completed progress to analyze")
		}
		maxDay := 0
		var trend []moodPoint
		for _, p := range st.progress {
			if p.GoalID != g.ID {
				continue
			}
			if p.Day > maxDay {
				maxDay = p.Day
			}
			if p.Sentiment != nil {
				trend = append(trend, moodPoint{Day: p.Day, Score: *p.Sentiment})
			}
		}
		sort.Slice(trend, func(i, j int) bool { return trend[i].Day < trend[j].Day })
		highlights := []string{fmt.Sprintf("Completed %d of %d days", stats.CompletedDays, g.Duration)}
		var blockers []string
		if stats.AverageSentiment < 0 {
			blockers = append(blockers, "Recent comments lean negative; consider an easier pace")
		}
		ins := &insight{
			ID:              uuid.NewString(),
			GoalID:          g.ID,
			OwnerID:         userID,
			Week:            (maxDay-1)/7 + 1,
			Summary:         fmt.Sprintf("You completed %d of %d days (%.0f%%). Keep the momentum on %q.", stats.CompletedDays, g.Duration, stats.CompletionRate, g.Title),
			Highlights:      highlights,
			Blockers:        blockers,
			Recommendations: []string{fmt.Sprintf("Aim for %.1f hours tomorrow to stay on plan", g.HoursPerDay)},
			Motivation:      int(math.Min(100, stats.CompletionRate+float64(stats.CurrentStreak*5))),
			MoodTrend:       trend,
			Generated:       cfg.Now(),
		}
		st.insights[ins.ID] = ins
		out := &struct {
			Body struct {
				Insight insightDTO `json:"insight"`
			} `json:"body"`
		}{}
		out.Body.Insight = toInsightDTO(ins)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-insights",
		Method:      http.MethodGet,
		Path:        "/insights/goal/{goal_id}",
		Summary:     "List a goal's insights",
	}, func(ctx context.Context, input *struct {
		GoalID string `path:"goal_id"`
	}) (*struct {
		Body []insightDTO `json:"body"`
	}, error) {
		userID, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st.mu.Lock()
		defer st.mu.Unlock()
		if _, apiErr := st.ownedGoal(input.GoalID, userID); apiErr != nil {
			return nil, apiErr
		}
		items := make([]insightDTO, 0)
		for _, ins := range st.insights {
			if ins.GoalID == input.GoalID {
				items = append(items, toInsightDTO(ins))
			}
		}
		sort.Slice(items, func(i, j int) bool { return items[i].GeneratedAt < items[j].GeneratedAt })
		return &struct {
			Body []insightDTO `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "latest-insight",
		Method:      http.MethodGet,
		Path:        "/insights/latest/{goal_id}",
		Summary:     "Most recent insight for a goal",
	}, func(ctx context.Context, input *struct {
		GoalID string `path:"goal_id"`
	}) (*struct {
		Body struct {
			Insight insightDTO `json:"insight"`
		} `json:"body"`
	}, error) {
		userID, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st.mu.Lock()
		defer st.mu.Unlock()
		if _, apiErr := st.ownedGoal(input.GoalID, userID); apiErr != nil {
			return nil, apiErr
		}
		var latest *insight
		for _, ins := range st.insights {
			if ins.GoalID != input.GoalID {
				continue
			}
			if latest == nil || ins.Generated.After(latest.Generated) {
				latest = ins
			}
		}
		if latest == nil {
			return nil, newAPIError(http.StatusNotFound, "not_found", "no insights yet")
		}
		out := &struct {
			Body struct {
				Insight insightDTO `json:"insight"`
			} `json:"body"`
		}{}
		out.Body.Insight = toInsightDTO(latest)
		return out, nil
	})
}

// registerReport serves the PDF outside huma; it is a binary download
// with a Content-Disposition filename, not a JSON resource.
func registerReport(router chi.Router, st *state, cfg Config, basePath string) {
	router.Get(basePath+"/pdf/report/{goal_id}", func(w http.ResponseWriter, r *http.Request) {
		userID, ok := r.Context().Value(userKey{}).(string)
		if !ok || userID == "" {
			respondUnauthorized(w)
			return
		}
		goalID := chi.URLParam(r, "goal_id")
		st.mu.Lock()
		g, apiErr := st.ownedGoal(goalID, userID)
		var stats statsDTO
		if apiErr == nil {
			stats = computeStats(st, g, cfg.Now())
		}
		st.mu.Unlock()
		if apiErr != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"code":"not_found","message":"goal not found"}}`))
			return
		}
		body := fmt.Sprintf("Aivora report for %q: %d/%d days completed, %.0f%% completion, streak %d.",
			g.Title, stats.CompletedDays, stats.TotalDays, stats.CompletionRate, stats.CurrentStreak)
		pdf := minimalPDF(body)
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "goal-report-"+goalID+".pdf"))
		_, _ = w.Write(pdf)
	})
}

// minimalPDF renders a single-page PDF with one line of text. Enough
// for clients that only save the bytes to disk.
func minimalPDF(text string) []byte {
	escaped := strings.NewReplacer("(", `\(`, ")", `\)`, `\`, `\\`).Replace(text)
	stream := fmt.Sprintf("BT /F1 12 Tf 50 750 Td (%s) Tj ET", escaped)
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, 0, 5)
	obj := func(body string) {
		offsets = append(offsets, b.Len())
		b.WriteString(body)
	}
	obj("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	obj("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	obj("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>\nendobj\n")
	obj(fmt.Sprintf("4 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", len(stream), stream))
	obj("5 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")
	xref := b.Len()
	b.WriteString(fmt.Sprintf("xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1))
	for _, off := range offsets {
		b.WriteString(fmt.Sprintf("%010d 00000 n \n", off))
	}
	b.WriteString(fmt.Sprintf("trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref))
	return []byte(b.String())
}

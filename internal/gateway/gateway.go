package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"aivora/internal/domain"
)

// CredentialSource supplies the bearer credential for outbound calls
// and is told when the backend rejects it. Session state implements it;
// callers never attach credentials themselves.
type CredentialSource interface {
	Token() string
	Invalidate(reason string)
}

// Client is the Aivora backend API client. Every mutating call is a
// single non-idempotent remote write; the client performs no retries.
type Client struct {
	BaseURL     string
	Credentials CredentialSource
	HTTPClient  *http.Client
	// Timeout bounds ordinary requests. Generation calls (goal
	// creation, plan regeneration, insights) run against GenTimeout
	// because the backend invokes an AI model synchronously.
	Timeout    time.Duration
	GenTimeout time.Duration
	Logger     *zerolog.Logger
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		Timeout:    15 * time.Second,
		GenTimeout: 2 * time.Minute,
	}
}

func (c *Client) log() *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	l := zerolog.Nop()
	return &l
}

// Register creates an account and returns the user plus a fresh token.
func (c *Client) Register(ctx context.Context, name, email, password string) (domain.User, string, error) {
	body := map[string]any{"name": name, "email": email, "password": password}
	data, err := c.do(ctx, http.MethodPost, "auth/register", body, c.Timeout)
	if err != nil {
		return domain.User{}, "", err
	}
	return c.decodeAuth(data)
}

// Login exchanges credentials for the user plus a token.
func (c *Client) Login(ctx context.Context, email, password string) (domain.User, string, error) {
	body := map[string]any{"email": email, "password": password}
	data, err := c.do(ctx, http.MethodPost, "auth/login", body, c.Timeout)
	if err != nil {
		return domain.User{}, "", err
	}
	return c.decodeAuth(data)
}

func (c *Client) decodeAuth(data []byte) (domain.User, string, error) {
	var resp rawAuth
	if err := json.Unmarshal(data, &resp); err != nil {
		return domain.User{}, "", fmt.Errorf("decode auth response: %w", err)
	}
	if resp.Token == "" {
		return domain.User{}, "", fmt.Errorf("auth response missing token")
	}
	u, err := c.normalizeUser(resp.User)
	if err != nil {
		return domain.User{}, "", err
	}
	return u, resp.Token, nil
}

// GetCurrentUser validates the attached credential.
func (c *Client) GetCurrentUser(ctx context.Context) (domain.User, error) {
	data, err := c.do(ctx, http.MethodGet, "auth/me", nil, c.Timeout)
	if err != nil {
		return domain.User{}, err
	}
	var r rawUser
	if err := decodeEnveloped(data, "user", &r); err != nil {
		return domain.User{}, fmt.Errorf("decode user: %w", err)
	}
	return c.normalizeUser(r)
}

// CreateGoal triggers plan generation on the backend. This is a
// long-running call; it holds until the AI-generated plan is ready.
func (c *Client) CreateGoal(ctx context.Context, title, description string, duration int, hoursPerDay float64) (domain.Goal, error) {
	body := map[string]any{
		"title":       title,
		"duration":    duration,
		"hoursPerDay": hoursPerDay,
	}
	if description != "" {
		body["description"] = description
	}
	data, err := c.do(ctx, http.MethodPost, "goals", body, c.GenTimeout)
	if err != nil {
		return domain.Goal{}, err
	}
	return c.decodeGoal(data)
}

// ListGoals fetches all goals, optionally filtered by status.
func (c *Client) ListGoals(ctx context.Context, status string) ([]domain.Goal, error) {
	endpoint := "goals"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	data, err := c.do(ctx, http.MethodGet, endpoint, nil, c.Timeout)
	if err != nil {
		return nil, err
	}
	var raws []rawGoal
	if err := decodeList(data, "goals", &raws); err != nil {
		return nil, fmt.Errorf("decode goals: %w", err)
	}
	goals := make([]domain.Goal, 0, len(raws))
	for _, r := range raws {
		g, err := c.normalizeGoal(r)
		if err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	return goals, nil
}

func (c *Client) GetGoal(ctx context.Context, id string) (domain.Goal, error) {
	data, err := c.do(ctx, http.MethodGet, "goals/"+url.PathEscape(id), nil, c.Timeout)
	if err != nil {
		return domain.Goal{}, err
	}
	return c.decodeGoal(data)
}

// GoalUpdate carries the mutable goal fields; nil means unchanged.
type GoalUpdate struct {
	Title       *string
	Description *string
	Status      *domain.Status
}

func (c *Client) UpdateGoal(ctx context.Context, id string, upd GoalUpdate) (domain.Goal, error) {
	body := map[string]any{}
	if upd.Title != nil {
		body["title"] = *upd.Title
	}
	if upd.Description != nil {
		body["description"] = *upd.Description
	}
	if upd.Status != nil {
		body["status"] = string(*upd.Status)
	}
	data, err := c.do(ctx, http.MethodPut, "goals/"+url.PathEscape(id), body, c.Timeout)
	if err != nil {
		return domain.Goal{}, err
	}
	return c.decodeGoal(data)
}

func (c *Client) DeleteGoal(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "goals/"+url.PathEscape(id), nil, c.Timeout)
	return err
}

// RegeneratePlan requests a new plan for the goal's remaining days. The
// backend contract keeps completed days' entries unchanged; the store
// reconciles the returned plan against cached progress regardless.
func (c *Client) RegeneratePlan(ctx context.Context, id, feedback string) (domain.Goal, error) {
	body := map[string]any{}
	if feedback != "" {
		body["feedback"] = feedback
	}
	data, err := c.do(ctx, http.MethodPost, "goals/"+url.PathEscape(id)+"/regenerate", body, c.GenTimeout)
	if err != nil {
		return domain.Goal{}, err
	}
	return c.decodeGoal(data)
}

// ProgressInput is the caller-supplied part of a progress submission.
// SentimentScore is computed server-side from the comment and never
// supplied here.
type ProgressInput struct {
	GoalID     string
	Day        int
	Completed  bool
	Comment    string
	HoursSpent *float64
}

// SubmitProgress records tracking for one day. The transport operation
// is a create, but the backend upserts by (goal, day).
func (c *Client) SubmitProgress(ctx context.Context, in ProgressInput) (domain.Progress, error) {
	body := map[string]any{
		"goalId":    in.GoalID,
		"day":       in.Day,
		"completed": in.Completed,
	}
	if in.Comment != "" {
		body["comment"] = in.Comment
	}
	if in.HoursSpent != nil {
		body["hoursSpent"] = *in.HoursSpent
	}
	data, err := c.do(ctx, http.MethodPost, "progress", body, c.Timeout)
	if err != nil {
		return domain.Progress{}, err
	}
	return c.decodeProgress(data)
}

// UpdateProgress amends an existing record by id.
func (c *Client) UpdateProgress(ctx context.Context, id string, completed *bool, comment *string) (domain.Progress, error) {
	body := map[string]any{}
	if completed != nil {
		body["completed"] = *completed
	}
	if comment != nil {
		body["comment"] = *comment
	}
	data, err := c.do(ctx, http.MethodPut, "progress/"+url.PathEscape(id), body, c.Timeout)
	if err != nil {
		return domain.Progress{}, err
	}
	return c.decodeProgress(data)
}

func (c *Client) ListProgress(ctx context.Context, goalID string) ([]domain.Progress, error) {
	data, err := c.do(ctx, http.MethodGet, "progress/goal/"+url.PathEscape(goalID), nil, c.Timeout)
	if err != nil {
		return nil, err
	}
	var raws []rawProgress
	if err := decodeList(data, "progress", &raws); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	records := make([]domain.Progress, 0, len(raws))
	for _, r := range raws {
		p, err := c.normalizeProgress(r)
		if err != nil {
			return nil, err
		}
		records = append(records, p)
	}
	return records, nil
}

// GetProgressStats fetches the server-computed stats for a goal.
func (c *Client) GetProgressStats(ctx context.Context, goalID string) (domain.ProgressStats, error) {
	data, err := c.do(ctx, http.MethodGet, "progress/stats/"+url.PathEscape(goalID), nil, c.Timeout)
	if err != nil {
		return domain.ProgressStats{}, err
	}
	var r rawStats
	if err := decodeEnveloped(data, "stats", &r); err != nil {
		return domain.ProgressStats{}, fmt.Errorf("decode stats: %w", err)
	}
	return domain.ProgressStats{
		TotalDays:        r.TotalDays,
		CompletedDays:    r.CompletedDays,
		CompletionRate:   r.CompletionRate,
		CurrentStreak:    r.CurrentStreak,
		AverageSentiment: r.AverageSentiment,
		TotalHoursSpent:  r.TotalHoursSpent,
	}, nil
}

// GenerateInsight asks the backend for a fresh weekly analysis.
func (c *Client) GenerateInsight(ctx context.Context, goalID string) (domain.Insight, error) {
	data, err := c.do(ctx, http.MethodPost, "insights/generate/"+url.PathEscape(goalID), nil, c.GenTimeout)
	if err != nil {
		return domain.Insight{}, err
	}
	return c.decodeInsight(data)
}

func (c *Client) ListInsights(ctx context.Context, goalID string) ([]domain.Insight, error) {
	data, err := c.do(ctx, http.MethodGet, "insights/goal/"+url.PathEscape(goalID), nil, c.Timeout)
	if err != nil {
		return nil, err
	}
	var raws []rawInsight
	if err := decodeList(data, "insights", &raws); err != nil {
		return nil, fmt.Errorf("decode insights: %w", err)
	}
	insights := make([]domain.Insight, 0, len(raws))
	for _, r := range raws {
		ins, err := c.normalizeInsight(r)
		if err != nil {
			return nil, err
		}
		insights = append(insights, ins)
	}
	return insights, nil
}

func (c *Client) GetLatestInsight(ctx context.Context, goalID string) (domain.Insight, error) {
	data, err := c.do(ctx, http.MethodGet, "insights/latest/"+url.PathEscape(goalID), nil, c.Timeout)
	if err != nil {
		return domain.Insight{}, err
	}
	return c.decodeInsight(data)
}

// FetchReport retrieves the backend-rendered report document. The bytes
// are opaque to this client.
func (c *Client) FetchReport(ctx context.Context, goalID string) (domain.Report, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.GenTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.base()+"/pdf/report/"+url.PathEscape(goalID), nil)
	if err != nil {
		return domain.Report{}, err
	}
	c.attachCredential(req)
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return domain.Report{}, &NetworkError{Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return domain.Report{}, c.statusError(resp.StatusCode, b)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Report{}, &NetworkError{Err: err}
	}
	filename := "goal-report.pdf"
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil && params["filename"] != "" {
			filename = params["filename"]
		}
	}
	return domain.Report{Filename: filename, Data: data}, nil
}

func (c *Client) decodeGoal(data []byte) (domain.Goal, error) {
	var r rawGoal
	if err := decodeEnveloped(data, "goal", &r); err != nil {
		return domain.Goal{}, fmt.Errorf("decode goal: %w", err)
	}
	return c.normalizeGoal(r)
}

func (c *Client) decodeProgress(data []byte) (domain.Progress, error) {
	var r rawProgress
	if err := decodeEnveloped(data, "progress", &r); err != nil {
		return domain.Progress{}, fmt.Errorf("decode progress: %w", err)
	}
	return c.normalizeProgress(r)
}

func (c *Client) decodeInsight(data []byte) (domain.Insight, error) {
	var r rawInsight
	if err := decodeEnveloped(data, "insight", &r); err != nil {
		return domain.Insight{}, fmt.Errorf("decode insight: %w", err)
	}
	return c.normalizeInsight(r)
}

// decodeList decodes either a bare JSON array or an {"<key>": [...]}
// envelope into out.
func decodeList(data []byte, key string, out any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, out)
	}
	return decodeEnveloped(data, key, out)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, timeout time.Duration) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	fullURL := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(reqCtx, method, fullURL, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.attachCredential(req)
	start := time.Now()
	resp, err := c.httpClient().Do(req)
	if err != nil {
		c.log().Debug().Str("method", method).Str("endpoint", endpoint).Err(err).Msg("request failed")
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	c.log().Debug().
		Str("method", method).
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request")
	if resp.StatusCode >= 300 {
		return nil, c.statusError(resp.StatusCode, data)
	}
	return data, nil
}

// statusError maps a non-2xx response onto the error taxonomy. A 401
// from any operation is treated uniformly as "session invalid" and
// reported to the credential source before returning.
func (c *Client) statusError(status int, body []byte) error {
	msg := errorMessage(body, status)
	switch {
	case status == http.StatusUnauthorized:
		if c.Credentials != nil {
			c.Credentials.Invalidate(msg)
		}
		return &AuthError{Message: msg}
	case status == http.StatusNotFound:
		return &NotFoundError{Message: msg}
	case status == http.StatusConflict:
		return &ConflictError{Message: msg}
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return &ValidationError{Message: msg}
	case status >= 500:
		return &UpstreamError{Message: msg}
	default:
		return &UpstreamError{Message: fmt.Sprintf("unexpected status %d: %s", status, msg)}
	}
}

// errorMessage extracts a human-readable message from either error
// envelope the backend has been observed to emit: {"error": "..."} or
// {"error": {"code": ..., "message": ...}}.
func errorMessage(body []byte, status int) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error) > 0 {
		var s string
		if json.Unmarshal(envelope.Error, &s) == nil && s != "" {
			return s
		}
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(envelope.Error, &obj) == nil && obj.Message != "" {
			return obj.Message
		}
	}
	return http.StatusText(status)
}

func (c *Client) attachCredential(req *http.Request) {
	if c.Credentials == nil {
		return
	}
	if token := c.Credentials.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	return c.HTTPClient
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

package gateway_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"aivora/internal/domain"
	"aivora/internal/gateway"
)

type recordingCreds struct {
	token       string
	invalidated []string
}

func (r *recordingCreds) Token() string            { return r.token }
func (r *recordingCreds) Invalidate(reason string) { r.invalidated = append(r.invalidated, reason) }

func newClient(t *testing.T, handler http.Handler) (*gateway.Client, *recordingCreds) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := gateway.New(srv.URL)
	creds := &recordingCreds{token: "tok-test"}
	c.Credentials = creds
	return c, creds
}

const goalEnvelope = `{"goal": {
	"_id": "legacy-1",
	"title": "Learn Go",
	"duration": 2,
	"hoursPerDay": 1.5,
	"status": "paused",
	"plan": [
		{"day": 1, "task": "basics", "estimatedHours": 1.5, "difficulty": "easy"},
		{"day": 2, "task": "practice", "estimatedHours": 1.5, "difficulty": "Hard"}
	],
	"createdAt": "2026-08-01T00:00:00Z"
}}`

func TestGetGoalNormalizesLegacyShape(t *testing.T) {
	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-test" {
			t.Errorf("credential not attached: %q", got)
		}
		w.Write([]byte(goalEnvelope))
	}))
	g, err := c.GetGoal(context.Background(), "legacy-1")
	if err != nil {
		t.Fatal(err)
	}
	if g.ID != "legacy-1" {
		t.Fatalf("_id should populate ID, got %q", g.ID)
	}
	if g.Status != domain.StatusAbandoned {
		t.Fatalf("legacy status must normalize to abandoned, got %q", g.Status)
	}
	if len(g.Plan) != 2 || g.Plan[0].Difficulty != domain.DifficultyEasy || g.Plan[1].Difficulty != domain.DifficultyHard {
		t.Fatalf("plan not normalized: %+v", g.Plan)
	}
}

func TestListGoalsAcceptsBareArray(t *testing.T) {
	body := `[{"id": "g1", "title": "A", "duration": 1, "hoursPerDay": 1, "status": "active",
		"plan": [{"day": 1, "task": "x", "estimatedHours": 1, "difficulty": "Medium"}]}]`
	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("status"); got != "active" {
			t.Errorf("status filter not forwarded: %q", got)
		}
		w.Write([]byte(body))
	}))
	goals, err := c.ListGoals(context.Background(), "active")
	if err != nil {
		t.Fatal(err)
	}
	if len(goals) != 1 || goals[0].ID != "g1" {
		t.Fatalf("unexpected goals: %+v", goals)
	}
}

func TestMalformedPlanRejected(t *testing.T) {
	// Three-day goal with a two-entry plan violates the plan invariant.
	body := `{"id": "g1", "title": "A", "duration": 3, "hoursPerDay": 1, "status": "active",
		"plan": [{"day": 1, "task": "x", "estimatedHours": 1, "difficulty": "Easy"},
		         {"day": 2, "task": "y", "estimatedHours": 1, "difficulty": "Easy"}]}`
	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	if _, err := c.GetGoal(context.Background(), "g1"); err == nil || !strings.Contains(err.Error(), "malformed plan") {
		t.Fatalf("want malformed plan error, got %v", err)
	}
}

func TestStatusErrorTaxonomy(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"validation 400", http.StatusBadRequest, `{"error": "title is too short"}`,
			func(err error) bool { var e *gateway.ValidationError; return errors.As(err, &e) }},
		{"validation 422", http.StatusUnprocessableEntity, `{"error": {"code": "validation_failed", "message": "bad"}}`,
			func(err error) bool { var e *gateway.ValidationError; return errors.As(err, &e) }},
		{"not found", http.StatusNotFound, `{"error": "goal not found"}`,
			func(err error) bool { var e *gateway.NotFoundError; return errors.As(err, &e) }},
		{"conflict", http.StatusConflict, `{"error": "user already exists"}`,
			func(err error) bool { var e *gateway.ConflictError; return errors.As(err, &e) }},
		{"upstream", http.StatusBadGateway, `{"error": "model overloaded"}`,
			func(err error) bool { var e *gateway.UpstreamError; return errors.As(err, &e) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			_, err := c.GetGoal(context.Background(), "g1")
			if err == nil || !tc.check(err) {
				t.Fatalf("wrong error kind: %v", err)
			}
		})
	}
}

func TestUnauthorizedInvalidatesSession(t *testing.T) {
	c, creds := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "not authorized, token failed"}`))
	}))
	_, err := c.ListGoals(context.Background(), "")
	var ae *gateway.AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("want AuthError, got %v", err)
	}
	if len(creds.invalidated) != 1 || creds.invalidated[0] != "not authorized, token failed" {
		t.Fatalf("credential source not told: %v", creds.invalidated)
	}
}

func TestErrorMessageShapes(t *testing.T) {
	// Object-shaped envelope.
	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error": {"code": "conflict", "message": "already registered"}}`))
	}))
	_, err := c.GetGoal(context.Background(), "g1")
	if err == nil || err.Error() != "already registered" {
		t.Fatalf("object envelope message lost: %v", err)
	}

	// Unparseable body falls back to the status text.
	c2, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`<html>busted</html>`))
	}))
	_, err = c2.GetGoal(context.Background(), "g1")
	if err == nil || err.Error() != "Conflict" {
		t.Fatalf("want status text fallback, got %v", err)
	}
}

func TestNetworkErrorWraps(t *testing.T) {
	c := gateway.New("http://127.0.0.1:1") // nothing listens here
	_, err := c.ListGoals(context.Background(), "")
	var ne *gateway.NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("want NetworkError, got %v", err)
	}
}

func TestLoginReturnsUserAndToken(t *testing.T) {
	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user": {"_id": "u1", "name": "Ada", "email": "ada@example.com"}, "token": "tok-fresh"}`))
	}))
	u, token, err := c.Login(context.Background(), "ada@example.com", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "u1" || token != "tok-fresh" {
		t.Fatalf("bad auth decode: %+v %q", u, token)
	}
}

func TestLoginMissingTokenRejected(t *testing.T) {
	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user": {"id": "u1"}}`))
	}))
	if _, _, err := c.Login(context.Background(), "a@b.c", "pw"); err == nil {
		t.Fatal("auth response without token must fail")
	}
}

func TestFetchReportFilename(t *testing.T) {
	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="weekly.pdf"`)
		w.Write([]byte("%PDF-1.4 fake"))
	}))
	rep, err := c.FetchReport(context.Background(), "g1")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Filename != "weekly.pdf" {
		t.Fatalf("filename not parsed: %q", rep.Filename)
	}
	if len(rep.Data) == 0 {
		t.Fatal("report bytes missing")
	}

	// No header falls back to the default name.
	c2, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("%PDF-1.4 fake"))
	}))
	rep, err = c2.FetchReport(context.Background(), "g1")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Filename != "goal-report.pdf" {
		t.Fatalf("default filename wrong: %q", rep.Filename)
	}
}

func TestProgressTimestampFallsBackToCreatedAt(t *testing.T) {
	c, _ := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"progress": {"_id": "p1", "goalId": "g1", "day": 1, "completed": true,
			"createdAt": "2026-08-30T12:00:00Z"}}`))
	}))
	p, err := c.SubmitProgress(context.Background(), gateway.ProgressInput{GoalID: "g1", Day: 1, Completed: true})
	if err != nil {
		t.Fatal(err)
	}
	if p.Timestamp != "2026-08-30T12:00:00Z" {
		t.Fatalf("createdAt fallback missing: %q", p.Timestamp)
	}
}

// Package session tracks the authenticated user context as a small
// state machine: anonymous -> authenticating -> authenticated, back to
// anonymous on logout or forced invalidation. The credential persists
// across restarts and is revalidated silently on start.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"aivora/internal/domain"
	"aivora/internal/gateway"
	"aivora/internal/repo"
)

type State string

const (
	StateAnonymous      State = "anonymous"
	StateAuthenticating State = "authenticating"
	StateAuthenticated  State = "authenticated"
)

// ErrNotAuthenticated is returned by operations that require a session;
// callers redirect to login instead of hitting the gateway.
var ErrNotAuthenticated = errors.New("not authenticated; login required")

// Authenticator is the slice of the gateway used for auth exchanges.
type Authenticator interface {
	Register(ctx context.Context, name, email, password string) (domain.User, string, error)
	Login(ctx context.Context, email, password string) (domain.User, string, error)
	GetCurrentUser(ctx context.Context) (domain.User, error)
}

// Store persists the credential and user snapshot across restarts.
// repo.Repo satisfies it.
type Store interface {
	GetToken(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string) error
	ClearToken(ctx context.Context) error
	GetUser(ctx context.Context) (domain.User, error)
	SetUser(ctx context.Context, u domain.User) error
	ClearUser(ctx context.Context) error
}

// Session implements gateway.CredentialSource: the gateway reads the
// token from here and reports credential rejections back via
// Invalidate, which forces anonymous and notifies subscribers.
type Session struct {
	mu           sync.Mutex
	state        State
	user         domain.User
	token        string
	auth         Authenticator
	store        Store
	onInvalidate []func(reason string)
	Logger       *zerolog.Logger
}

var _ gateway.CredentialSource = (*Session)(nil)

func New(auth Authenticator, store Store) *Session {
	return &Session{state: StateAnonymous, auth: auth, store: store}
}

func (s *Session) log() *zerolog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	l := zerolog.Nop()
	return &l
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) User() (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user, s.state == StateAuthenticated
}

// Token returns the current credential for gateway attachment.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// OnInvalidate registers a callback fired when the session is forced to
// anonymous (expired or rejected credential). Presentation flows use it
// to redirect to login.
func (s *Session) OnInvalidate(fn func(reason string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onInvalidate = append(s.onInvalidate, fn)
}

// Invalidate forces the session to anonymous and discards the persisted
// credential. Called by the gateway on any credential-rejection
// response, regardless of which operation triggered it.
func (s *Session) Invalidate(reason string) {
	s.mu.Lock()
	hadSession := s.token != "" || s.state != StateAnonymous
	s.token = ""
	s.user = domain.User{}
	s.state = StateAnonymous
	subs := make([]func(string), len(s.onInvalidate))
	copy(subs, s.onInvalidate)
	s.mu.Unlock()
	if !hadSession {
		return
	}
	s.log().Warn().Str("reason", reason).Msg("session invalidated")
	s.discardPersisted(context.Background())
	for _, fn := range subs {
		fn(reason)
	}
}

// Login authenticates with the backend and persists the credential.
// On failure the session is anonymous with no credential stored.
func (s *Session) Login(ctx context.Context, email, password string) (domain.User, error) {
	return s.authenticate(ctx, func(ctx context.Context) (domain.User, string, error) {
		return s.auth.Login(ctx, email, password)
	})
}

// Register creates an account; a successful registration also
// establishes the session.
func (s *Session) Register(ctx context.Context, name, email, password string) (domain.User, error) {
	return s.authenticate(ctx, func(ctx context.Context) (domain.User, string, error) {
		return s.auth.Register(ctx, name, email, password)
	})
}

func (s *Session) authenticate(ctx context.Context, exchange func(context.Context) (domain.User, string, error)) (domain.User, error) {
	s.setState(StateAuthenticating)
	user, token, err := exchange(ctx)
	if err != nil {
		s.setState(StateAnonymous)
		return domain.User{}, err
	}
	s.mu.Lock()
	s.user = user
	s.token = token
	s.state = StateAuthenticated
	s.mu.Unlock()
	if err := s.store.SetToken(ctx, token); err != nil {
		s.log().Warn().Err(err).Msg("persist credential")
	}
	if err := s.store.SetUser(ctx, user); err != nil {
		s.log().Warn().Err(err).Msg("persist user snapshot")
	}
	return user, nil
}

// Resume silently revalidates a persisted credential on process start.
// No credential means the session simply stays anonymous. A rejected
// credential is discarded; a transport failure keeps the credential for
// the next start and is returned to the caller.
func (s *Session) Resume(ctx context.Context) error {
	token, err := s.store.GetToken(ctx)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.token = token
	s.state = StateAuthenticating
	s.mu.Unlock()
	user, err := s.auth.GetCurrentUser(ctx)
	if err != nil {
		if gateway.IsAuthRejection(err) {
			// The gateway already invalidated the session.
			s.log().Debug().Msg("persisted credential rejected; discarded")
			return nil
		}
		s.mu.Lock()
		s.token = ""
		s.state = StateAnonymous
		s.mu.Unlock()
		return err
	}
	s.mu.Lock()
	s.user = user
	s.state = StateAuthenticated
	s.mu.Unlock()
	if err := s.store.SetUser(ctx, user); err != nil {
		s.log().Warn().Err(err).Msg("persist user snapshot")
	}
	return nil
}

// Logout drops the session and the persisted credential.
func (s *Session) Logout(ctx context.Context) {
	s.mu.Lock()
	s.token = ""
	s.user = domain.User{}
	s.state = StateAnonymous
	s.mu.Unlock()
	s.discardPersisted(ctx)
}

func (s *Session) discardPersisted(ctx context.Context) {
	if err := s.store.ClearToken(ctx); err != nil {
		s.log().Warn().Err(err).Msg("clear persisted credential")
	}
	if err := s.store.ClearUser(ctx); err != nil {
		s.log().Warn().Err(err).Msg("clear persisted user snapshot")
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// RequireAuthenticated short-circuits operations that need a session.
func (s *Session) RequireAuthenticated() error {
	if s.State() != StateAuthenticated {
		return ErrNotAuthenticated
	}
	return nil
}

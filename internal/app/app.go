// Package app wires the workspace database, persisted session, gateway
// client and cache store into one unit for the CLI.
package app

import (
	"context"
	"database/sql"
	"os"

	"github.com/rs/zerolog"

	"aivora/internal/config"
	"aivora/internal/db"
	"aivora/internal/gateway"
	"aivora/internal/migrate"
	"aivora/internal/repo"
	"aivora/internal/session"
	"aivora/internal/store"
)

type Options struct {
	Workspace string
	// APIURL overrides config.api.base_url when non-empty.
	APIURL  string
	Verbose bool
}

type App struct {
	Config  *config.Config
	DB      *sql.DB
	Repo    repo.Repo
	Gateway *gateway.Client
	Session *session.Session
	Store   *store.Store
	Logger  zerolog.Logger
}

// New opens the workspace, runs migrations and resumes any persisted
// session. A transport failure during resume is logged but not fatal;
// the credential stays on disk for the next attempt.
func New(ctx context.Context, opts Options) (*App, error) {
	if _, err := db.EnsureWorkspace(opts.Workspace); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	cfg, err := config.Load(opts.Workspace)
	if err != nil {
		conn.Close()
		return nil, err
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if opts.Verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	baseURL := cfg.API.BaseURL
	if opts.APIURL != "" {
		baseURL = opts.APIURL
	}
	client := gateway.New(baseURL)
	client.Timeout = cfg.API.Timeout
	client.GenTimeout = cfg.API.GenerationTimeout
	client.Logger = &logger

	r := repo.Repo{DB: conn}
	sess := session.New(client, r)
	sess.Logger = &logger
	client.Credentials = sess

	st := store.New(client)
	st.Logger = &logger

	a := &App{
		Config:  cfg,
		DB:      conn,
		Repo:    r,
		Gateway: client,
		Session: sess,
		Store:   st,
		Logger:  logger,
	}
	if err := sess.Resume(ctx); err != nil {
		logger.Warn().Err(err).Msg("could not resume session; continuing anonymously")
	}
	return a, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

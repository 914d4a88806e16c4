// Package repo persists the small slice of client state that must
// survive a restart: the bearer credential and the last-known user
// snapshot. One key, one row each.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"aivora/internal/domain"
)

var ErrNotFound = errors.New("not found")

const (
	keyToken = "token"
	keyUser  = "user"
)

type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

func (r Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r Repo) get(ctx context.Context, key string) (string, error) {
	var v string
	err := r.DB.QueryRowContext(ctx, `SELECT v FROM credentials WHERE k=?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (r Repo) set(ctx context.Context, key, value string) error {
	ts := r.now().UTC().Format(time.RFC3339)
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO credentials(k,v,updated_at) VALUES (?,?,?)
		 ON CONFLICT(k) DO UPDATE SET v=excluded.v, updated_at=excluded.updated_at`,
		key, value, ts)
	return err
}

func (r Repo) delete(ctx context.Context, key string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM credentials WHERE k=?`, key)
	return err
}

// GetToken loads the persisted credential; ErrNotFound when absent.
func (r Repo) GetToken(ctx context.Context) (string, error) {
	return r.get(ctx, keyToken)
}

func (r Repo) SetToken(ctx context.Context, token string) error {
	return r.set(ctx, keyToken, token)
}

func (r Repo) ClearToken(ctx context.Context) error {
	return r.delete(ctx, keyToken)
}

// GetUser loads the last-known user snapshot.
func (r Repo) GetUser(ctx context.Context) (domain.User, error) {
	raw, err := r.get(ctx, keyUser)
	if err != nil {
		return domain.User{}, err
	}
	var u domain.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return domain.User{}, fmt.Errorf("decode user snapshot: %w", err)
	}
	return u, nil
}

func (r Repo) SetUser(ctx context.Context, u domain.User) error {
	b, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return r.set(ctx, keyUser, string(b))
}

func (r Repo) ClearUser(ctx context.Context) error {
	return r.delete(ctx, keyUser)
}

package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"qaworkbench/internal/domain"
)

type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

func (r Repo) now() string {
	if r.Now == nil {
		return time.Now().UTC().Format(time.RFC3339)
	}
	return r.Now().UTC().Format(time.RFC3339)
}

// GetSetting returns the value stored under key.
func (r Repo) GetSetting(ctx context.Context, key string) (string, error) {
	var v string
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM settings WHERE key=?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return v, err
}

func (r Repo) SetSetting(ctx context.Context, tx *sql.Tx, key, value string) error {
	const q = `INSERT INTO settings(key,value,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`
	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, q, key, value, r.now())
	} else {
		_, err = r.DB.ExecContext(ctx, q, key, value, r.now())
	}
	return err
}

func (r Repo) DeleteSetting(ctx context.Context, tx *sql.Tx, key string) error {
	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, `DELETE FROM settings WHERE key=?`, key)
	} else {
		_, err = r.DB.ExecContext(ctx, `DELETE FROM settings WHERE key=?`, key)
	}
	return err
}

// SettingKeys lists keys starting with prefix in key order.
func (r Repo) SettingKeys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT key FROM settings WHERE substr(key,1,?)=? ORDER BY key`, len(prefix), prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// SettingsStore adapts the settings table to a flat key/value store.
type SettingsStore struct {
	Repo Repo
}

func (s SettingsStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.Repo.GetSetting(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s SettingsStore) Set(ctx context.Context, key, value string) error {
	return s.Repo.SetSetting(ctx, nil, key, value)
}

func (s SettingsStore) Delete(ctx context.Context, key string) error {
	return s.Repo.DeleteSetting(ctx, nil, key)
}

func (s SettingsStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	return s.Repo.SettingKeys(ctx, prefix)
}

type EventFilters struct {
	Type       string
	EntityKind string
	EntityID   string
	Cursor     int64
	Limit      int
}

// LatestEvents returns events newest first. A positive Cursor returns
// events older than that id.
func (r Repo) LatestEvents(ctx context.Context, f EventFilters) ([]domain.Event, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, f.Limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLStore keeps sessions in the sessions table of the sattur database.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a SQLStore on db, which must already carry the
// sattur schema (see store.Open).
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Get(ctx context.Context, id string) (*State, error) {
	st, err := s.load(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return NewState(id), nil
	}
	return st, err
}

// CompleteLesson advances with a conditional UPDATE, so two concurrent
// completions of the same lesson advance the session only once.
func (s *SQLStore) CompleteLesson(ctx context.Context, id string, n int) (*State, bool, error) {
	if err := s.ensure(ctx, id); err != nil {
		return nil, false, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET unlocked_lesson = unlocked_lesson + 1, updated_at_ms = ?
		 WHERE id = ? AND unlocked_lesson = ?`,
		time.Now().UnixMilli(), id, n)
	if err != nil {
		return nil, false, fmt.Errorf("advance session %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("advance session %s: %w", id, err)
	}
	st, err := s.load(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return st, rows > 0, nil
}

func (s *SQLStore) RecordExchange(ctx context.Context, id, query, response string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, unlocked_lesson, previous_query, previous_response, updated_at_ms)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			previous_query = excluded.previous_query,
			previous_response = excluded.previous_response,
			updated_at_ms = excluded.updated_at_ms`,
		id, FirstLesson, query, response, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("record exchange for session %s: %w", id, err)
	}
	return nil
}

func (s *SQLStore) ensure(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id, unlocked_lesson, updated_at_ms) VALUES (?, ?, ?)`,
		id, FirstLesson, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("create session %s: %w", id, err)
	}
	return nil
}

func (s *SQLStore) load(ctx context.Context, id string) (*State, error) {
	st := State{ID: id}
	var (
		prevQ, prevA sql.NullString
		updatedMs    int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT unlocked_lesson, previous_query, previous_response, updated_at_ms FROM sessions WHERE id = ?`, id,
	).Scan(&st.UnlockedLesson, &prevQ, &prevA, &updatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	if prevQ.Valid || prevA.Valid {
		st.Previous = &Exchange{Query: prevQ.String, Response: prevA.String}
	}
	st.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return &st, nil
}

package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/c360/socialgate/errors"
	"github.com/c360/socialgate/message"
)

type messageStore struct {
	s *Store
}

func (r *messageStore) Create(ctx context.Context, m *message.Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	_, err := r.s.pool.Exec(ctx, `
		INSERT INTO messages (id, text, author_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, m.ID, m.Text, m.AuthorID, m.CreatedAt)
	if err != nil {
		return errors.WrapTransient(err, "postgres", "Create", "insert message")
	}
	return nil
}

func (r *messageStore) Delete(ctx context.Context, id string) error {
	tag, err := r.s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return errors.WrapTransient(err, "postgres", "Delete", "delete message")
	}
	if tag.RowsAffected() == 0 {
		return errors.WrapNotFound(errors.ErrNotFound, "postgres", "Delete", "message not found")
	}
	return nil
}

func (r *messageStore) ByID(ctx context.Context, id string) (*message.Message, error) {
	m := &message.Message{}
	row := r.s.pool.QueryRow(ctx, `
		SELECT id, text, author_id, created_at FROM messages WHERE id = $1
	`, id)
	if err := row.Scan(&m.ID, &m.Text, &m.AuthorID, &m.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.WrapNotFound(errors.ErrNotFound, "postgres", "ByID", "message not found")
		}
		return nil, errors.WrapTransient(err, "postgres", "ByID", "query message")
	}
	return m, nil
}

func (r *messageStore) ByAuthor(ctx context.Context, authorID string) ([]*message.Message, error) {
	return r.query(ctx, `
		SELECT id, text, author_id, created_at FROM messages
		WHERE author_id = $1 ORDER BY created_at, id
	`, authorID)
}

func (r *messageStore) All(ctx context.Context) ([]*message.Message, error) {
	return r.query(ctx, `
		SELECT id, text, author_id, created_at FROM messages ORDER BY created_at, id
	`)
}

func (r *messageStore) query(ctx context.Context, sql string, args ...any) ([]*message.Message, error) {
	rows, err := r.s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.WrapTransient(err, "postgres", "query", "query messages")
	}
	defer rows.Close()

	var out []*message.Message
	for rows.Next() {
		m := &message.Message{}
		if err := rows.Scan(&m.ID, &m.Text, &m.AuthorID, &m.CreatedAt); err != nil {
			return nil, errors.WrapTransient(err, "postgres", "query", "scan message")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

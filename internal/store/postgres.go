package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned for lookups of rows that do not exist.
var ErrNotFound = errors.New("store: not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertDraft inserts a draft or overwrites an existing one by id.
func (s *PostgresStore) UpsertDraft(ctx context.Context, d Draft) (Draft, error) {
	const query = `
		INSERT INTO drafts (id, title, markup, plain_text)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
			SET title = EXCLUDED.title,
			    markup = EXCLUDED.markup,
			    plain_text = EXCLUDED.plain_text,
			    updated_at = NOW()
		RETURNING id, title, markup, plain_text, created_at, updated_at
	`
	var out Draft
	err := s.db.QueryRowContext(ctx, query, d.ID, d.Title, d.Markup, d.PlainText).
		Scan(&out.ID, &out.Title, &out.Markup, &out.PlainText, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return Draft{}, fmt.Errorf("upsert draft: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetDraft(ctx context.Context, id string) (Draft, error) {
	const query = `
		SELECT id, title, markup, plain_text, created_at, updated_at
		FROM drafts WHERE id = $1
	`
	var d Draft
	err := s.db.QueryRowContext(ctx, query, id).
		Scan(&d.ID, &d.Title, &d.Markup, &d.PlainText, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Draft{}, ErrNotFound
	}
	if err != nil {
		return Draft{}, fmt.Errorf("get draft: %w", err)
	}
	return d, nil
}

// ListDrafts returns saved drafts newest first, without markup bodies.
func (s *PostgresStore) ListDrafts(ctx context.Context) ([]Draft, error) {
	const query = `
		SELECT id, title, created_at, updated_at
		FROM drafts ORDER BY updated_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	drafts := []Draft{}
	for rows.Next() {
		var d Draft
		if err := rows.Scan(&d.ID, &d.Title, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

func (s *PostgresStore) DeleteDraft(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) InsertAttachment(ctx context.Context, a Attachment) (Attachment, error) {
	const query = `
		INSERT INTO attachments (id, name, mime_type, size, object_key)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, name, mime_type, size, object_key, created_at
	`
	var out Attachment
	err := s.db.QueryRowContext(ctx, query, a.ID, a.Name, a.MimeType, a.Size, a.ObjectKey).
		Scan(&out.ID, &out.Name, &out.MimeType, &out.Size, &out.ObjectKey, &out.CreatedAt)
	if err != nil {
		return Attachment{}, fmt.Errorf("insert attachment: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetAttachment(ctx context.Context, id string) (Attachment, error) {
	const query = `
		SELECT id, name, mime_type, size, object_key, created_at
		FROM attachments WHERE id = $1
	`
	var a Attachment
	err := s.db.QueryRowContext(ctx, query, id).
		Scan(&a.ID, &a.Name, &a.MimeType, &a.Size, &a.ObjectKey, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Attachment{}, ErrNotFound
	}
	if err != nil {
		return Attachment{}, fmt.Errorf("get attachment: %w", err)
	}
	return a, nil
}

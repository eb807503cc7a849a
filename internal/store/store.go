// Package store is the local cache: a small SQLite database mirroring
// server-side pages and messages, plus client settings.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jmelchner/applyflow/internal/models"
)

// Store wraps the cache database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the cache database at path and
// initializes the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	// The _pragma DSN option applies to every pooled connection;
	// a plain PRAGMA statement would only cover the first one.
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// PAGES
// =============================================================================

// UpsertPage inserts or refreshes a cached page.
func (s *Store) UpsertPage(ctx context.Context, p models.Page) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO page (id, title, created_ts, updated_ts) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated_ts = excluded.updated_ts`,
		p.ID, p.Title, p.CreatedAt.Unix(), p.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("upsert page: %w", err)
	}
	return nil
}

// ListPages returns cached pages, most recently updated first.
func (s *Store) ListPages(ctx context.Context) ([]models.Page, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_ts, updated_ts FROM page ORDER BY updated_ts DESC`)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []models.Page
	for rows.Next() {
		var p models.Page
		var created, updated int64
		if err := rows.Scan(&p.ID, &p.Title, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		p.CreatedAt = time.Unix(created, 0)
		p.UpdatedAt = time.Unix(updated, 0)
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// GetPage returns a cached page by id.
func (s *Store) GetPage(ctx context.Context, id string) (*models.Page, error) {
	var p models.Page
	var created, updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_ts, updated_ts FROM page WHERE id = ?`, id).
		Scan(&p.ID, &p.Title, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("page %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get page: %w", err)
	}
	p.CreatedAt = time.Unix(created, 0)
	p.UpdatedAt = time.Unix(updated, 0)
	return &p, nil
}

// DeletePage removes a cached page; its messages go with it.
func (s *Store) DeletePage(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM page WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	return nil
}

// =============================================================================
// MESSAGES
// =============================================================================

// ReplaceMessages atomically replaces the cached history of a page.
// Called after every REST history fetch so the cache tracks the
// server's view, never the optimistic local one. A page row is created
// when missing so the mirror works for pages never listed before; an
// UpsertPage with the real title later refreshes the placeholder.
func (s *Store) ReplaceMessages(ctx context.Context, pageID string, msgs []models.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO page (id, title, created_ts, updated_ts) VALUES (?, '', ?, ?)
		ON CONFLICT(id) DO NOTHING`, pageID, now, now)
	if err != nil {
		return fmt.Errorf("ensure page: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM message WHERE page_id = ?`, pageID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	for i, m := range msgs {
		isUser := 0
		if m.IsUser {
			isUser = 1
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO message (id, page_id, content, reasoning, is_user, position, created_ts)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID, pageID, m.Content, m.Reasoning, isUser, i, m.CreatedAt.Unix())
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}
	return tx.Commit()
}

// ListMessages returns the cached history of a page in order.
func (s *Store) ListMessages(ctx context.Context, pageID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, page_id, content, reasoning, is_user, created_ts
		FROM message WHERE page_id = ? ORDER BY position`, pageID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		var isUser int
		var created int64
		if err := rows.Scan(&m.ID, &m.PageID, &m.Content, &m.Reasoning, &isUser, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.IsUser = isUser != 0
		m.CreatedAt = time.Unix(created, 0)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// =============================================================================
// SETTINGS
// =============================================================================

// SetSetting stores a settings value under key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO setting (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// GetSetting reads a settings value. Missing keys return ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM setting WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("setting %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

// DeleteSetting removes a settings value.
func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM setting WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete setting %s: %w", key, err)
	}
	return nil
}

// Package sqlite implements store.Store on a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ptt/forumsync/forum"
	"github.com/ptt/forumsync/store"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS threads (
		id INTEGER PRIMARY KEY,
		forum_id INTEGER,
		idx INTEGER,
		title TEXT,
		post_count INTEGER,
		unread_count INTEGER,
		bookmarked INTEGER,
		locked INTEGER,
		sticky INTEGER,
		archived INTEGER,
		has_viewed INTEGER,
		author TEXT,
		author_id INTEGER,
		last_poster TEXT,
		forum_title TEXT,
		category TEXT,
		tag_url TEXT,
		tag_cache_file TEXT,
		updated_timestamp INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS threads_forum_idx ON threads (forum_id, idx)`,
	`CREATE INDEX IF NOT EXISTS threads_bookmarked ON threads (bookmarked)`,
	`CREATE TABLE IF NOT EXISTS forums (
		id INTEGER PRIMARY KEY,
		parent_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		subtext TEXT NOT NULL DEFAULT ''
	)`,
}

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the database at path and brings its schema up to
// date. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time; also keeps ":memory:" to a single database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	log.Println("sqlite: opened", path)
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ThreadSnapshot(ctx context.Context, id int) (forum.Snapshot, bool, error) {
	return store.SnapshotOf(ctx, s.Thread, id)
}

func (s *Store) UpsertThread(ctx context.Context, t *forum.Thread) (int64, error) {
	if t.ID <= 0 {
		return 0, fmt.Errorf("upsert thread %v: %w", t.ID, forum.ErrInvalidID)
	}
	cols, vals := store.Present(t)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var n int64
	if len(cols) > 0 {
		sets := make([]string, len(cols))
		for i, c := range cols {
			sets[i] = c.Name + " = ?"
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE threads SET `+strings.Join(sets, ", ")+` WHERE id = ?`,
			append(vals, t.ID)...)
		if err != nil {
			return 0, fmt.Errorf("update thread %v: %w", t.ID, err)
		}
		if n, err = res.RowsAffected(); err != nil {
			return 0, err
		}
	}

	if n == 0 {
		names := []string{"id"}
		marks := []string{"?"}
		for _, c := range cols {
			names = append(names, c.Name)
			marks = append(marks, "?")
		}
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO threads (`+strings.Join(names, ", ")+`) VALUES (`+strings.Join(marks, ", ")+`)`,
			append([]interface{}{t.ID}, vals...)...)
		if err != nil {
			return 0, fmt.Errorf("insert thread %v: %w", t.ID, err)
		}
		if n, err = res.RowsAffected(); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit thread %v: %w", t.ID, err)
	}
	return n, nil
}

func (s *Store) UpsertForum(ctx context.Context, f *forum.Forum) (int64, error) {
	if f.ID <= 0 {
		return 0, fmt.Errorf("upsert forum %v: %w", f.ID, forum.ErrInvalidID)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO forums (id, parent_id, title, subtext) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET parent_id = excluded.parent_id, title = excluded.title, subtext = excluded.subtext`,
		f.ID, f.ParentID, f.Title, f.Subtext)
	if err != nil {
		return 0, fmt.Errorf("upsert forum %v: %w", f.ID, err)
	}
	return res.RowsAffected()
}

func (s *Store) Forum(ctx context.Context, id int) (*forum.Forum, error) {
	f := &forum.Forum{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, parent_id, title, subtext FROM forums WHERE id = ?`, id,
	).Scan(&f.ID, &f.ParentID, &f.Title, &f.Subtext)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("forum %v: %w", id, store.ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("get forum %v: %w", id, err)
	}
	return f, nil
}

func (s *Store) Thread(ctx context.Context, id int) (*forum.Thread, error) {
	t, err := scanThread(s.db.QueryRowContext(ctx, selectThreads+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("thread %v: %w", id, store.ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("get thread %v: %w", id, err)
	}
	return t, nil
}

func (s *Store) ForumThreads(ctx context.Context, forumID int) ([]*forum.Thread, error) {
	return s.queryThreads(ctx, selectThreads+` WHERE forum_id = ? ORDER BY idx IS NULL, idx, id`, forumID)
}

func (s *Store) BookmarkedThreads(ctx context.Context) ([]*forum.Thread, error) {
	return s.queryThreads(ctx, selectThreads+` WHERE bookmarked > 0 ORDER BY updated_timestamp DESC, id`)
}

func (s *Store) queryThreads(ctx context.Context, query string, args ...interface{}) ([]*forum.Thread, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query threads: %w", err)
	}
	defer rows.Close()

	var threads []*forum.Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

var selectThreads = func() string {
	names := []string{"id"}
	for _, c := range store.ThreadColumns {
		names = append(names, c.Name)
	}
	return `SELECT ` + strings.Join(names, ", ") + ` FROM threads`
}()

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanThread(row scanner) (*forum.Thread, error) {
	t := &forum.Thread{}
	dest := []interface{}{&t.ID}
	for _, c := range store.ThreadColumns {
		if c.Kind == store.KindString {
			dest = append(dest, &sql.NullString{})
		} else {
			dest = append(dest, &sql.NullInt64{})
		}
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	for i, c := range store.ThreadColumns {
		switch v := dest[i+1].(type) {
		case *sql.NullString:
			if v.Valid {
				c.Set(t, v.String)
			}
		case *sql.NullInt64:
			if v.Valid {
				c.Set(t, v.Int64)
			}
		}
	}
	return t, nil
}

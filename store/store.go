// Package store persists thread and forum records.
package store

import (
	"context"
	"errors"

	"github.com/ptt/forumsync/forum"
)

var (
	ErrNotFound = errors.New("not found")
)

type Store interface {
	ThreadSnapshot(ctx context.Context, id int) (forum.Snapshot, bool, error)
	// UpsertThread writes the non-nil fields of t to the record with the
	// same id, creating it when there is none. It returns the number of
	// records touched.
	UpsertThread(ctx context.Context, t *forum.Thread) (int64, error)
	UpsertForum(ctx context.Context, f *forum.Forum) (int64, error)

	Thread(ctx context.Context, id int) (*forum.Thread, error)
	// ForumThreads lists the threads last seen in a forum listing, by
	// index.
	ForumThreads(ctx context.Context, forumID int) ([]*forum.Thread, error)
	BookmarkedThreads(ctx context.Context) ([]*forum.Thread, error)
	Forum(ctx context.Context, id int) (*forum.Forum, error)

	Close() error
}

// SnapshotOf loads the snapshot of thread id through get. A missing thread
// gives the zero snapshot.
func SnapshotOf(ctx context.Context, get func(context.Context, int) (*forum.Thread, error), id int) (forum.Snapshot, bool, error) {
	t, err := get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return forum.Snapshot{}, false, nil
	} else if err != nil {
		return forum.Snapshot{}, false, err
	}
	return t.Snapshot(), true, nil
}

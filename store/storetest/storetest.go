// Package storetest checks store.Store implementations against the same
// behaviour.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AlekSi/pointer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptt/forumsync/forum"
	"github.com/ptt/forumsync/store"
)

// Run runs the suite. open must return an empty store.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Run("upsert inserts then merges", func(t *testing.T) {
		testUpsertMerge(t, open(t))
	})
	t.Run("missing thread", func(t *testing.T) {
		testMissing(t, open(t))
	})
	t.Run("forum threads by index", func(t *testing.T) {
		testForumThreads(t, open(t))
	})
	t.Run("bookmarked threads", func(t *testing.T) {
		testBookmarked(t, open(t))
	})
	t.Run("forums", func(t *testing.T) {
		testForums(t, open(t))
	})
	t.Run("rejects invalid ids", func(t *testing.T) {
		testInvalidID(t, open(t))
	})
}

func testUpsertMerge(t *testing.T, s store.Store) {
	ctx := context.Background()
	ts := time.UnixMilli(1700000000000)

	n, err := s.UpsertThread(ctx, &forum.Thread{
		ID:               10,
		ForumID:          pointer.ToInt(44),
		Title:            pointer.ToString("first"),
		PostCount:        pointer.ToInt(80),
		UnreadCount:      pointer.ToInt(12),
		HasViewedThread:  pointer.ToBool(true),
		AuthorID:         pointer.ToInt(7),
		UpdatedTimestamp: &ts,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Only set fields are written.
	n, err = s.UpsertThread(ctx, &forum.Thread{
		ID:          10,
		Title:       pointer.ToString("renamed"),
		UnreadCount: pointer.ToInt(0),
		Locked:      pointer.ToBool(true),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.Thread(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, got.ID)
	assert.Equal(t, 44, *got.ForumID)
	assert.Equal(t, "renamed", *got.Title)
	assert.Equal(t, 80, *got.PostCount)
	assert.Equal(t, 0, *got.UnreadCount)
	assert.True(t, *got.Locked)
	assert.True(t, *got.HasViewedThread)
	assert.True(t, ts.Equal(*got.UpdatedTimestamp))
	assert.Nil(t, got.Sticky)
	assert.Nil(t, got.Bookmarked)

	snap, ok, err := s.ThreadSnapshot(ctx, 10)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, forum.Snapshot{PostCount: 80, UnreadCount: 0, OPID: 7, HasViewed: true}, snap)

	// A record with nothing but an id still exists afterwards.
	n, err = s.UpsertThread(ctx, &forum.Thread{ID: 11})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = s.Thread(ctx, 11)
	assert.NoError(t, err)
}

func testMissing(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.Thread(ctx, 99)
	assert.True(t, errors.Is(err, store.ErrNotFound), "err = %v", err)

	snap, ok, err := s.ThreadSnapshot(ctx, 99)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, forum.Snapshot{}, snap)

	_, err = s.Forum(ctx, 99)
	assert.True(t, errors.Is(err, store.ErrNotFound), "err = %v", err)
}

func testForumThreads(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, th := range []*forum.Thread{
		{ID: 3, ForumID: pointer.ToInt(1), Index: pointer.ToInt(2)},
		{ID: 1, ForumID: pointer.ToInt(1), Index: pointer.ToInt(0)},
		{ID: 2, ForumID: pointer.ToInt(1), Index: pointer.ToInt(1)},
		{ID: 4, ForumID: pointer.ToInt(2), Index: pointer.ToInt(0)},
	} {
		_, err := s.UpsertThread(ctx, th)
		require.NoError(t, err)
	}

	threads, err := s.ForumThreads(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, ids(threads))

	// Moving a thread to another forum drops it from the old listing.
	_, err = s.UpsertThread(ctx, &forum.Thread{ID: 2, ForumID: pointer.ToInt(2), Index: pointer.ToInt(5)})
	require.NoError(t, err)

	threads, err = s.ForumThreads(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, ids(threads))

	threads, err = s.ForumThreads(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 2}, ids(threads))
}

func testBookmarked(t *testing.T, s store.Store) {
	ctx := context.Background()
	tier := func(b forum.BookmarkTier) *forum.BookmarkTier { return &b }
	for _, th := range []*forum.Thread{
		{ID: 1, Bookmarked: tier(forum.BookmarkTier1)},
		{ID: 2, Bookmarked: tier(forum.NotBookmarked)},
		{ID: 3, Bookmarked: tier(forum.BookmarkTier3)},
		{ID: 4},
	} {
		_, err := s.UpsertThread(ctx, th)
		require.NoError(t, err)
	}

	threads, err := s.BookmarkedThreads(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 3}, ids(threads))

	_, err = s.UpsertThread(ctx, &forum.Thread{ID: 1, Bookmarked: tier(forum.NotBookmarked)})
	require.NoError(t, err)

	threads, err = s.BookmarkedThreads(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, ids(threads))
}

func testForums(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.UpsertForum(ctx, &forum.Forum{ID: 5, ParentID: 1, Title: "Games", Subtext: "play"})
	require.NoError(t, err)
	_, err = s.UpsertForum(ctx, &forum.Forum{ID: 5, ParentID: 2, Title: "Games!"})
	require.NoError(t, err)

	f, err := s.Forum(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, &forum.Forum{ID: 5, ParentID: 2, Title: "Games!"}, f)
}

func testInvalidID(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.UpsertThread(ctx, &forum.Thread{ID: 0, Title: pointer.ToString("x")})
	assert.True(t, errors.Is(err, forum.ErrInvalidID), "err = %v", err)

	_, err = s.UpsertForum(ctx, &forum.Forum{ID: -1})
	assert.True(t, errors.Is(err, forum.ErrInvalidID), "err = %v", err)
}

func ids(threads []*forum.Thread) []int {
	out := make([]int, len(threads))
	for i, t := range threads {
		out[i] = t.ID
	}
	return out
}

// Package redisstore implements store.Store on Redis. Each record is a
// hash; forum listings are sorted sets scored by listing index and the
// bookmarked threads are kept in a set.
//
// A thread upsert touches listing keys named after the forum id stored in
// the thread hash, so they cannot all be declared up front. On a single
// server that is fine. On Redis Cluster the key prefix must carry a hash
// tag, e.g. "{forumsync}:", so that every key of a store maps to one slot.
package redisstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/go-redis/redis"

	"github.com/ptt/forumsync/forum"
	"github.com/ptt/forumsync/store"
)

// upsertThread writes field/value pairs into a thread hash and keeps the
// listing and bookmark indexes in step, all in one step.
//
// KEYS[1] thread hash, KEYS[2] bookmarked set. ARGV[1] key prefix,
// ARGV[2] thread id, then pairs.
var upsertThread = redis.NewScript(`
local key = KEYS[1]
local bookmarked = KEYS[2]
local prefix = ARGV[1]
local id = ARGV[2]
local oldForum = redis.call('HGET', key, 'forum_id')
redis.call('HSET', key, 'id', id)
for i = 3, #ARGV, 2 do
	redis.call('HSET', key, ARGV[i], ARGV[i + 1])
end
local forum = redis.call('HGET', key, 'forum_id')
if oldForum and oldForum ~= forum then
	redis.call('ZREM', prefix .. 'forum:' .. oldForum .. ':threads', id)
end
if forum then
	local score = redis.call('HGET', key, 'idx') or '+inf'
	redis.call('ZADD', prefix .. 'forum:' .. forum .. ':threads', score, id)
end
local bm = redis.call('HGET', key, 'bookmarked')
if bm and tonumber(bm) > 0 then
	redis.call('SADD', bookmarked, id)
else
	redis.call('SREM', bookmarked, id)
end
return 1
`)

type Store struct {
	c      *redis.Client
	prefix string
}

var _ store.Store = (*Store)(nil)

// New connects to Redis. Every key is prefixed with prefix so several
// stores can share a database.
func New(opts *redis.Options, prefix string) (*Store, error) {
	c := redis.NewClient(opts)
	if err := c.Ping().Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis ping %v: %w", opts.Addr, err)
	}
	return &Store{c: c, prefix: prefix}, nil
}

func (s *Store) Close() error {
	return s.c.Close()
}

func (s *Store) threadKey(id int) string {
	return s.prefix + "thread:" + strconv.Itoa(id)
}

func (s *Store) forumKey(id int) string {
	return s.prefix + "forum:" + strconv.Itoa(id)
}

func (s *Store) forumThreadsKey(id int) string {
	return s.forumKey(id) + ":threads"
}

func (s *Store) bookmarkedKey() string {
	return s.prefix + "bookmarked"
}

func (s *Store) ThreadSnapshot(ctx context.Context, id int) (forum.Snapshot, bool, error) {
	return store.SnapshotOf(ctx, s.Thread, id)
}

func (s *Store) UpsertThread(ctx context.Context, t *forum.Thread) (int64, error) {
	if t.ID <= 0 {
		return 0, fmt.Errorf("upsert thread %v: %w", t.ID, forum.ErrInvalidID)
	}
	cols, vals := store.Present(t)
	args := []interface{}{s.prefix, t.ID}
	for i, c := range cols {
		args = append(args, c.Name, vals[i])
	}
	n, err := upsertThread.Run(s.c.WithContext(ctx), []string{s.threadKey(t.ID), s.bookmarkedKey()}, args...).Int64()
	if err != nil {
		return 0, fmt.Errorf("upsert thread %v: %w", t.ID, err)
	}
	return n, nil
}

func (s *Store) Thread(ctx context.Context, id int) (*forum.Thread, error) {
	m, err := s.c.WithContext(ctx).HGetAll(s.threadKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get thread %v: %w", id, err)
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("thread %v: %w", id, store.ErrNotFound)
	}
	return decodeThread(m)
}

func decodeThread(m map[string]string) (*forum.Thread, error) {
	t := &forum.Thread{}
	for k, v := range m {
		if k == "id" {
			id, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("thread id %q: %w", v, err)
			}
			t.ID = id
			continue
		}
		c, ok := store.ColumnByName(k)
		if !ok {
			continue
		}
		if err := c.Decode(t, v); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (s *Store) threads(ctx context.Context, ids []string) ([]*forum.Thread, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	c := s.c.WithContext(ctx)
	cmds := make([]*redis.StringStringMapCmd, len(ids))
	_, err := c.Pipelined(func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(s.prefix + "thread:" + id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get threads: %w", err)
	}

	threads := make([]*forum.Thread, 0, len(ids))
	for _, cmd := range cmds {
		m := cmd.Val()
		if len(m) == 0 {
			continue
		}
		t, err := decodeThread(m)
		if err != nil {
			return nil, err
		}
		threads = append(threads, t)
	}
	return threads, nil
}

func (s *Store) ForumThreads(ctx context.Context, forumID int) ([]*forum.Thread, error) {
	ids, err := s.c.WithContext(ctx).ZRange(s.forumThreadsKey(forumID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("forum %v threads: %w", forumID, err)
	}
	return s.threads(ctx, ids)
}

func (s *Store) BookmarkedThreads(ctx context.Context) ([]*forum.Thread, error) {
	ids, err := s.c.WithContext(ctx).SMembers(s.bookmarkedKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("bookmarked threads: %w", err)
	}
	threads, err := s.threads(ctx, ids)
	if err != nil {
		return nil, err
	}
	sort.Slice(threads, func(i, j int) bool {
		a, b := updatedMillis(threads[i]), updatedMillis(threads[j])
		if a != b {
			return a > b
		}
		return threads[i].ID < threads[j].ID
	})
	return threads, nil
}

func updatedMillis(t *forum.Thread) int64 {
	if t.UpdatedTimestamp == nil {
		return -1
	}
	return t.UpdatedTimestamp.UnixMilli()
}

func (s *Store) UpsertForum(ctx context.Context, f *forum.Forum) (int64, error) {
	if f.ID <= 0 {
		return 0, fmt.Errorf("upsert forum %v: %w", f.ID, forum.ErrInvalidID)
	}
	err := s.c.WithContext(ctx).HMSet(s.forumKey(f.ID), map[string]interface{}{
		"id":        f.ID,
		"parent_id": f.ParentID,
		"title":     f.Title,
		"subtext":   f.Subtext,
	}).Err()
	if err != nil {
		return 0, fmt.Errorf("upsert forum %v: %w", f.ID, err)
	}
	return 1, nil
}

func (s *Store) Forum(ctx context.Context, id int) (*forum.Forum, error) {
	m, err := s.c.WithContext(ctx).HGetAll(s.forumKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get forum %v: %w", id, err)
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("forum %v: %w", id, store.ErrNotFound)
	}

	f := &forum.Forum{Title: m["title"], Subtext: m["subtext"]}
	if f.ID, err = strconv.Atoi(m["id"]); err != nil {
		return nil, fmt.Errorf("forum id %q: %w", m["id"], err)
	}
	if f.ParentID, err = strconv.Atoi(m["parent_id"]); err != nil {
		return nil, fmt.Errorf("forum %v parent: %w", id, err)
	}
	return f, nil
}

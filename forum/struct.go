// Package forum holds the records the sync layer reads and writes.
package forum

import (
	"errors"
	"time"
)

var (
	ErrInvalidID = errors.New("invalid id")
)

// Forum IDs with special meaning.
const (
	UnknownForumID = -1
	// BookmarksForumID stands for the "my threads" virtual listing. Rows
	// parsed from it never carry ForumID or Index.
	BookmarksForumID = -2
)

// Remote endpoints and their parameters.
const (
	FunctionForum    = "forumdisplay.php"
	FunctionBookmark = "bookmarkthreads.php"
	FunctionThread   = "showthread.php"

	ParamForumID  = "forumid"
	ParamThreadID = "threadid"
	ParamPage     = "pagenumber"
	ParamPerPage  = "perpage"
	ParamUserID   = "userid"
)

type BookmarkTier int

const (
	NotBookmarked BookmarkTier = iota
	BookmarkTier1
	BookmarkTier2
	BookmarkTier3
)

func (b BookmarkTier) Valid() bool {
	return b >= NotBookmarked && b <= BookmarkTier3
}

// Thread is a thread record. Nil fields are unknown to whoever built the
// record and are left untouched by an upsert.
type Thread struct {
	ID int `json:"id"`

	ForumID     *int          `json:"forumId,omitempty"`
	Index       *int          `json:"index,omitempty"`
	Title       *string       `json:"title,omitempty"`
	PostCount   *int          `json:"postCount,omitempty"`
	UnreadCount *int          `json:"unreadCount,omitempty"`
	Bookmarked  *BookmarkTier `json:"bookmarked,omitempty"`

	Locked          *bool `json:"locked,omitempty"`
	Sticky          *bool `json:"sticky,omitempty"`
	Archived        *bool `json:"archived,omitempty"`
	HasViewedThread *bool `json:"hasViewedThread,omitempty"`

	Author       *string `json:"author,omitempty"`
	AuthorID     *int    `json:"authorId,omitempty"`
	LastPoster   *string `json:"lastPoster,omitempty"`
	ForumTitle   *string `json:"forumTitle,omitempty"`
	Category     *string `json:"category,omitempty"`
	TagURL       *string `json:"tagUrl,omitempty"`
	TagCacheFile *string `json:"tagCacheFile,omitempty"`

	UpdatedTimestamp *time.Time `json:"updatedTimestamp,omitempty"`
}

// Merge copies every field set on u into t.
func (t *Thread) Merge(u *Thread) {
	if u.ForumID != nil {
		t.ForumID = u.ForumID
	}
	if u.Index != nil {
		t.Index = u.Index
	}
	if u.Title != nil {
		t.Title = u.Title
	}
	if u.PostCount != nil {
		t.PostCount = u.PostCount
	}
	if u.UnreadCount != nil {
		t.UnreadCount = u.UnreadCount
	}
	if u.Bookmarked != nil {
		t.Bookmarked = u.Bookmarked
	}
	if u.Locked != nil {
		t.Locked = u.Locked
	}
	if u.Sticky != nil {
		t.Sticky = u.Sticky
	}
	if u.Archived != nil {
		t.Archived = u.Archived
	}
	if u.HasViewedThread != nil {
		t.HasViewedThread = u.HasViewedThread
	}
	if u.Author != nil {
		t.Author = u.Author
	}
	if u.AuthorID != nil {
		t.AuthorID = u.AuthorID
	}
	if u.LastPoster != nil {
		t.LastPoster = u.LastPoster
	}
	if u.ForumTitle != nil {
		t.ForumTitle = u.ForumTitle
	}
	if u.Category != nil {
		t.Category = u.Category
	}
	if u.TagURL != nil {
		t.TagURL = u.TagURL
	}
	if u.TagCacheFile != nil {
		t.TagCacheFile = u.TagCacheFile
	}
	if u.UpdatedTimestamp != nil {
		t.UpdatedTimestamp = u.UpdatedTimestamp
	}
}

// Snapshot returns the locally derived state of t, zero for unknown fields.
func (t *Thread) Snapshot() Snapshot {
	var s Snapshot
	if t.PostCount != nil {
		s.PostCount = *t.PostCount
	}
	if t.UnreadCount != nil {
		s.UnreadCount = *t.UnreadCount
	}
	if t.AuthorID != nil {
		s.OPID = *t.AuthorID
	}
	if t.HasViewedThread != nil {
		s.HasViewed = *t.HasViewedThread
	}
	if t.Bookmarked != nil {
		s.Bookmarked = *t.Bookmarked
	}
	return s
}

// Snapshot is the stored state a detail sync reconciles against. The zero
// value stands for a thread that was never stored.
type Snapshot struct {
	PostCount   int
	UnreadCount int
	OPID        int
	HasViewed   bool
	Bookmarked  BookmarkTier
}

type Forum struct {
	ID       int    `json:"id"`
	ParentID int    `json:"parentId"`
	Title    string `json:"title"`
	Subtext  string `json:"subtext,omitempty"`
}

// Tag is a thread icon reference.
type Tag struct {
	URL       string
	CacheFile string
	Category  string
}

// Package listing parses forum and bookmark listing pages.
package listing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AlekSi/pointer"

	"github.com/ptt/forumsync/dom"
	"github.com/ptt/forumsync/forum"
)

const (
	listingRootID = "forum"

	classThread      = "thread"
	classTitle       = "thread_title"
	classReplies     = "replies"
	classClosed      = "closed"
	classLastPost    = "lastpost"
	classAuthor      = "author"
	classSticky      = "title_sticky"
	classIcon        = "icon"
	classCount       = "count"
	classSeen        = "x"
	classStar        = "star"
	classBreadcrumbs = "breadcrumbs"
	classBreadTail   = "bclast"
)

var (
	errNoLastPost   = errors.New("no last poster")
	errNoIconImage  = errors.New("icon without image")
	errNoAuthorLink = errors.New("author without profile link")
)

// Star classes by tier.
var bookmarkClasses = []struct {
	class string
	tier  forum.BookmarkTier
}{
	{"bm0", forum.BookmarkTier1},
	{"bm1", forum.BookmarkTier2},
	{"bm2", forum.BookmarkTier3},
}

var now = time.Now

// ParseThreads turns a listing page into thread records, one per valid row,
// in document order. Index counts valid rows from startIndex. Rows of the
// bookmarks listing carry neither Index nor ForumID so that they don't
// overwrite what the forum listing stored.
func ParseThreads(doc dom.Node, startIndex, forumID int) ([]forum.Thread, error) {
	root, ok := doc.ByID(listingRootID)
	if !ok {
		return nil, ErrNoListingRoot
	}

	updated := now()
	nodes := root.ByClass(classThread)
	rows := make([]Row, 0, len(nodes))
	for i, node := range nodes {
		t, err := parseThreadRow(node)
		if err != nil {
			err = &RowError{Pos: i, NodeID: node.ID(), Err: err}
		}
		t.UpdatedTimestamp = &updated
		rows = append(rows, Row{Thread: t, Err: err})
	}

	threads := Collect(rows)
	var forumTitle *string
	if title, ok := ParseForumTitle(doc); ok {
		forumTitle = &title
	}
	for i := range threads {
		if forumID == forum.BookmarksForumID {
			continue
		}
		threads[i].Index = pointer.ToInt(startIndex + i)
		threads[i].ForumID = pointer.ToInt(forumID)
		threads[i].ForumTitle = forumTitle
	}
	return threads, nil
}

// ParseForumTitle returns the last breadcrumb of a listing page.
func ParseForumTitle(doc dom.Node) (string, bool) {
	for _, bc := range doc.ByClass(classBreadcrumbs) {
		if tail, ok := dom.First(bc.ByClass(classBreadTail)); ok {
			if title := tail.Text(); title != "" {
				return title, true
			}
		}
	}
	return "", false
}

func parseThreadRow(node dom.Node) (forum.Thread, error) {
	var t forum.Thread

	rawID := strings.TrimSpace(node.ID())
	if rawID == "" {
		return t, errHeaderRow
	}
	id, err := forum.DigitsOnly(rawID)
	if err != nil {
		return t, err
	}
	if id <= 0 {
		return t, forum.ErrInvalidID
	}
	t.ID = id

	if n, ok := dom.First(node.ByClass(classReplies)); ok {
		replies, err := strconv.Atoi(strings.TrimSpace(n.Text()))
		if err != nil {
			return t, fmt.Errorf("replies: %w", err)
		}
		// Replies exclude the opening post.
		t.PostCount = pointer.ToInt(replies + 1)
	}
	if n, ok := dom.First(node.ByClass(classTitle)); ok {
		t.Title = pointer.ToString(strings.TrimSpace(n.Text()))
	}

	t.Locked = pointer.ToBool(node.HasClass(classClosed))

	lastPost, ok := dom.First(node.ByClass(classLastPost))
	if !ok {
		return t, errNoLastPost
	}
	killedBy, ok := dom.First(lastPost.ByClass(classAuthor))
	if !ok {
		return t, errNoLastPost
	}
	t.LastPoster = pointer.ToString(killedBy.Text())

	t.Sticky = pointer.ToBool(len(node.ByClass(classSticky)) > 0)

	if icon, ok := dom.First(node.ByClass(classIcon)); ok {
		img, ok := dom.First(icon.ByTag("img"))
		if !ok {
			return t, errNoIconImage
		}
		if tag, ok := forum.ParseThreadTag(img.Attr("src")); ok {
			t.TagURL = pointer.ToString(tag.URL)
			t.Category = pointer.ToString(tag.Category)
			if tag.CacheFile != "" {
				t.TagCacheFile = pointer.ToString(tag.CacheFile)
			}
		} else {
			t.Category = pointer.ToString("0")
		}
	}

	if author, ok := dom.First(node.ByClass(classAuthor)); ok {
		link, ok := dom.First(author.ByAttr("href"))
		if !ok {
			return t, errNoAuthorLink
		}
		authorID, err := forum.ParseUserID(link.Attr("href"))
		if err != nil {
			return t, fmt.Errorf("author id: %w", err)
		}
		t.Author = pointer.ToString(strings.TrimSpace(author.Text()))
		t.AuthorID = pointer.ToInt(authorID)
	}

	if count, ok := dom.First(node.ByClass(classCount)); ok {
		unread, err := strconv.Atoi(strings.TrimSpace(count.Text()))
		if err != nil {
			return t, fmt.Errorf("unread count: %w", err)
		}
		t.UnreadCount = pointer.ToInt(unread)
		t.HasViewedThread = pointer.ToBool(true)
	} else {
		t.UnreadCount = pointer.ToInt(0)
		t.HasViewedThread = pointer.ToBool(len(node.ByClass(classSeen)) > 0)
	}

	tier := forum.NotBookmarked
	if star, ok := dom.First(node.ByClass(classStar)); ok {
		for _, bc := range bookmarkClasses {
			if star.HasClass(bc.class) {
				tier = bc.tier
				break
			}
		}
	}
	t.Bookmarked = &tier

	return t, nil
}

package threadsync

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/AlekSi/pointer"

	"github.com/ptt/forumsync/dom"
	"github.com/ptt/forumsync/forum"
	"github.com/ptt/forumsync/pagecheck"
)

var (
	ErrNoBreadcrumbs = errors.New("breadcrumbs not found")
)

const (
	closedMarker     = "forum-closed"
	unbookmarkMarker = "unbookmark"
)

// meta is what a thread page says about the thread itself.
type meta struct {
	title    *string
	locked   bool
	archived bool
	// bookmark is set only when the page upgrades an untracked thread.
	bookmark *forum.BookmarkTier
	forumID  int
	lastPage int
}

func (m *meta) thread(id int) *forum.Thread {
	return &forum.Thread{
		ID:         id,
		Title:      m.title,
		Locked:     pointer.ToBool(m.locked),
		Archived:   pointer.ToBool(m.archived),
		Bookmarked: m.bookmark,
		ForumID:    pointer.ToInt(m.forumID),
	}
}

func parseMeta(doc dom.Node, stored forum.Snapshot) (*meta, error) {
	m := &meta{forumID: forum.UnknownForumID}

	if tail, ok := dom.First(doc.ByClass("bclast")); ok {
		m.title = pointer.ToString(strings.TrimSpace(tail.Text()))
	} else {
		log.Println("threadsync: thread title not found")
	}

	if reply, ok := dom.First(doc.ByAttrValue("alt", "Reply")); ok {
		m.locked = strings.Contains(reply.Attr("src"), closedMarker)
	}

	// Archived threads have no bookmark buttons.
	if button, ok := dom.First(doc.ByClass("thread_bookmark")); ok {
		if strings.Contains(button.Attr("src"), unbookmarkMarker) && stored.Bookmarked == forum.NotBookmarked {
			tier := forum.BookmarkTier1
			m.bookmark = &tier
		}
	} else {
		m.archived = true
	}

	crumbs := doc.ByClass("breadcrumbs")
	if len(crumbs) == 0 {
		return nil, ErrNoBreadcrumbs
	}
	for _, bc := range crumbs {
		for _, link := range bc.ByAttr("href") {
			if id, ok := forum.ParseForumID(link.Attr("href")); ok {
				m.forumID = id
			}
		}
	}

	lastPage, err := pagecheck.ParseLastPage(doc)
	if err != nil {
		return nil, fmt.Errorf("last page: %w", err)
	}
	m.lastPage = lastPage

	return m, nil
}

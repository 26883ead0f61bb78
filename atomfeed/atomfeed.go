// Package atomfeed renders bookmarked threads as an Atom feed.
package atomfeed

import (
	"fmt"
	"html"
	"time"

	"golang.org/x/tools/blog/atom"

	"github.com/ptt/forumsync/forum"
	"github.com/ptt/forumsync/paging"
)

type Converter struct {
	FeedTitle string
	// PageSize is the posts per page used for unread links.
	PageSize   int
	LinkFeed   func() (string, error)
	LinkThread func(threadID, page int) (string, error)
}

// Convert makes a feed with one entry per thread, in the given order. Each
// entry links to the page holding the oldest unread post.
func (c *Converter) Convert(threads []*forum.Thread) (*atom.Feed, error) {
	feedURL, err := c.LinkFeed()
	if err != nil {
		return nil, err
	}

	var entries []*atom.Entry
	for _, t := range threads {
		entry, err := c.convertThread(t)
		if err != nil {
			// Ignore errors.
			continue
		}
		entries = append(entries, entry)
	}

	return &atom.Feed{
		Title: c.FeedTitle,
		ID:    feedURL,
		Link: []atom.Link{{
			Rel:  "self",
			Href: feedURL,
		}},
		Updated: atom.Time(latestOrNow(threads)),
		Entry:   entries,
	}, nil
}

func (c *Converter) convertThread(t *forum.Thread) (*atom.Entry, error) {
	postCount, unread := deref(t.PostCount), deref(t.UnreadCount)
	page := paging.FirstUnreadPage(postCount, unread, c.PageSize)
	threadURL, err := c.LinkThread(t.ID, page)
	if err != nil {
		return nil, err
	}
	// The entry id must not move with the unread page.
	firstPageURL, err := c.LinkThread(t.ID, 1)
	if err != nil {
		return nil, err
	}

	title := fmt.Sprintf("Thread %v", t.ID)
	if t.Title != nil && *t.Title != "" {
		title = *t.Title
	}
	var author *atom.Person
	if t.Author != nil {
		author = &atom.Person{Name: *t.Author}
	}
	var updated time.Time
	if t.UpdatedTimestamp != nil {
		updated = *t.UpdatedTimestamp
	}

	body := fmt.Sprintf("%v unread of %v posts", unread, postCount)
	if t.LastPoster != nil {
		body += ", last post by " + html.EscapeString(*t.LastPoster)
	}
	if t.ForumTitle != nil {
		body += " in " + html.EscapeString(*t.ForumTitle)
	}

	return &atom.Entry{
		Author: author,
		Title:  title,
		ID:     fmt.Sprintf("%v#thread-%v", firstPageURL, t.ID),
		Link: []atom.Link{{
			Rel:  "alternate",
			Type: "text/html",
			Href: threadURL,
		}},
		Updated: atom.Time(updated),
		Content: &atom.Text{
			Type: "html",
			Body: "<p>" + body + "</p>",
		},
	}, nil
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func latestOrNow(threads []*forum.Thread) time.Time {
	var latest time.Time
	for _, t := range threads {
		if t.UpdatedTimestamp != nil && t.UpdatedTimestamp.After(latest) {
			latest = *t.UpdatedTimestamp
		}
	}
	if latest.IsZero() {
		return time.Now()
	}
	return latest
}

// Package pagecheck recognizes error pages and reads page controls.
package pagecheck

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/ptt/forumsync/dom"
)

var (
	ErrNoPageControl = errors.New("page control not found")
)

const (
	MsgNotLoggedIn   = "You must be logged in to view this page."
	MsgDatabaseError = "The forums database is unavailable."
)

var (
	pageParamRegexp = regexp.MustCompile(`pagenumber=(\d+)`)
	pageCountRegexp = regexp.MustCompile(`\((\d+)\)`)
)

// Detector finds server-side errors rendered as ordinary pages: access
// denied, deleted threads, login walls and database outages.
type Detector struct{}

// Check returns the message to show when doc is an error page.
func (Detector) Check(doc dom.Node) (string, bool) {
	if panel, ok := dom.First(doc.ByClass("standarderror")); ok {
		msg := panel.Text()
		if inner, ok := dom.First(panel.ByClass("inner")); ok {
			msg = inner.Text()
		}
		if msg == "" {
			msg = "The forums returned an error."
		}
		return msg, true
	}
	if _, ok := doc.ByID("notregistered"); ok {
		return MsgNotLoggedIn, true
	}
	if title, ok := dom.First(doc.ByTag("title")); ok && strings.Contains(title.Text(), "Database Error") {
		return MsgDatabaseError, true
	}
	return "", false
}

// ParseLastPage reads the highest page number offered by the first page
// control of doc. A control without any number means a single page.
func ParseLastPage(doc dom.Node) (int, error) {
	pages, ok := dom.First(doc.ByClass("pages"))
	if !ok {
		return 0, ErrNoPageControl
	}

	last := 1
	see := func(n int) {
		if n > last {
			last = n
		}
	}
	for _, opt := range pages.ByTag("option") {
		if n, err := strconv.Atoi(strings.TrimSpace(opt.Attr("value"))); err == nil {
			see(n)
		}
	}
	for _, link := range pages.ByAttr("href") {
		if m := pageParamRegexp.FindStringSubmatch(link.Attr("href")); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				see(n)
			}
		}
		if n, err := strconv.Atoi(link.Text()); err == nil {
			see(n)
		}
	}
	if m := pageCountRegexp.FindStringSubmatch(pages.Text()); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			see(n)
		}
	}
	return last, nil
}

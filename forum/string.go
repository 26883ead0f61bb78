package forum

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	forumIDRegexp   = regexp.MustCompile(`forumid=(\d+)`)
	tagURLRegexp    = regexp.MustCompile(`([^#]+)#(\d+)$`)
	fileNameRegexp  = regexp.MustCompile(`([^/]+)$`)
	nonDigitsRegexp = regexp.MustCompile(`\D`)
)

// subtextPrefixLen is the width of the separator the listing puts in front
// of subforum descriptions.
const subtextPrefixLen = 2

// ParseForumID extracts the forum id from a link.
func ParseForumID(href string) (int, bool) {
	m := forumIDRegexp.FindStringSubmatch(href)
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return id, true
}

// ParseThreadTag splits a thread icon source of the form "<path>#<category>".
func ParseThreadTag(src string) (Tag, bool) {
	m := tagURLRegexp.FindStringSubmatch(src)
	if m == nil {
		return Tag{}, false
	}
	tag := Tag{
		URL:      m[1],
		Category: m[2],
	}
	if f := fileNameRegexp.FindStringSubmatch(m[1]); f != nil {
		tag.CacheFile = f[1]
	}
	return tag, true
}

// DigitsOnly drops every non-digit from s and parses the rest.
func DigitsOnly(s string) (int, error) {
	digits := nonDigitsRegexp.ReplaceAllString(s, "")
	if digits == "" {
		return 0, ErrInvalidID
	}
	return strconv.Atoi(digits)
}

// ParseUserID reads the userid query parameter of a profile link.
func ParseUserID(href string) (int, error) {
	u, err := url.Parse(href)
	if err != nil {
		return 0, err
	}
	v := u.Query().Get(ParamUserID)
	if v == "" {
		return 0, ErrInvalidID
	}
	return strconv.Atoi(v)
}

// NormalizeSubtext cleans a subforum description: quotes are removed, and
// the leading separator is cut when the text is long enough to have one.
// The separator is counted in characters, not bytes.
//
// The separator width was measured against live pages; it is a heuristic.
func NormalizeSubtext(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, `"`, ""))
	r := []rune(s)
	if len(r) < subtextPrefixLen {
		return s
	}
	return strings.TrimSpace(string(r[subtextPrefixLen:]))
}

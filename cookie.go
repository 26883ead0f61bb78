package main

import (
	"net/http"
	"sort"
	"strings"
)

// sessionCookieHeader renders cookies as a Cookie request header, in name
// order. Invalid cookies are left out.
func sessionCookieHeader(cookies map[string]string) string {
	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	var parts []string
	for _, name := range names {
		c := &http.Cookie{Name: name, Value: cookies[name]}
		if s := c.String(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "; ")
}

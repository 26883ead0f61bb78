package store

import (
	"fmt"
	"strconv"
	"time"

	"github.com/AlekSi/pointer"

	"github.com/ptt/forumsync/forum"
)

type Kind int

const (
	KindInt Kind = iota
	KindString
	// KindBool is stored as 0 or 1.
	KindBool
	// KindTime is stored as unix milliseconds.
	KindTime
)

// Column maps an optional field of forum.Thread to a storage column. Values
// are int64 for every kind but KindString.
type Column struct {
	Name string
	Kind Kind

	get func(t *forum.Thread) (interface{}, bool)
	set func(t *forum.Thread, v interface{})
}

// Value returns the storage value of the field, or false when it is unset.
func (c Column) Value(t *forum.Thread) (interface{}, bool) {
	return c.get(t)
}

// Set stores v, an int64 or a string depending on Kind, into t.
func (c Column) Set(t *forum.Thread, v interface{}) {
	c.set(t, v)
}

// Decode parses the text form of a stored value into t.
func (c Column) Decode(t *forum.Thread, raw string) error {
	if c.Kind == KindString {
		c.set(t, raw)
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("column %v: %w", c.Name, err)
	}
	c.set(t, n)
	return nil
}

func intCol(name string, field func(*forum.Thread) **int) Column {
	return Column{
		Name: name,
		Kind: KindInt,
		get: func(t *forum.Thread) (interface{}, bool) {
			if p := *field(t); p != nil {
				return int64(*p), true
			}
			return nil, false
		},
		set: func(t *forum.Thread, v interface{}) {
			*field(t) = pointer.ToInt(int(v.(int64)))
		},
	}
}

func stringCol(name string, field func(*forum.Thread) **string) Column {
	return Column{
		Name: name,
		Kind: KindString,
		get: func(t *forum.Thread) (interface{}, bool) {
			if p := *field(t); p != nil {
				return *p, true
			}
			return nil, false
		},
		set: func(t *forum.Thread, v interface{}) {
			*field(t) = pointer.ToString(v.(string))
		},
	}
}

func boolCol(name string, field func(*forum.Thread) **bool) Column {
	return Column{
		Name: name,
		Kind: KindBool,
		get: func(t *forum.Thread) (interface{}, bool) {
			p := *field(t)
			if p == nil {
				return nil, false
			}
			if *p {
				return int64(1), true
			}
			return int64(0), true
		},
		set: func(t *forum.Thread, v interface{}) {
			*field(t) = pointer.ToBool(v.(int64) != 0)
		},
	}
}

var bookmarkCol = Column{
	Name: "bookmarked",
	Kind: KindInt,
	get: func(t *forum.Thread) (interface{}, bool) {
		if t.Bookmarked != nil {
			return int64(*t.Bookmarked), true
		}
		return nil, false
	},
	set: func(t *forum.Thread, v interface{}) {
		b := forum.BookmarkTier(v.(int64))
		t.Bookmarked = &b
	},
}

var updatedCol = Column{
	Name: "updated_timestamp",
	Kind: KindTime,
	get: func(t *forum.Thread) (interface{}, bool) {
		if t.UpdatedTimestamp != nil {
			return t.UpdatedTimestamp.UnixMilli(), true
		}
		return nil, false
	},
	set: func(t *forum.Thread, v interface{}) {
		ts := time.UnixMilli(v.(int64))
		t.UpdatedTimestamp = &ts
	},
}

// ThreadColumns lists every optional thread field in storage order.
var ThreadColumns = []Column{
	intCol("forum_id", func(t *forum.Thread) **int { return &t.ForumID }),
	intCol("idx", func(t *forum.Thread) **int { return &t.Index }),
	stringCol("title", func(t *forum.Thread) **string { return &t.Title }),
	intCol("post_count", func(t *forum.Thread) **int { return &t.PostCount }),
	intCol("unread_count", func(t *forum.Thread) **int { return &t.UnreadCount }),
	bookmarkCol,
	boolCol("locked", func(t *forum.Thread) **bool { return &t.Locked }),
	boolCol("sticky", func(t *forum.Thread) **bool { return &t.Sticky }),
	boolCol("archived", func(t *forum.Thread) **bool { return &t.Archived }),
	boolCol("has_viewed", func(t *forum.Thread) **bool { return &t.HasViewedThread }),
	stringCol("author", func(t *forum.Thread) **string { return &t.Author }),
	intCol("author_id", func(t *forum.Thread) **int { return &t.AuthorID }),
	stringCol("last_poster", func(t *forum.Thread) **string { return &t.LastPoster }),
	stringCol("forum_title", func(t *forum.Thread) **string { return &t.ForumTitle }),
	stringCol("category", func(t *forum.Thread) **string { return &t.Category }),
	stringCol("tag_url", func(t *forum.Thread) **string { return &t.TagURL }),
	stringCol("tag_cache_file", func(t *forum.Thread) **string { return &t.TagCacheFile }),
	updatedCol,
}

// Present returns the columns set on t with their values.
func Present(t *forum.Thread) ([]Column, []interface{}) {
	var cols []Column
	var vals []interface{}
	for _, c := range ThreadColumns {
		if v, ok := c.Value(t); ok {
			cols = append(cols, c)
			vals = append(vals, v)
		}
	}
	return cols, vals
}

// ColumnByName finds a thread column.
func ColumnByName(name string) (Column, bool) {
	for _, c := range ThreadColumns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

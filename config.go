package main

import (
	"errors"
	"net/url"
)

type SyncConfig struct {
	Bind      []string
	BaseURL   string
	UserAgent string
	// SessionCookies are sent with every forum request, for a logged in
	// view.
	SessionCookies map[string]string

	// StoreDriver is "sqlite" or "redis".
	StoreDriver   string
	SQLitePath    string
	RedisAddress  string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	// MemcachedAddress is optional; listing pages are cached in process
	// without it.
	MemcachedAddress string
	MemcachedMaxConn int

	FetchMaxConn   int
	PostsPerPage   int
	ThreadsPerPage int
	// UserID is the forum account the session cookies belong to, 0 when
	// browsing anonymously.
	UserID int

	LogFile        string
	GrpcHealthBind string

	SitePrefix string
	FeedTitle  string
}

const (
	DefaultStoreDriver      = "sqlite"
	DefaultSQLitePath       = "forumsync.db"
	DefaultRedisPrefix      = "forumsync:"
	DefaultMemcachedMaxConn = 16
	DefaultFetchMaxConn     = 4
	DefaultPostsPerPage     = 40
	DefaultThreadsPerPage   = 40
	DefaultFeedTitle        = "Bookmarked threads"
)

func (c *SyncConfig) CheckAndFillDefaults() error {
	if c.BaseURL == "" {
		return errors.New("forum base url not specified")
	}
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("invalid forum base url: " + c.BaseURL)
	}

	if c.StoreDriver == "" {
		c.StoreDriver = DefaultStoreDriver
	}
	switch c.StoreDriver {
	case "sqlite":
		if c.SQLitePath == "" {
			c.SQLitePath = DefaultSQLitePath
		}
	case "redis":
		if c.RedisAddress == "" {
			return errors.New("redis address not specified")
		}
		if c.RedisPrefix == "" {
			c.RedisPrefix = DefaultRedisPrefix
		}
	default:
		return errors.New("unknown store driver: " + c.StoreDriver)
	}

	if c.MemcachedMaxConn <= 0 {
		c.MemcachedMaxConn = DefaultMemcachedMaxConn
	}

	if c.FetchMaxConn <= 0 {
		c.FetchMaxConn = DefaultFetchMaxConn
	}

	if c.PostsPerPage <= 0 {
		c.PostsPerPage = DefaultPostsPerPage
	}

	if c.ThreadsPerPage <= 0 {
		c.ThreadsPerPage = DefaultThreadsPerPage
	}

	if c.UserID < 0 {
		return errors.New("user id must not be negative")
	}

	if c.FeedTitle == "" {
		c.FeedTitle = DefaultFeedTitle
	}

	return nil
}

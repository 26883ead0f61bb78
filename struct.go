package main

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/ptt/forumsync/cache"
	"github.com/ptt/forumsync/forum"
)

// ListingRequest is a page of a forum listing, or of the bookmarks listing
// when ForumID is forum.BookmarksForumID.
type ListingRequest struct {
	ForumID int
	Page    int
}

func (r *ListingRequest) String() string {
	return fmt.Sprintf("forumsync:listing/%v/%v", r.ForumID, r.Page)
}

func (r *ListingRequest) IsBookmarks() bool {
	return r.ForumID == forum.BookmarksForumID
}

// ListingPage is the raw body of a listing page as served by the forum.
type ListingPage struct {
	Body      []byte
	FetchedAt time.Time
}

func gobEncodeBytes(obj interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(obj); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gobDecode(in []byte, out interface{}) error {
	buf := bytes.NewBuffer(in)
	return gob.NewDecoder(buf).Decode(out)
}

func makeSerializer[V any]() func(*V) ([]byte, error) {
	return func(val *V) ([]byte, error) {
		return gobEncodeBytes(val)
	}
}

func makeDeserializer[V any]() func([]byte) (*V, error) {
	return func(data []byte) (*V, error) {
		val := new(V)
		if err := gobDecode(data, val); err != nil {
			return nil, err
		}
		return val, nil
	}
}

func makeTypedCache[K cache.Key, V any](c cache.Cache, gen cache.Generator[K, *V]) *cache.TypedManager[K, *V] {
	return cache.NewTyped(c, gen, makeSerializer[V](), makeDeserializer[V]())
}

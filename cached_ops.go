package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"time"

	"github.com/ptt/forumsync/dom"
	"github.com/ptt/forumsync/forum"
	"github.com/ptt/forumsync/listing"
	"github.com/ptt/forumsync/pagecheck"
	"github.com/ptt/forumsync/paging"
)

const (
	ListingCacheTimeout = time.Minute
)

type ListingResult struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	ForumID   int    `json:"forumId"`
	Page      int    `json:"page"`
	Threads   []int  `json:"threads"`
	Subforums []int  `json:"subforums,omitempty"`
}

func generateListingPage(ctx context.Context, r *ListingRequest) (*ListingPage, time.Duration, error) {
	endpoint := forum.FunctionForum
	params := url.Values{}
	params.Set(forum.ParamPage, strconv.Itoa(r.Page))
	if r.IsBookmarks() {
		endpoint = forum.FunctionBookmark
	} else {
		params.Set(forum.ParamForumID, strconv.Itoa(r.ForumID))
	}

	body, err := fetcher.Get(ctx, endpoint, params, nil)
	if err != nil {
		return nil, 0, err
	}
	pg := &ListingPage{
		Body:      body,
		FetchedAt: time.Now(),
	}

	// Bookmarks change with every detail sync; never serve them stale.
	if r.IsBookmarks() {
		return pg, 0, nil
	}
	// Neither are error pages kept.
	if doc, err := dom.Parse(bytes.NewReader(body)); err != nil {
		return pg, 0, nil
	} else if _, bad := (pagecheck.Detector{}).Check(doc); bad {
		return pg, 0, nil
	}
	return pg, ListingCacheTimeout, nil
}

// syncListing stores the threads of one listing page, and the subforums of
// a forum listing. Page errors are reported in the result, not as errors.
func syncListing(ctx context.Context, r *ListingRequest) (*ListingResult, error) {
	if r.Page < 1 {
		r.Page = 1
	}
	res := &ListingResult{
		Status:  "synced",
		ForumID: r.ForumID,
		Page:    r.Page,
		Threads: []int{},
	}

	pg, err := listingCache.Get(ctx, r)
	if err != nil {
		return nil, err
	}
	doc, err := dom.Parse(bytes.NewReader(pg.Body))
	if err != nil {
		return nil, fmt.Errorf("parse listing %v: %w", r, err)
	}

	if msg, bad := (pagecheck.Detector{}).Check(doc); bad {
		res.Status, res.Message = "page_error", msg
		return res, nil
	}

	threads, err := listing.ParseThreads(doc, paging.PageToIndex(r.Page, config.ThreadsPerPage, 0), r.ForumID)
	if errors.Is(err, listing.ErrNoListingRoot) {
		res.Status, res.Message = "page_error", err.Error()
		return res, nil
	} else if err != nil {
		return nil, err
	}

	for i := range threads {
		if _, err := syncStore.UpsertThread(ctx, &threads[i]); err != nil {
			return nil, fmt.Errorf("listing %v: %w", r, err)
		}
		res.Threads = append(res.Threads, threads[i].ID)
	}

	if !r.IsBookmarks() {
		for _, f := range listing.ParseSubforums(doc, r.ForumID) {
			f := f
			if _, err := syncStore.UpsertForum(ctx, &f); err != nil {
				return nil, fmt.Errorf("listing %v: %w", r, err)
			}
			res.Subforums = append(res.Subforums, f.ID)
		}
	}

	log.Printf("listing %v: %v threads, %v subforums", r, len(res.Threads), len(res.Subforums))
	return res, nil
}

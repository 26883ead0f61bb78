// Package threadsync fetches a thread page and reconciles it with what is
// stored locally, without losing read position, unread counts or bookmarks.
package threadsync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"

	"github.com/ptt/forumsync/forum"
	"github.com/ptt/forumsync/pagecheck"
	"github.com/ptt/forumsync/paging"
	"github.com/ptt/forumsync/progress"
)

var (
	ErrInvalidRequest = errors.New("invalid sync request")
)

// Progress checkpoints.
const (
	ProgressStart     = 10
	ProgressFetched   = 50
	ProgressParsed    = 55
	ProgressReconcile = 65
	ProgressDone      = 100
)

type Status int

const (
	StatusSynced Status = iota
	StatusCancelled
	StatusPageError
)

func (s Status) String() string {
	switch s {
	case StatusSynced:
		return "synced"
	case StatusCancelled:
		return "cancelled"
	case StatusPageError:
		return "page_error"
	default:
		return "Status(" + strconv.Itoa(int(s)) + ")"
	}
}

type Request struct {
	ThreadID int
	Page     int
	PageSize int
	// UserID > 0 means the page was rendered for a logged in user.
	UserID int
}

func (r Request) validate() error {
	if r.ThreadID <= 0 || r.PageSize <= 0 {
		return fmt.Errorf("%w: thread %v, page size %v", ErrInvalidRequest, r.ThreadID, r.PageSize)
	}
	return nil
}

// Result is the outcome of a sync that did not fail outright. Message is
// set for StatusPageError. Thread holds what was written on StatusSynced.
type Result struct {
	Status  Status
	Message string
	Thread  *forum.Thread
}

type Engine struct {
	Fetcher  Fetcher
	Store    Store
	Posts    PostReconciler
	Detector PageErrorDetector
}

func New(f Fetcher, s Store, posts PostReconciler) *Engine {
	return &Engine{
		Fetcher:  f,
		Store:    s,
		Posts:    posts,
		Detector: pagecheck.Detector{},
	}
}

// SyncThread syncs one page of a thread.
//
// The fetch is the only blocking step. Cancelling ctx is honoured once,
// right after the fetch returns: the result is then StatusCancelled and
// nothing is written. Page errors stop the sync before any write. Fetch,
// store and post errors are returned as is; nothing is retried.
func (e *Engine) SyncThread(ctx context.Context, req Request, sink progress.Sink) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}
	sink = progress.OrNop(sink)
	id := req.ThreadID

	stored, _, err := e.Store.ThreadSnapshot(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("load thread %v: %w", id, err)
	}

	sink.Notify(id, ProgressStart)

	params := url.Values{}
	params.Set(forum.ParamThreadID, strconv.Itoa(id))
	params.Set(forum.ParamPerPage, strconv.Itoa(req.PageSize))
	params.Set(forum.ParamPage, strconv.Itoa(req.Page))
	params.Set(forum.ParamUserID, strconv.Itoa(req.UserID))
	doc, err := e.Fetcher.Fetch(ctx, forum.FunctionThread, params, progress.Scale(sink, id, ProgressStart, ProgressFetched))
	if ctx.Err() != nil {
		return Result{Status: StatusCancelled}, nil
	}
	if err != nil {
		return Result{}, err
	}

	sink.Notify(id, ProgressFetched)

	if msg, ok := e.detector().Check(doc); ok {
		return Result{Status: StatusPageError, Message: msg}, nil
	}

	meta, err := parseMeta(doc, stored)
	if err != nil {
		return Result{Status: StatusPageError, Message: err.Error()}, nil
	}
	thread := meta.thread(id)

	sink.Notify(id, ProgressParsed)

	c := reconcile(stored, req, meta.lastPage)
	if c.writePostCount {
		thread.PostCount = &c.postCount
		log.Printf("threadsync: %v lastPage %v, old total %v, new total %v", id, meta.lastPage, stored.PostCount, c.postCount)
	}
	if c.writeUnread {
		thread.UnreadCount = &c.unread
		log.Printf("threadsync: %v old unread %v, new unread %v", id, stored.UnreadCount, c.unread)
	}

	sink.Notify(id, ProgressReconcile)

	startIndex := paging.PageToIndex(req.Page, req.PageSize, 0)
	if err := e.posts().SyncPosts(ctx, doc, id, readThroughIndex(stored), stored.OPID, startIndex); err != nil {
		return Result{}, fmt.Errorf("sync posts of thread %v: %w", id, err)
	}

	if _, err := e.Store.UpsertThread(ctx, thread); err != nil {
		return Result{}, fmt.Errorf("upsert thread %v: %w", id, err)
	}

	sink.Notify(id, ProgressDone)
	return Result{Status: StatusSynced, Thread: thread}, nil
}

func (e *Engine) detector() PageErrorDetector {
	if e.Detector == nil {
		return pagecheck.Detector{}
	}
	return e.Detector
}

func (e *Engine) posts() PostReconciler {
	if e.Posts == nil {
		return NopPostReconciler
	}
	return e.Posts
}

// readThroughIndex is the number of posts the user had already read before
// this sync, or 0 for a thread never opened.
func readThroughIndex(s forum.Snapshot) int {
	if s.UnreadCount == 0 && !s.HasViewed {
		return 0
	}
	return s.PostCount - s.UnreadCount
}

type counts struct {
	postCount      int
	unread         int
	writePostCount bool
	writeUnread    bool
}

// reconcile derives the post and unread counts of a thread from the last
// page number of its page control.
//
// A logged in view trusts the last page boundary. An anonymous view never
// shrinks the known total. Unread never grows while a previous value is
// known, and drops to zero on the last page. The post count is only ever
// raised.
func reconcile(stored forum.Snapshot, req Request, lastPage int) counts {
	total := paging.PageToIndex(lastPage, req.PageSize, 0)
	if req.UserID <= 0 && stored.PostCount > total {
		total = stored.PostCount
	}

	unread := total - paging.PageToIndex(req.Page, req.PageSize, req.PageSize-1)
	if unread < 0 {
		unread = 0
	}
	if stored.UnreadCount > 0 && stored.UnreadCount < unread {
		unread = stored.UnreadCount
	}
	if req.Page == lastPage {
		unread = 0
	}

	grew := stored.PostCount < total
	return counts{
		postCount:      total,
		unread:         unread,
		writePostCount: grew,
		writeUnread:    grew || unread < stored.UnreadCount,
	}
}

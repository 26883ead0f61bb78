package threadsync

import (
	"context"
	"net/url"

	"github.com/ptt/forumsync/dom"
	"github.com/ptt/forumsync/forum"
)

// Fetcher retrieves and parses a remote page. progress receives the
// download progress in percent and may be nil.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string, params url.Values, progress func(int)) (dom.Node, error)
}

// Store is the part of the thread store the engine depends on.
type Store interface {
	ThreadSnapshot(ctx context.Context, id int) (forum.Snapshot, bool, error)
	// UpsertThread writes every non-nil field of t, updating by id and
	// inserting when no row matched.
	UpsertThread(ctx context.Context, t *forum.Thread) (int64, error)
}

// PostReconciler syncs the posts of one thread page. readThrough is the
// ordinal below which posts count as read.
type PostReconciler interface {
	SyncPosts(ctx context.Context, doc dom.Node, threadID, readThrough, opID, startIndex int) error
}

type PostReconcilerFunc func(ctx context.Context, doc dom.Node, threadID, readThrough, opID, startIndex int) error

func (f PostReconcilerFunc) SyncPosts(ctx context.Context, doc dom.Node, threadID, readThrough, opID, startIndex int) error {
	return f(ctx, doc, threadID, readThrough, opID, startIndex)
}

// NopPostReconciler leaves posts alone.
var NopPostReconciler PostReconciler = PostReconcilerFunc(func(context.Context, dom.Node, int, int, int, int) error { return nil })

// PageErrorDetector reports server-side errors rendered as a page.
type PageErrorDetector interface {
	Check(doc dom.Node) (msg string, ok bool)
}

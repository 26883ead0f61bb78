package threadsync

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/AlekSi/pointer"

	"github.com/ptt/forumsync/dom"
	"github.com/ptt/forumsync/forum"
)

type pageOpts struct {
	title      string
	closed     bool
	bookmark   string // "", "bookmark" or "unbookmark"; "" means archived
	forumIDs   []int
	lastPage   int
	errorPanel string
	noCrumbs   bool
	noPages    bool
}

func threadPage(o pageOpts) string {
	var b strings.Builder
	b.WriteString(`<html><head><title>thread</title></head><body>`)
	if o.errorPanel != "" {
		fmt.Fprintf(&b, `<div class="standarderror"><div class="inner">%s</div></div></body></html>`, o.errorPanel)
		return b.String()
	}
	if !o.noCrumbs {
		b.WriteString(`<div class="breadcrumbs"><a href="index.php">Forums</a>`)
		for _, id := range o.forumIDs {
			fmt.Fprintf(&b, ` &gt; <a href="forumdisplay.php?forumid=%d">F%d</a>`, id, id)
		}
		fmt.Fprintf(&b, ` &gt; <a class="bclast" href="#">%s</a></div>`, o.title)
	}
	if !o.noPages {
		b.WriteString(`<div class="pages"><select>`)
		for p := 1; p <= o.lastPage; p++ {
			fmt.Fprintf(&b, `<option value="%d">%d</option>`, p, p)
		}
		b.WriteString(`</select></div>`)
	}
	src := "images/forum-reply.gif"
	if o.closed {
		src = "images/forum-closed.gif"
	}
	fmt.Fprintf(&b, `<ul class="postbuttons"><li><a href="#"><img alt="Reply" src="%s"></a></li></ul>`, src)
	if o.bookmark != "" {
		fmt.Fprintf(&b, `<img class="thread_bookmark" src="images/%s.gif">`, o.bookmark)
	}
	b.WriteString(`<div id="thread"><table class="post"><tr><td>hi</td></tr></table></div></body></html>`)
	return b.String()
}

type fakeFetcher struct {
	page     string
	err      error
	cancel   context.CancelFunc
	endpoint string
	params   url.Values
}

func (f *fakeFetcher) Fetch(ctx context.Context, endpoint string, params url.Values, progress func(int)) (dom.Node, error) {
	f.endpoint, f.params = endpoint, params
	if progress != nil {
		progress(50)
	}
	if f.cancel != nil {
		f.cancel()
	}
	if f.err != nil {
		return nil, f.err
	}
	return dom.ParseString(f.page)
}

type fakeStore struct {
	mu      sync.Mutex
	threads map[int]*forum.Thread
	upserts int
	err     error
}

func newFakeStore(threads ...*forum.Thread) *fakeStore {
	s := &fakeStore{threads: make(map[int]*forum.Thread)}
	for _, t := range threads {
		s.threads[t.ID] = t
	}
	return s
}

func (s *fakeStore) ThreadSnapshot(ctx context.Context, id int) (forum.Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return forum.Snapshot{}, false, nil
	}
	return t.Snapshot(), true, nil
}

func (s *fakeStore) UpsertThread(ctx context.Context, t *forum.Thread) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if s.err != nil {
		return 0, s.err
	}
	if cur, ok := s.threads[t.ID]; ok {
		cur.Merge(t)
		return 1, nil
	}
	cp := &forum.Thread{ID: t.ID}
	cp.Merge(t)
	s.threads[t.ID] = cp
	return 1, nil
}

type postCall struct {
	threadID, readThrough, opID, startIndex int
}

type fakePosts struct {
	calls []postCall
	err   error
}

func (p *fakePosts) SyncPosts(ctx context.Context, doc dom.Node, threadID, readThrough, opID, startIndex int) error {
	p.calls = append(p.calls, postCall{threadID, readThrough, opID, startIndex})
	return p.err
}

type recordSink struct {
	mu       sync.Mutex
	percents []int
}

func (r *recordSink) Notify(id, percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.percents = append(r.percents, percent)
}

func (r *recordSink) has(p int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.percents {
		if x == p {
			return true
		}
	}
	return false
}

func TestSyncThreadFresh(t *testing.T) {
	f := &fakeFetcher{page: threadPage(pageOpts{title: "Megathread", bookmark: "bookmark", forumIDs: []int{1, 44}, lastPage: 3})}
	s := newFakeStore()
	posts := &fakePosts{}
	sink := &recordSink{}

	res, err := New(f, s, posts).SyncThread(context.Background(), Request{ThreadID: 7, Page: 1, PageSize: 40, UserID: 12}, sink)
	if err != nil {
		t.Fatalf("SyncThread: %v", err)
	}
	if res.Status != StatusSynced {
		t.Fatalf("Status = %v; want synced", res.Status)
	}

	if f.endpoint != forum.FunctionThread {
		t.Errorf("endpoint = %q", f.endpoint)
	}
	for k, want := range map[string]string{"threadid": "7", "perpage": "40", "pagenumber": "1", "userid": "12"} {
		if got := f.params.Get(k); got != want {
			t.Errorf("param %v = %q; want %q", k, got, want)
		}
	}

	got := s.threads[7]
	if got == nil {
		t.Fatal("thread not stored")
	}
	if *got.Title != "Megathread" || *got.ForumID != 44 || *got.Locked || *got.Archived {
		t.Errorf("meta = %q %v %v %v", *got.Title, *got.ForumID, *got.Locked, *got.Archived)
	}
	if *got.PostCount != 80 || *got.UnreadCount != 41 {
		t.Errorf("PostCount, UnreadCount = %v, %v; want 80, 41", *got.PostCount, *got.UnreadCount)
	}
	if got.Bookmarked != nil {
		t.Errorf("Bookmarked = %v; want unset", *got.Bookmarked)
	}

	if want := []postCall{{threadID: 7, readThrough: 0, opID: 0, startIndex: 0}}; fmt.Sprint(posts.calls) != fmt.Sprint(want) {
		t.Errorf("posts calls = %v; want %v", posts.calls, want)
	}

	for _, p := range []int{ProgressStart, 30, ProgressFetched, ProgressParsed, ProgressReconcile, ProgressDone} {
		if !sink.has(p) {
			t.Errorf("progress %v not reported; got %v", p, sink.percents)
		}
	}
}

func TestSyncThreadLastPageClearsUnread(t *testing.T) {
	f := &fakeFetcher{page: threadPage(pageOpts{title: "t", bookmark: "bookmark", lastPage: 3})}
	s := newFakeStore(&forum.Thread{ID: 7, PostCount: pointer.ToInt(60), UnreadCount: pointer.ToInt(30), HasViewedThread: pointer.ToBool(true)})

	if _, err := New(f, s, nil).SyncThread(context.Background(), Request{ThreadID: 7, Page: 3, PageSize: 40, UserID: 12}, nil); err != nil {
		t.Fatal(err)
	}
	if got := *s.threads[7].UnreadCount; got != 0 {
		t.Errorf("UnreadCount = %v; want 0", got)
	}
	if got := *s.threads[7].PostCount; got != 80 {
		t.Errorf("PostCount = %v; want 80", got)
	}
}

func TestSyncThreadAnonymousNeverShrinks(t *testing.T) {
	// pageToIndex(3, 20, 0) = 40 < 50 stored.
	f := &fakeFetcher{page: threadPage(pageOpts{title: "t", bookmark: "bookmark", lastPage: 3})}
	s := newFakeStore(&forum.Thread{ID: 7, PostCount: pointer.ToInt(50), UnreadCount: pointer.ToInt(5)})

	res, err := New(f, s, nil).SyncThread(context.Background(), Request{ThreadID: 7, Page: 1, PageSize: 20, UserID: 0}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Thread.PostCount != nil {
		t.Errorf("PostCount written: %v", *res.Thread.PostCount)
	}
	if res.Thread.UnreadCount != nil {
		t.Errorf("UnreadCount written: %v", *res.Thread.UnreadCount)
	}
	if got := *s.threads[7].PostCount; got != 50 {
		t.Errorf("PostCount = %v; want 50", got)
	}
}

func TestSyncThreadLoggedInDoesNotLowerPostCount(t *testing.T) {
	f := &fakeFetcher{page: threadPage(pageOpts{title: "t", bookmark: "bookmark", lastPage: 3})}
	s := newFakeStore(&forum.Thread{ID: 7, PostCount: pointer.ToInt(50), UnreadCount: pointer.ToInt(30), HasViewedThread: pointer.ToBool(true)})
	posts := &fakePosts{}

	if _, err := New(f, s, posts).SyncThread(context.Background(), Request{ThreadID: 7, Page: 1, PageSize: 20, UserID: 3}, nil); err != nil {
		t.Fatal(err)
	}
	// total 40, unread = 40 - 19 = 21 < 30.
	th := s.threads[7]
	if *th.PostCount != 50 || *th.UnreadCount != 21 {
		t.Errorf("PostCount, UnreadCount = %v, %v; want 50, 21", *th.PostCount, *th.UnreadCount)
	}
	if got := posts.calls[0].readThrough; got != 20 {
		t.Errorf("readThrough = %v; want 20", got)
	}
}

func TestSyncThreadUnreadNeverGrows(t *testing.T) {
	f := &fakeFetcher{page: threadPage(pageOpts{title: "t", bookmark: "bookmark", lastPage: 5})}
	s := newFakeStore(&forum.Thread{ID: 7, PostCount: pointer.ToInt(100), UnreadCount: pointer.ToInt(3), HasViewedThread: pointer.ToBool(true), AuthorID: pointer.ToInt(99)})
	posts := &fakePosts{}

	if _, err := New(f, s, posts).SyncThread(context.Background(), Request{ThreadID: 7, Page: 2, PageSize: 40, UserID: 3}, nil); err != nil {
		t.Fatal(err)
	}
	// total 160, computed unread 160 - 79 = 81, clamped to 3.
	th := s.threads[7]
	if *th.PostCount != 160 || *th.UnreadCount != 3 {
		t.Errorf("PostCount, UnreadCount = %v, %v; want 160, 3", *th.PostCount, *th.UnreadCount)
	}
	want := postCall{threadID: 7, readThrough: 97, opID: 99, startIndex: 40}
	if posts.calls[0] != want {
		t.Errorf("posts call = %+v; want %+v", posts.calls[0], want)
	}
}

func TestSyncThreadCancelledAfterFetch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &fakeFetcher{page: threadPage(pageOpts{title: "t", bookmark: "bookmark", lastPage: 1}), cancel: cancel}
	s := newFakeStore()
	posts := &fakePosts{}
	sink := &recordSink{}

	res, err := New(f, s, posts).SyncThread(ctx, Request{ThreadID: 7, Page: 1, PageSize: 40}, sink)
	if err != nil {
		t.Fatalf("SyncThread: %v", err)
	}
	if res.Status != StatusCancelled {
		t.Errorf("Status = %v; want cancelled", res.Status)
	}
	if s.upserts != 0 || len(posts.calls) != 0 {
		t.Errorf("upserts = %v, post syncs = %v; want none", s.upserts, len(posts.calls))
	}
	if sink.has(ProgressFetched) {
		t.Error("progress continued after cancellation")
	}
}

func TestSyncThreadCancelledFetchError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &fakeFetcher{err: context.Canceled, cancel: cancel}
	s := newFakeStore()

	res, err := New(f, s, nil).SyncThread(ctx, Request{ThreadID: 7, Page: 1, PageSize: 40}, nil)
	if err != nil || res.Status != StatusCancelled {
		t.Errorf("SyncThread = %v, %v; want cancelled", res.Status, err)
	}
	if s.upserts != 0 {
		t.Errorf("upserts = %v; want 0", s.upserts)
	}
}

func TestSyncThreadFetchErrorPropagates(t *testing.T) {
	errNet := errors.New("connection reset")
	s := newFakeStore()
	posts := &fakePosts{}

	_, err := New(&fakeFetcher{err: errNet}, s, posts).SyncThread(context.Background(), Request{ThreadID: 7, Page: 1, PageSize: 40}, nil)
	if !errors.Is(err, errNet) {
		t.Errorf("err = %v; want %v", err, errNet)
	}
	if s.upserts != 0 || len(posts.calls) != 0 {
		t.Errorf("upserts = %v, post syncs = %v; want none", s.upserts, len(posts.calls))
	}
}

func TestSyncThreadPageErrors(t *testing.T) {
	for _, test := range []struct {
		desc    string
		page    string
		wantMsg string
	}{
		{
			desc:    "server error panel",
			page:    threadPage(pageOpts{errorPanel: "Specified thread was not found in the live forums."}),
			wantMsg: "Specified thread was not found in the live forums.",
		},
		{
			desc:    "no breadcrumbs",
			page:    threadPage(pageOpts{title: "t", bookmark: "bookmark", lastPage: 2, noCrumbs: true}),
			wantMsg: ErrNoBreadcrumbs.Error(),
		},
		{
			desc:    "no page control",
			page:    threadPage(pageOpts{title: "t", bookmark: "bookmark", noPages: true}),
			wantMsg: "last page: page control not found",
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			s := newFakeStore()
			posts := &fakePosts{}
			res, err := New(&fakeFetcher{page: test.page}, s, posts).SyncThread(context.Background(), Request{ThreadID: 7, Page: 1, PageSize: 40}, nil)
			if err != nil {
				t.Fatalf("SyncThread: %v", err)
			}
			if res.Status != StatusPageError || res.Message != test.wantMsg {
				t.Errorf("result = %v %q; want page_error %q", res.Status, res.Message, test.wantMsg)
			}
			if s.upserts != 0 || len(posts.calls) != 0 {
				t.Errorf("upserts = %v, post syncs = %v; want none", s.upserts, len(posts.calls))
			}
		})
	}
}

func TestSyncThreadBookmarkNeverDowngrades(t *testing.T) {
	tier := func(b forum.BookmarkTier) *forum.BookmarkTier { return &b }
	for _, test := range []struct {
		desc     string
		stored   forum.BookmarkTier
		button   string
		want     forum.BookmarkTier
		archived bool
	}{
		{desc: "upgrade untracked", stored: forum.NotBookmarked, button: "unbookmark", want: forum.BookmarkTier1},
		{desc: "keep tier 2", stored: forum.BookmarkTier2, button: "unbookmark", want: forum.BookmarkTier2},
		{desc: "keep tier 3 without star", stored: forum.BookmarkTier3, button: "bookmark", want: forum.BookmarkTier3},
		{desc: "keep tier 1 on archive", stored: forum.BookmarkTier1, button: "", want: forum.BookmarkTier1, archived: true},
		{desc: "untracked stays untracked", stored: forum.NotBookmarked, button: "bookmark", want: forum.NotBookmarked},
	} {
		t.Run(test.desc, func(t *testing.T) {
			s := newFakeStore(&forum.Thread{ID: 7, Bookmarked: tier(test.stored)})
			f := &fakeFetcher{page: threadPage(pageOpts{title: "t", bookmark: test.button, lastPage: 1})}
			if _, err := New(f, s, nil).SyncThread(context.Background(), Request{ThreadID: 7, Page: 1, PageSize: 40, UserID: 1}, nil); err != nil {
				t.Fatal(err)
			}
			th := s.threads[7]
			if *th.Bookmarked != test.want {
				t.Errorf("Bookmarked = %v; want %v", *th.Bookmarked, test.want)
			}
			if *th.Archived != test.archived {
				t.Errorf("Archived = %v; want %v", *th.Archived, test.archived)
			}
		})
	}
}

func TestSyncThreadLocked(t *testing.T) {
	f := &fakeFetcher{page: threadPage(pageOpts{title: "t", closed: true, bookmark: "bookmark", lastPage: 1})}
	s := newFakeStore()
	if _, err := New(f, s, nil).SyncThread(context.Background(), Request{ThreadID: 7, Page: 1, PageSize: 40}, nil); err != nil {
		t.Fatal(err)
	}
	if !*s.threads[7].Locked {
		t.Error("Locked = false; want true")
	}
	if *s.threads[7].ForumID != forum.UnknownForumID {
		t.Errorf("ForumID = %v; want %v", *s.threads[7].ForumID, forum.UnknownForumID)
	}
}

func TestSyncThreadStoreAndPostErrors(t *testing.T) {
	errDisk := errors.New("disk full")
	page := threadPage(pageOpts{title: "t", bookmark: "bookmark", lastPage: 1})

	s := newFakeStore()
	_, err := New(&fakeFetcher{page: page}, s, &fakePosts{err: errDisk}).SyncThread(context.Background(), Request{ThreadID: 7, Page: 1, PageSize: 40}, nil)
	if !errors.Is(err, errDisk) {
		t.Errorf("posts failure: err = %v; want %v", err, errDisk)
	}
	if s.upserts != 0 {
		t.Errorf("upserts after post failure = %v; want 0", s.upserts)
	}

	s = newFakeStore()
	s.err = errDisk
	_, err = New(&fakeFetcher{page: page}, s, nil).SyncThread(context.Background(), Request{ThreadID: 7, Page: 1, PageSize: 40}, nil)
	if !errors.Is(err, errDisk) {
		t.Errorf("store failure: err = %v; want %v", err, errDisk)
	}
}

func TestSyncThreadInvalidRequest(t *testing.T) {
	for _, req := range []Request{{ThreadID: 0, PageSize: 40}, {ThreadID: 3, PageSize: 0}} {
		if _, err := New(&fakeFetcher{}, newFakeStore(), nil).SyncThread(context.Background(), req, nil); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("SyncThread(%+v) err = %v; want %v", req, err, ErrInvalidRequest)
		}
	}
}

func TestSyncThreadUnreadWithinPostCount(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		pageSize := 1 + rnd.Intn(50)
		lastPage := 1 + rnd.Intn(20)
		page := 1 + rnd.Intn(lastPage)
		postCount := rnd.Intn(1000)
		unread := 0
		if postCount > 0 {
			unread = rnd.Intn(postCount + 1)
		}
		userID := rnd.Intn(2)

		s := newFakeStore(&forum.Thread{ID: 7, PostCount: pointer.ToInt(postCount), UnreadCount: pointer.ToInt(unread)})
		f := &fakeFetcher{page: threadPage(pageOpts{title: "t", bookmark: "bookmark", lastPage: lastPage})}
		req := Request{ThreadID: 7, Page: page, PageSize: pageSize, UserID: userID}
		res, err := New(f, s, nil).SyncThread(context.Background(), req, nil)
		if err != nil {
			t.Fatal(err)
		}
		// The reported record is the written one; its counts hold on their own.
		if w := res.Thread; w.UnreadCount != nil {
			bound := postCount
			if w.PostCount != nil {
				bound = *w.PostCount
			}
			if *w.UnreadCount < 0 || *w.UnreadCount > bound {
				t.Fatalf("%+v: reported unread %v above %v", req, *w.UnreadCount, bound)
			}
		}
		th := s.threads[7]
		if *th.UnreadCount < 0 || *th.UnreadCount > *th.PostCount {
			t.Fatalf("%+v from (%v, %v), lastPage %v: unread %v, posts %v",
				req, postCount, unread, lastPage, *th.UnreadCount, *th.PostCount)
		}
		if *th.PostCount < postCount {
			t.Fatalf("%+v: post count went down from %v to %v", req, postCount, *th.PostCount)
		}
	}
}

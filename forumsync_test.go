package main

import (
	"encoding/json"
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/tools/blog/atom"
)

const forumPage = `<html><body>
<div class="breadcrumbs"><a href="index.php">Forums</a> &gt; <a class="bclast" href="forumdisplay.php?forumid=44">Games</a></div>
<table id="subforums"><tbody>
<tr class="subforum"><td class="title"><dl><dt><a href="forumdisplay.php?forumid=103">Let's Play</a></dt><dd>- "Videos"</dd></dl></td></tr>
</tbody></table>
<table id="forum"><tbody>
<tr class="thread" id=""><td>header</td></tr>
<tr class="thread" id="thread101">
<td class="star bm1"></td>
<td class="title"><a class="thread_title" href="showthread.php?threadid=101">Megathread</a>
<div class="lastseen"><a class="x" href="#">X</a><a class="count" href="#"><b>5</b></a></div></td>
<td class="author"><a href="member.php?action=getinfo&amp;userid=42">OP</a></td>
<td class="replies"><a href="#">99</a></td>
<td class="lastpost"><a class="author" href="#">Late</a></td>
</tr>
<tr class="thread closed" id="thread102">
<td class="title"><a class="thread_title" href="showthread.php?threadid=102">Old news</a></td>
<td class="author"><a href="member.php?action=getinfo&amp;userid=43">Other</a></td>
<td class="replies"><a href="#">3</a></td>
<td class="lastpost"><a class="author" href="#">Someone</a></td>
</tr>
</tbody></table></body></html>`

const threadPage = `<html><head><title>Megathread</title></head><body>
<div class="breadcrumbs"><a href="index.php">Forums</a> &gt; <a href="forumdisplay.php?forumid=44">Games</a> &gt; <a class="bclast" href="#">Megathread</a></div>
<div class="pages"><select><option value="1">1</option><option value="2">2</option><option value="3">3</option></select></div>
<ul class="postbuttons"><li><img alt="Reply" src="images/forum-reply.gif"></li></ul>
<img class="thread_bookmark" src="images/unbookmark.gif">
<div id="thread"></div></body></html>`

const errorPage = `<html><body><div class="standarderror"><div class="inner">Specified thread was not found.</div></div></body></html>`

func setupTestServer(t *testing.T) *int32 {
	t.Helper()
	var listingFetches int32
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/forumdisplay.php":
			atomic.AddInt32(&listingFetches, 1)
			w.Write([]byte(forumPage))
		case "/bookmarkthreads.php":
			w.Write([]byte(forumPage))
		case "/showthread.php":
			switch r.FormValue("threadid") {
			case "101":
				w.Write([]byte(threadPage))
			case "404":
				http.NotFound(w, r)
			default:
				w.Write([]byte(errorPage))
			}
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(remote.Close)

	config = SyncConfig{
		BaseURL:    remote.URL,
		SQLitePath: filepath.Join(t.TempDir(), "sync.db"),
		UserID:     7,
		SitePrefix: "https://sync.example.com",
	}
	if err := config.CheckAndFillDefaults(); err != nil {
		t.Fatal(err)
	}
	if err := setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	t.Cleanup(func() {
		tracker.Close()
		syncStore.Close()
	})
	return &listingFetches
}

func do(t *testing.T, method, target string, out interface{}) int {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	if out != nil && w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("%v %v: decode %q: %v", method, target, w.Body.String(), err)
		}
	}
	return w.Code
}

func TestSyncForumThenThread(t *testing.T) {
	fetches := setupTestServer(t)

	var lr ListingResult
	if code := do(t, "POST", "/sync/forum/44?page=2", &lr); code != http.StatusOK {
		t.Fatalf("sync forum: %v", code)
	}
	if lr.Status != "synced" || len(lr.Threads) != 2 || len(lr.Subforums) != 1 {
		t.Fatalf("sync forum = %+v", lr)
	}

	// The second sync of the same page is served from the cache.
	do(t, "POST", "/sync/forum/44?page=2", nil)
	if n := atomic.LoadInt32(fetches); n != 1 {
		t.Errorf("listing fetched %v times; want 1", n)
	}

	var ft ForumThreadsResponse
	if code := do(t, "GET", "/forum/44/threads", &ft); code != http.StatusOK {
		t.Fatalf("forum threads: %v", code)
	}
	if len(ft.Threads) != 2 || ft.Threads[0].ID != 101 || *ft.Threads[0].Index != 40 || *ft.Threads[1].Index != 41 {
		t.Fatalf("forum threads = %+v", ft.Threads)
	}
	if *ft.Threads[0].PostCount != 100 || *ft.Threads[0].UnreadCount != 5 || *ft.Threads[0].Bookmarked != 2 {
		t.Errorf("thread 101 = %+v", ft.Threads[0])
	}

	// Page 1 of 3 with 40 per page: 80 posts, 5 unread kept.
	var ts ThreadSyncResponse
	if code := do(t, "POST", "/sync/thread/101?page=1&perpage=40", &ts); code != http.StatusOK {
		t.Fatalf("sync thread: %v", code)
	}
	if ts.Status != "synced" {
		t.Fatalf("sync thread = %+v", ts)
	}

	var tr ThreadResponse
	if code := do(t, "GET", "/thread/101", &tr); code != http.StatusOK {
		t.Fatalf("thread: %v", code)
	}
	th := tr.Thread
	if *th.PostCount != 100 || *th.UnreadCount != 5 || *th.ForumID != 44 || *th.Bookmarked != 2 || *th.Title != "Megathread" {
		t.Errorf("thread = %+v", th)
	}
	if tr.Pages != 3 || tr.FirstUnreadPage != 3 {
		t.Errorf("pages %v, first unread %v; want 3, 3", tr.Pages, tr.FirstUnreadPage)
	}

	// Progress is recorded asynchronously.
	deadline := time.Now().Add(time.Second)
	for {
		var p map[string]int
		if code := do(t, "GET", "/progress/101", &p); code == http.StatusOK && p["percent"] == 100 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("progress of thread 101 never reached 100")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSyncBookmarksAndFeed(t *testing.T) {
	setupTestServer(t)

	var lr ListingResult
	if code := do(t, "POST", "/sync/bookmarks", &lr); code != http.StatusOK {
		t.Fatalf("sync bookmarks: %v", code)
	}
	if len(lr.Threads) != 2 || len(lr.Subforums) != 0 {
		t.Errorf("sync bookmarks = %+v", lr)
	}

	// Bookmark rows carry no forum.
	var ft ForumThreadsResponse
	do(t, "GET", "/forum/44/threads", &ft)
	if len(ft.Threads) != 0 {
		t.Errorf("forum threads after bookmark sync = %+v", ft.Threads)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/atom/bookmarks.xml", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("feed: %v %v", w.Code, w.Body.String())
	}
	var feed atom.Feed
	if err := xml.Unmarshal(w.Body.Bytes(), &feed); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if feed.ID != "https://sync.example.com/atom/bookmarks.xml" || len(feed.Entry) != 1 || feed.Entry[0].Title != "Megathread" {
		t.Errorf("feed = %+v", feed)
	}
	if href := feed.Entry[0].Link[0].Href; !strings.Contains(href, "threadid=101") || !strings.Contains(href, "pagenumber=3") {
		t.Errorf("entry link = %q", href)
	}
}

func TestErrors(t *testing.T) {
	setupTestServer(t)

	for _, test := range []struct {
		desc     string
		method   string
		target   string
		wantCode int
	}{
		{desc: "unknown thread", method: "GET", target: "/thread/5", wantCode: http.StatusNotFound},
		{desc: "no progress", method: "GET", target: "/progress/5", wantCode: http.StatusNotFound},
		{desc: "bad page size", method: "POST", target: "/sync/thread/101?perpage=0", wantCode: http.StatusBadRequest},
		{desc: "bad page", method: "POST", target: "/sync/thread/101?page=x", wantCode: http.StatusBadRequest},
		{desc: "remote not found", method: "POST", target: "/sync/thread/404", wantCode: http.StatusNotFound},
		{desc: "wrong method", method: "GET", target: "/sync/bookmarks", wantCode: http.StatusMethodNotAllowed},
	} {
		if code := do(t, test.method, test.target, nil); code != test.wantCode {
			t.Errorf("%v: %v %v = %v; want %v", test.desc, test.method, test.target, code, test.wantCode)
		}
	}

	var ts ThreadSyncResponse
	if code := do(t, "POST", "/sync/thread/9", &ts); code != http.StatusOK {
		t.Fatalf("sync thread 9: %v", code)
	}
	if ts.Status != "page_error" || ts.Message != "Specified thread was not found." {
		t.Errorf("sync thread 9 = %+v", ts)
	}
	if code := do(t, "GET", "/thread/9", nil); code != http.StatusNotFound {
		t.Errorf("thread 9 stored after a page error: %v", code)
	}
}

func TestSessionCookieHeader(t *testing.T) {
	got := sessionCookieHeader(map[string]string{"sessionid": "abc", "bbuserid": "7", "bad name": "x"})
	if want := "bbuserid=7; sessionid=abc"; got != want {
		t.Errorf("sessionCookieHeader() = %q; want %q", got, want)
	}
}

package main

import (
	"encoding/json"
	"encoding/xml"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/go-redis/redis"
	"github.com/gorilla/mux"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ptt/forumsync/atomfeed"
	"github.com/ptt/forumsync/cache"
	"github.com/ptt/forumsync/fetch"
	"github.com/ptt/forumsync/forum"
	"github.com/ptt/forumsync/paging"
	"github.com/ptt/forumsync/progress"
	"github.com/ptt/forumsync/store"
	"github.com/ptt/forumsync/store/redisstore"
	"github.com/ptt/forumsync/store/sqlite"
	"github.com/ptt/forumsync/threadsync"
)

const (
	ProgressQueueLen = 256
	ProgressMaxIDs   = 4096
)

var syncStore store.Store
var fetcher *fetch.Client
var engine *threadsync.Engine
var tracker *progress.Tracker
var router *mux.Router
var listingCache *cache.TypedManager[*ListingRequest, *ListingPage]
var atomConverter *atomfeed.Converter

var configPath string
var config SyncConfig

func init() {
	flag.StringVar(&configPath, "conf", "config.json", "config file")
}

func loadConfig() error {
	f, err := os.Open(configPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&config); err != nil {
		return err
	}

	return config.CheckAndFillDefaults()
}

func setupLogging() {
	if config.LogFile == "" {
		return
	}
	log.SetOutput(&lumberjack.Logger{
		Filename:   config.LogFile,
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	})
}

func openStore() (store.Store, error) {
	switch config.StoreDriver {
	case "redis":
		return redisstore.New(&redis.Options{
			Addr:     config.RedisAddress,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		}, config.RedisPrefix)
	default:
		return sqlite.Open(config.SQLitePath)
	}
}

// setup wires every component from config.
func setup() error {
	var err error
	if syncStore, err = openStore(); err != nil {
		return err
	}

	fetcher = fetch.NewClient(config.BaseURL, config.FetchMaxConn)
	fetcher.UserAgent = config.UserAgent
	fetcher.Cookie = sessionCookieHeader(config.SessionCookies)

	var c cache.Cache
	if config.MemcachedAddress != "" {
		c = cache.NewMemcache(config.MemcachedAddress, config.MemcachedMaxConn)
	} else {
		c = cache.NewMemory()
	}
	listingCache = makeTypedCache[*ListingRequest, ListingPage](c, generateListingPage)

	tracker = progress.NewTracker(ProgressQueueLen, ProgressMaxIDs)
	engine = threadsync.New(fetcher, syncStore, nil)

	router = createRouter()
	atomConverter = &atomfeed.Converter{
		FeedTitle: config.FeedTitle,
		PageSize:  config.PostsPerPage,
		LinkFeed: func() (string, error) {
			u, err := router.Get("atom_bookmarks").URLPath()
			if err != nil {
				return "", err
			}
			return config.SitePrefix + u.String(), nil
		},
		LinkThread: func(threadID, page int) (string, error) {
			return fetcher.URL(forum.FunctionThread, url.Values{
				forum.ParamThreadID: {strconv.Itoa(threadID)},
				forum.ParamPage:     {strconv.Itoa(page)},
				forum.ParamPerPage:  {strconv.Itoa(config.PostsPerPage)},
			}), nil
		},
	}
	return nil
}

func main() {
	flag.Parse()

	if err := loadConfig(); err != nil {
		log.Fatal("loadConfig:", err)
	}
	setupLogging()

	if err := setup(); err != nil {
		log.Fatal("setup:", err)
	}
	defer syncStore.Close()
	defer tracker.Close()

	http.Handle("/", router)

	if len(config.Bind) == 0 {
		log.Fatal("No bind addresses specified in config")
	}
	for _, addr := range config.Bind {
		part := strings.SplitN(addr, ":", 2)
		if len(part) != 2 {
			log.Fatal("Invalid bind address: ", addr)
		}
		if listener, err := net.Listen(part[0], part[1]); err != nil {
			log.Fatal("Listen failed for address: ", addr, " error: ", err)
		} else {
			if part[0] == "unix" {
				os.Chmod(part[1], 0777)
				// Ignores errors, we can't do anything to those.
			}
			svr := &http.Server{
				MaxHeaderBytes: 64 * 1024,
			}
			go svr.Serve(listener)
		}
	}

	if config.GrpcHealthBind != "" {
		listener, err := net.Listen("tcp", config.GrpcHealthBind)
		if err != nil {
			log.Fatal("Listen failed for grpc health: ", err)
		}
		hs := health.NewServer()
		hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		svr := grpc.NewServer()
		healthpb.RegisterHealthServer(svr, hs)
		go svr.Serve(listener)
		defer svr.GracefulStop()
	}

	progExit := make(chan os.Signal, 1)
	signal.Notify(progExit, os.Interrupt)
	<-progExit
}

func createRouter() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc(`/sync/thread/{tid:[0-9]+}`, errorWrapperHandler(handleSyncThread)).Methods("POST").Name("sync_thread")
	router.HandleFunc(`/sync/forum/{fid:[0-9]+}`, errorWrapperHandler(handleSyncForum)).Methods("POST").Name("sync_forum")
	router.HandleFunc(`/sync/bookmarks`, errorWrapperHandler(handleSyncBookmarks)).Methods("POST").Name("sync_bookmarks")
	router.HandleFunc(`/thread/{tid:[0-9]+}`, errorWrapperHandler(handleThread)).Methods("GET").Name("thread")
	router.HandleFunc(`/forum/{fid:[0-9]+}/threads`, errorWrapperHandler(handleForumThreads)).Methods("GET").Name("forum_threads")
	router.HandleFunc(`/progress/{tid:[0-9]+}`, errorWrapperHandler(handleProgress)).Methods("GET").Name("progress")
	router.HandleFunc(`/atom/bookmarks.xml`, errorWrapperHandler(handleBookmarksFeed)).Methods("GET").Name("atom_bookmarks")
	return router
}

func setCommonResponseHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Server", "forumsync")
	h.Set("Content-Type", "application/json; charset=utf-8")
}

func errorWrapperHandler(f func(*Context, http.ResponseWriter) error) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		setCommonResponseHeaders(w)

		if err := clarifyRemoteError(handleRequest(w, r, f)); err != nil {
			writeError(w, err)
		}
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusOf(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		log.Println(err)
		msg = "internal server error"
	}
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func handleRequest(w http.ResponseWriter, r *http.Request, f func(*Context, http.ResponseWriter) error) error {
	c := new(Context)
	if err := c.MergeFromRequest(r); err != nil {
		return NewBadRequestError(err)
	}

	if err := f(c, w); err != nil {
		return err
	}

	return nil
}

func writeJSON(w http.ResponseWriter, v interface{}) error {
	return json.NewEncoder(w).Encode(v)
}

type ThreadSyncResponse struct {
	Status  string        `json:"status"`
	Message string        `json:"message,omitempty"`
	Thread  *forum.Thread `json:"thread,omitempty"`
}

func handleSyncThread(c *Context, w http.ResponseWriter) error {
	tid, err := c.PathID("tid")
	if err != nil {
		return err
	}
	req := threadsync.Request{ThreadID: tid}
	if req.Page, err = c.FormInt("page", 1); err != nil {
		return err
	}
	if req.PageSize, err = c.FormInt("perpage", config.PostsPerPage); err != nil {
		return err
	}
	if req.UserID, err = c.FormInt("userid", config.UserID); err != nil {
		return err
	}
	if req.PageSize <= 0 {
		return NewBadRequestError(fmt.Errorf("invalid perpage: %v", req.PageSize))
	}

	// A client hanging up cancels the sync.
	res, err := engine.SyncThread(c.R.Context(), req, tracker)
	if err != nil {
		return err
	}
	if res.Status == threadsync.StatusCancelled {
		log.Printf("sync thread %v cancelled", tid)
	}
	return writeJSON(w, &ThreadSyncResponse{
		Status:  res.Status.String(),
		Message: res.Message,
		Thread:  res.Thread,
	})
}

func handleSyncForum(c *Context, w http.ResponseWriter) error {
	fid, err := c.PathID("fid")
	if err != nil {
		return err
	}
	page, err := c.FormInt("page", 1)
	if err != nil {
		return err
	}
	res, err := syncListing(c.R.Context(), &ListingRequest{ForumID: fid, Page: page})
	if err != nil {
		return err
	}
	return writeJSON(w, res)
}

func handleSyncBookmarks(c *Context, w http.ResponseWriter) error {
	page, err := c.FormInt("page", 1)
	if err != nil {
		return err
	}
	res, err := syncListing(c.R.Context(), &ListingRequest{ForumID: forum.BookmarksForumID, Page: page})
	if err != nil {
		return err
	}
	return writeJSON(w, res)
}

type ThreadResponse struct {
	Thread          *forum.Thread `json:"thread"`
	Pages           int           `json:"pages"`
	FirstUnreadPage int           `json:"firstUnreadPage"`
}

func handleThread(c *Context, w http.ResponseWriter) error {
	tid, err := c.PathID("tid")
	if err != nil {
		return err
	}
	t, err := syncStore.Thread(c.R.Context(), tid)
	if err != nil {
		return err
	}

	var postCount, unread int
	if t.PostCount != nil {
		postCount = *t.PostCount
	}
	if t.UnreadCount != nil {
		unread = *t.UnreadCount
	}
	return writeJSON(w, &ThreadResponse{
		Thread:          t,
		Pages:           paging.LastPage(postCount, config.PostsPerPage),
		FirstUnreadPage: paging.FirstUnreadPage(postCount, unread, config.PostsPerPage),
	})
}

type ForumThreadsResponse struct {
	Forum   *forum.Forum    `json:"forum,omitempty"`
	Threads []*forum.Thread `json:"threads"`
}

func handleForumThreads(c *Context, w http.ResponseWriter) error {
	fid, err := c.PathID("fid")
	if err != nil {
		return err
	}
	threads, err := syncStore.ForumThreads(c.R.Context(), fid)
	if err != nil {
		return err
	}
	if threads == nil {
		threads = []*forum.Thread{}
	}

	resp := &ForumThreadsResponse{Threads: threads}
	// Only subforums have a stored record.
	if f, err := syncStore.Forum(c.R.Context(), fid); err == nil {
		resp.Forum = f
	}
	return writeJSON(w, resp)
}

func handleProgress(c *Context, w http.ResponseWriter) error {
	tid, err := c.PathID("tid")
	if err != nil {
		return err
	}
	pct, ok := tracker.Percent(tid)
	if !ok {
		return NewNotFoundError(fmt.Errorf("no sync of thread %v", tid))
	}
	return writeJSON(w, map[string]int{"threadId": tid, "percent": pct})
}

func handleBookmarksFeed(c *Context, w http.ResponseWriter) error {
	threads, err := syncStore.BookmarkedThreads(c.R.Context())
	if err != nil {
		return err
	}
	feed, err := atomConverter.Convert(threads)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/xml")
	if _, err = w.Write([]byte(xml.Header)); err != nil {
		return err
	}
	return xml.NewEncoder(w).Encode(feed)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ptt/forumsync/forum"
)

type apiError struct {
	Code    int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%v %v: %v", e.Code, http.StatusText(e.Code), e.Message)
}

type apiClient struct {
	addr string
	http *http.Client
}

func newAPIClient(addr string) *apiClient {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &apiClient{
		addr: strings.TrimRight(addr, "/"),
		http: &http.Client{Timeout: 2 * time.Minute},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	u := c.addr + path
	if q := form.Encode(); q != "" {
		u += "?" + q
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(body))
		}
		return &apiError{Code: resp.StatusCode, Message: e.Error}
	}
	return json.Unmarshal(body, out)
}

type threadSyncResult struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	Thread  *forum.Thread `json:"thread"`
}

type listingResult struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	ForumID   int    `json:"forumId"`
	Page      int    `json:"page"`
	Threads   []int  `json:"threads"`
	Subforums []int  `json:"subforums"`
}

type threadInfo struct {
	Thread          *forum.Thread `json:"thread"`
	Pages           int           `json:"pages"`
	FirstUnreadPage int           `json:"firstUnreadPage"`
}

func (c *apiClient) SyncThread(ctx context.Context, id int, form url.Values) (*threadSyncResult, error) {
	var r threadSyncResult
	return &r, c.do(ctx, http.MethodPost, fmt.Sprintf("/sync/thread/%v", id), form, &r)
}

func (c *apiClient) SyncForum(ctx context.Context, id int, form url.Values) (*listingResult, error) {
	var r listingResult
	return &r, c.do(ctx, http.MethodPost, fmt.Sprintf("/sync/forum/%v", id), form, &r)
}

func (c *apiClient) SyncBookmarks(ctx context.Context, form url.Values) (*listingResult, error) {
	var r listingResult
	return &r, c.do(ctx, http.MethodPost, "/sync/bookmarks", form, &r)
}

func (c *apiClient) Thread(ctx context.Context, id int) (*threadInfo, error) {
	var r threadInfo
	return &r, c.do(ctx, http.MethodGet, fmt.Sprintf("/thread/%v", id), nil, &r)
}

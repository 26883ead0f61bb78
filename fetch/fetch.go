// Package fetch downloads forum pages.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ptt/forumsync/dom"
	"github.com/ptt/forumsync/gate"
)

const (
	DefaultTimeout = 30 * time.Second

	// Pages are small; anything bigger is not a forum page.
	DefaultMaxBodySize = 16 << 20
)

var (
	ErrBodyTooLarge = errors.New("response body too large")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %v: %v %v", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

type Client struct {
	BaseURL   string
	HTTP      *http.Client
	Gate      *gate.Gate
	UserAgent string
	// Cookie is sent as is, for a logged in session.
	Cookie string
	// MaxBodySize bounds a response body; zero means DefaultMaxBodySize.
	MaxBodySize int64
}

func NewClient(baseURL string, maxConn int) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: DefaultTimeout},
		Gate:    gate.New(maxConn, maxConn*4),
	}
}

// URL returns the address of endpoint with params.
func (c *Client) URL(endpoint string, params url.Values) string {
	u := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	if q := params.Encode(); q != "" {
		u += "?" + q
	}
	return u
}

// Get downloads endpoint. progress, when not nil, receives the download
// progress in percent; it only moves when the length of the body is known.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values, progress func(int)) ([]byte, error) {
	var body []byte
	do := func() error {
		var err error
		body, err = c.get(ctx, c.URL(endpoint, params), progress)
		return err
	}

	var err error
	if c.Gate != nil {
		err = c.Gate.Do(ctx, do)
	} else {
		err = do()
	}
	return body, err
}

func (c *Client) get(ctx context.Context, u string, progress func(int)) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if c.Cookie != "" {
		req.Header.Set("Cookie", c.Cookie)
	}

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: u, StatusCode: resp.StatusCode}
	}

	limit := c.MaxBodySize
	if limit <= 0 {
		limit = DefaultMaxBodySize
	}
	if resp.ContentLength > limit {
		return nil, fmt.Errorf("read %v: %w", u, ErrBodyTooLarge)
	}

	var r io.Reader = io.LimitReader(resp.Body, limit+1)
	if progress != nil && resp.ContentLength > 0 {
		r = &progressReader{r: r, total: resp.ContentLength, report: progress, last: -1}
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("read %v: %w", u, err)
	}
	if int64(buf.Len()) > limit {
		return nil, fmt.Errorf("read %v: %w", u, ErrBodyTooLarge)
	}
	if progress != nil {
		progress(100)
	}
	return buf.Bytes(), nil
}

// Fetch downloads and parses endpoint.
func (c *Client) Fetch(ctx context.Context, endpoint string, params url.Values, progress func(int)) (dom.Node, error) {
	body, err := c.Get(ctx, endpoint, params, progress)
	if err != nil {
		return nil, err
	}
	return dom.Parse(bytes.NewReader(body))
}

type progressReader struct {
	r      io.Reader
	n      int64
	total  int64
	last   int
	report func(int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.n += int64(n)
	pct := int(p.n * 100 / p.total)
	if pct > 100 {
		pct = 100
	}
	if pct != p.last {
		p.last = pct
		p.report(pct)
	}
	return n, err
}

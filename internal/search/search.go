package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL    = "https://html.duckduckgo.com/html/"
	DefaultMaxResults = 5
	defaultTimeout    = 15 * time.Second
	defaultRetries    = 2
	maxPageBytes      = 2 << 20
	userAgent         = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Searcher returns destination URLs for a query, in result-page order.
type Searcher interface {
	Search(ctx context.Context, query string) ([]string, error)
}

type Config struct {
	BaseURL           string
	MaxResults        int
	RequestsPerSecond float64
	MaxRetries        uint64
	Client            *http.Client
}

// DuckDuckGo scrapes the no-script HTML results page.
type DuckDuckGo struct {
	baseURL    string
	maxResults int
	maxRetries uint64
	client     *http.Client
	limiter    *rate.Limiter
	newBackOff func() backoff.BackOff
}

func NewDuckDuckGo(cfg Config) *DuckDuckGo {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	retries := cfg.MaxRetries
	if retries == 0 {
		retries = defaultRetries
	}
	return &DuckDuckGo{
		baseURL:    baseURL,
		maxResults: maxResults,
		maxRetries: retries,
		client:     client,
		limiter:    rate.NewLimiter(limit, 1),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxInterval = 5 * time.Second
			return b
		},
	}
}

func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	var results []string
	attempt := func() error {
		if err := d.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		urls, err := d.fetch(ctx, query)
		if err != nil {
			return err
		}
		results = urls
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(d.newBackOff(), d.maxRetries), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		return nil, err
	}
	return results, nil
}

func (d *DuckDuckGo) fetch(ctx context.Context, query string) ([]string, error) {
	endpoint, err := url.Parse(d.baseURL)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	params := endpoint.Query()
	params.Set("q", query)
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("search request failed: %s", resp.Status)
	}
	if resp.StatusCode >= 400 {
		return nil, backoff.Permanent(fmt.Errorf("search request failed: %s", resp.Status))
	}
	urls, err := ParseResults(io.LimitReader(resp.Body, maxPageBytes), d.maxResults)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	return urls, nil
}

// ParseResults walks the anchors of a results page and returns the
// destinations of redirect links, at most max, without duplicates.
func ParseResults(r io.Reader, max int) ([]string, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	var urls []string
	seen := map[string]bool{}
	var visit func(*html.Node) bool
	visit = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			if dest, ok := Destination(attr(n, "href")); ok && !seen[dest] {
				seen[dest] = true
				urls = append(urls, dest)
				if len(urls) >= max {
					return false
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !visit(c) {
				return false
			}
		}
		return true
	}
	visit(root)
	return urls, nil
}

// Destination extracts the target of a duckduckgo.com/l/?uddg= redirect
// link. Any other href is rejected.
func Destination(href string) (string, bool) {
	if href == "" {
		return "", false
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	host := strings.ToLower(parsed.Hostname())
	if host != "duckduckgo.com" && !strings.HasSuffix(host, ".duckduckgo.com") {
		return "", false
	}
	if parsed.Path != "/l/" {
		return "", false
	}
	dest := parsed.Query().Get("uddg")
	if !strings.HasPrefix(dest, "http://") && !strings.HasPrefix(dest, "https://") {
		return "", false
	}
	return dest, true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

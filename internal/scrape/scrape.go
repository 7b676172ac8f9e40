package scrape

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/Keyring-Network/groundchat/internal/content"
	"github.com/Keyring-Network/groundchat/internal/store"
)

const (
	KeyPrefix       = "scraped:"
	DefaultTTL      = time.Hour
	defaultTimeout  = 15 * time.Second
	maxBodyBytes    = 5 << 20
	defaultAgent    = "Mozilla/5.0 (compatible; groundchat/1.0; +https://github.com/Keyring-Network/groundchat)"
	acceptHTMLTypes = "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8"
)

// Fetcher retrieves the raw HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// FetchError reports a page that could not be retrieved. StatusCode is zero
// when no response arrived.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &HTTPFetcher{client: client, userAgent: defaultAgent}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", acceptHTMLTypes)
	resp, err := f.client.Do(req)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &FetchError{URL: url, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	return string(body), nil
}

// Cache returns normalized page text, fetching each URL at most once per ttl.
type Cache struct {
	store   store.Store
	fetcher Fetcher
	ttl     time.Duration
}

func NewCache(kv store.Store, fetcher Fetcher, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: kv, fetcher: fetcher, ttl: ttl}
}

// FetchAndCache returns the cached text for url or fetches, normalizes and
// stores it. Nothing is written when the fetch or parse fails. A failing
// store read is treated as a miss and a failing write still returns the
// fresh text.
func (c *Cache) FetchAndCache(ctx context.Context, url string) (string, error) {
	key := KeyPrefix + url
	cached, ok, err := c.store.Get(ctx, key)
	if err != nil {
		log.Printf("scrape cache read failed for %s: %v", url, err)
	} else if ok {
		return cached, nil
	}

	page, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	text, err := content.Normalize(page)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", url, err)
	}
	if err := c.store.Set(ctx, key, text, c.ttl); err != nil {
		log.Printf("scrape cache write failed for %s: %v", url, err)
	}
	return text, nil
}

package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
)

const resultsPage = `<!DOCTYPE html>
<html><body>
<div class="results">
  <div class="result"><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F&amp;rut=abc">Go docs</a>
    <a class="result__snippet" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F&amp;rut=abc">snippet</a></div>
  <div class="result"><a class="result__a" href="https://duckduckgo.com/y.js?ad_provider=x">Ad</a></div>
  <div class="result"><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fpkg.go.dev%2Fnet%2Fhttp%3Ftab%3Ddoc">net/http</a></div>
  <div class="result"><a class="result__a" href="https://example.com/direct">direct</a></div>
  <div class="result"><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgobyexample.com%2F">By example</a></div>
  <div class="result"><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fa.example%2F">a</a></div>
  <div class="result"><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fb.example%2F">b</a></div>
  <div class="result"><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fc.example%2F">c</a></div>
</div>
</body></html>`

func newTestSearcher(baseURL string, client *http.Client) *DuckDuckGo {
	d := NewDuckDuckGo(Config{BaseURL: baseURL, Client: client, MaxRetries: 2})
	d.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return d
}

func TestParseResults(t *testing.T) {
	urls, err := ParseResults(strings.NewReader(resultsPage), 5)
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://go.dev/doc/",
		"https://pkg.go.dev/net/http?tab=doc",
		"https://gobyexample.com/",
		"https://a.example/",
		"https://b.example/",
	}, urls)
}

func TestParseResults_NoMatches(t *testing.T) {
	urls, err := ParseResults(strings.NewReader(`<body><a href="/about">about</a></body>`), 5)
	require.NoError(t, err)
	require.Empty(t, urls)
}

func TestDestination(t *testing.T) {
	cases := []struct {
		href string
		want string
		ok   bool
	}{
		{"//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fa%20b", "https://example.com/a b", true},
		{"https://html.duckduckgo.com/l/?uddg=http%3A%2F%2Fexample.org", "http://example.org", true},
		{"//duckduckgo.com/l/?kh=-1", "", false},
		{"//duckduckgo.com/l/?uddg=javascript%3Aalert(1)", "", false},
		{"https://evil.com/l/?uddg=https%3A%2F%2Fexample.com", "", false},
		{"//duckduckgo.com/y.js?uddg=https%3A%2F%2Fexample.com", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := Destination(tc.href)
		require.Equal(t, tc.ok, ok, tc.href)
		require.Equal(t, tc.want, got, tc.href)
	}
}

func TestSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "what is go", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(resultsPage))
	}))
	defer server.Close()

	urls, err := newTestSearcher(server.URL+"/html/", server.Client()).Search(context.Background(), "  what is go ")
	require.NoError(t, err)
	require.Len(t, urls, 5)
	require.Equal(t, "https://go.dev/doc/", urls[0])
}

func TestSearch_EmptyQuery(t *testing.T) {
	urls, err := newTestSearcher("http://127.0.0.1:1/", nil).Search(context.Background(), "   ")
	require.NoError(t, err)
	require.Nil(t, urls)
}

func TestSearch_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(resultsPage))
	}))
	defer server.Close()

	urls, err := newTestSearcher(server.URL, server.Client()).Search(context.Background(), "go")
	require.NoError(t, err)
	require.NotEmpty(t, urls)
	require.Equal(t, int32(2), calls.Load())
}

func TestSearch_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := newTestSearcher(server.URL, server.Client()).Search(context.Background(), "go")
	require.ErrorContains(t, err, "search request failed: 403")
	require.Equal(t, int32(1), calls.Load())
}

func TestSearch_GivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestSearcher(server.URL, server.Client()).Search(context.Background(), "go")
	require.Error(t, err)
	require.Equal(t, int32(3), calls.Load())
}

func TestSearch_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestSearcher("http://127.0.0.1:1/", nil).Search(ctx, "go")
	require.Error(t, err)
}

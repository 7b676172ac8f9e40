package grounding

import (
	"context"
	"log"
	"regexp"
	"strings"
	"unicode/utf8"
)

const DefaultMaxSourceChars = 1000

var urlPattern = regexp.MustCompile(`https?://\S+`)

// Resolution splits a raw message into the question and the URLs to ground
// it on. URLs is nil when the message names none.
type Resolution struct {
	Question string
	URLs     []string
}

// Resolve finds every http(s) URL in raw, verbatim and in order, and returns
// the remaining text trimmed as the question.
func Resolve(raw string) Resolution {
	urls := urlPattern.FindAllString(raw, -1)
	question := strings.TrimSpace(urlPattern.ReplaceAllString(raw, ""))
	return Resolution{Question: question, URLs: urls}
}

// Source is normalized text taken from one page.
type Source struct {
	URL  string
	Text string
}

// Grounding is the material handed to the prompt. URLs lists the pages
// that were consulted, whether or not each one produced a source.
type Grounding struct {
	Sources []Source
	URLs    []string
}

func (g Grounding) Texts() []string {
	texts := make([]string, 0, len(g.Sources))
	for _, source := range g.Sources {
		texts = append(texts, source.Text)
	}
	return texts
}

type Scraper interface {
	FetchAndCache(ctx context.Context, url string) (string, error)
}

type Searcher interface {
	Search(ctx context.Context, query string) ([]string, error)
}

type Grounder struct {
	scraper  Scraper
	searcher Searcher
	maxChars int
}

func NewGrounder(scraper Scraper, searcher Searcher, maxChars int) *Grounder {
	if maxChars <= 0 {
		maxChars = DefaultMaxSourceChars
	}
	return &Grounder{scraper: scraper, searcher: searcher, maxChars: maxChars}
}

// Ground scrapes the resolved URLs, or the search results for the question
// when the message named none. Pages are fetched one at a time in order. A
// page that fails is logged and skipped; a failed search yields no sources.
func (g *Grounder) Ground(ctx context.Context, res Resolution) Grounding {
	urls := res.URLs
	if len(urls) == 0 {
		urls = g.search(ctx, res.Question)
	}
	grounding := Grounding{URLs: urls}
	for _, url := range urls {
		if err := ctx.Err(); err != nil {
			log.Printf("grounding stopped: %v", err)
			break
		}
		text, err := g.scraper.FetchAndCache(ctx, url)
		if err != nil {
			log.Printf("grounding source skipped %s: %v", url, err)
			continue
		}
		grounding.Sources = append(grounding.Sources, Source{URL: url, Text: Truncate(text, g.maxChars)})
	}
	return grounding
}

func (g *Grounder) search(ctx context.Context, question string) []string {
	if g.searcher == nil || question == "" {
		return nil
	}
	urls, err := g.searcher.Search(ctx, question)
	if err != nil {
		log.Printf("search fallback failed: %v", err)
		return nil
	}
	return urls
}

// Truncate keeps the first max characters of text.
func Truncate(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	count := 0
	for i := range text {
		if count == max {
			return text[:i]
		}
		count++
	}
	return text
}

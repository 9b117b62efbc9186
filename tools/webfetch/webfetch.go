// Package webfetch: plain HTTP fetch + readability extraction.
package webfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

type Result struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Fetcher downloads pages and extracts their main article text.
type Fetcher struct {
	Client    *http.Client
	UserAgent string
	MaxChars  int
}

func NewFetcher(timeout time.Duration, maxChars int, userAgent string) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxChars <= 0 {
		maxChars = 5000
	}
	return &Fetcher{
		Client:    &http.Client{Timeout: timeout},
		UserAgent: userAgent,
		MaxChars:  maxChars,
	}
}

// Fetch pulls one URL and returns readable text capped at MaxChars.
// Parse failures return an empty-text Result rather than an error so a
// single bad page never sinks a multi-URL pull.
func (f *Fetcher) Fetch(ctx context.Context, link string) (Result, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return Result{}, errors.New("invalid url")
	}
	parsed, err := url.Parse(link)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return Result{}, fmt.Errorf("invalid url: %s", link)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return Result{}, err
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("fetch %s: status %d", link, resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, 2<<20)
	article, err := readability.FromReader(body, parsed)
	if err != nil {
		return Result{URL: link}, nil
	}
	text := strings.TrimSpace(article.TextContent)
	if len(text) > f.MaxChars {
		text = text[:f.MaxChars]
	}
	return Result{URL: link, Title: article.Title, Text: text}, nil
}

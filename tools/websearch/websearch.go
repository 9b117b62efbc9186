// Package websearch: thin Brave & Serper clients behind one interface.
package websearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher is implemented by every web search backend.
type Searcher interface {
	Discover(ctx context.Context, q string, k int) ([]Result, error)
}

type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// New picks a backend by available credentials, preferring Brave.
func New(braveKey, serperKey string, timeout time.Duration) (Searcher, error) {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	doer := &http.Client{Timeout: timeout}
	switch {
	case braveKey != "":
		return Brave{APIKey: braveKey, Doer: doer}, nil
	case serperKey != "":
		return Serper{APIKey: serperKey, Doer: doer}, nil
	default:
		return nil, errors.New("websearch: no API key configured")
	}
}

// -------- Brave --------

type Brave struct {
	APIKey string
	Doer   Doer
}

// Discover returns up to k results for q. k is clamped to [1,25].
func (b Brave) Discover(ctx context.Context, q string, k int) ([]Result, error) {
	if strings.TrimSpace(q) == "" {
		return nil, errors.New("brave: empty query")
	}
	if k < 1 || k > 25 {
		k = 10
	}
	if b.Doer == nil {
		b.Doer = &http.Client{Timeout: 20 * time.Second}
	}

	endpoint := fmt.Sprintf("https://api.search.brave.com/res/v1/web/search?q=%s&count=%d", url.QueryEscape(q), k)
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.APIKey)

	resp, err := b.Doer.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave %d: %s", resp.StatusCode, truncate(string(body), 300))
	}

	var raw struct {
		Web struct {
			Results []struct {
				Title   string `json:"title"`
				URL     string `json:"url"`
				Snippet string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(raw.Web.Results))
	for i, r := range raw.Web.Results {
		if i >= k {
			break
		}
		out = append(out, Result{Title: r.Title, URL: r.URL, Snippet: r.Snippet})
	}
	return out, nil
}

// -------- Serper --------

type Serper struct {
	APIKey string
	Doer   Doer
}

func (s Serper) Discover(ctx context.Context, q string, k int) ([]Result, error) {
	if strings.TrimSpace(q) == "" {
		return nil, errors.New("serper: empty query")
	}
	if k < 1 || k > 25 {
		k = 10
	}
	if s.Doer == nil {
		s.Doer = &http.Client{Timeout: 20 * time.Second}
	}

	payload, _ := json.Marshal(map[string]any{"q": q, "num": k})
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, "https://google.serper.dev/search", strings.NewReader(string(payload)))
	req.Header.Set("X-API-KEY", s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Doer.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serper %d: %s", resp.StatusCode, truncate(string(body), 300))
	}

	var raw struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(raw.Organic))
	for i, r := range raw.Organic {
		if i >= k {
			break
		}
		out = append(out, Result{Title: r.Title, URL: r.Link, Snippet: r.Snippet})
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mohammad-safakhou/briefer/provider"
	"github.com/mohammad-safakhou/briefer/tools/news"
	"github.com/mohammad-safakhou/briefer/tools/webfetch"
	"github.com/mohammad-safakhou/briefer/tools/websearch"
)

// Toolset bundles the external capabilities a researcher may use. Optional
// members are nil/empty and their tools are simply not offered to the model.
type Toolset struct {
	Search websearch.Searcher
	Fetch  *webfetch.Fetcher
	News   *news.NewsAPI

	// Social is an OpenAI-compatible endpoint with real-time social data
	// (e.g. x.ai); nil disables the capability.
	Social      provider.Provider
	SocialModel string

	// Reason backs the deep-reasoning capability.
	Reason      provider.Provider
	ReasonModel string

	MaxFetchURLs int

	// Transient tool failures retry with exponential backoff.
	Retries int
	Backoff time.Duration
}

var retryableFragments = []string{"connect", "timeout", "read", "reset", "429", "503", "unavailable"}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, f := range retryableFragments {
		if strings.Contains(msg, f) {
			return true
		}
	}
	return false
}

// withRetry retries fn on transient errors with exponential backoff
// (base doubling per attempt). Non-transient errors return immediately.
func withRetry(ctx context.Context, retries int, backoff time.Duration, fn func() (string, error)) (string, error) {
	if retries <= 0 {
		retries = 3
	}
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !isRetryable(err) || attempt == retries-1 {
			break
		}
		select {
		case <-time.After(backoff << attempt):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

type queryArgs struct {
	Query string `json:"query"`
}

type urlArgs struct {
	URLs []string `json:"urls"`
}

type reasonArgs struct {
	Question string `json:"question"`
	Context  string `json:"context"`
}

func queryParams(desc string) map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{"type": "string", "description": desc},
		},
		"required": []string{"query"},
	}
}

// BuildTools materializes the capability set for one researcher call. Tool
// closures record activity on stats; the model executes tools sequentially
// within a call, so no locking is needed.
func (t Toolset) BuildTools(stats *Stats) []provider.Tool {
	var out []provider.Tool

	if t.Search != nil {
		out = append(out, provider.Tool{
			Name:        "web_search",
			Description: "Search the web. Returns titles, URLs and snippets.",
			Parameters:  queryParams("search query"),
			Run: func(ctx context.Context, args json.RawMessage) (string, error) {
				var a queryArgs
				if err := json.Unmarshal(args, &a); err != nil {
					return "", err
				}
				stats.WebSearches++
				return withRetry(ctx, t.Retries, t.Backoff, func() (string, error) {
					results, err := t.Search.Discover(ctx, a.Query, 10)
					if err != nil {
						return "", err
					}
					return formatSearchResults(results), nil
				})
			},
		})
		out = append(out, provider.Tool{
			Name:        "financial_lookup",
			Description: "Look up financial data, filings and market figures for a company or market.",
			Parameters:  queryParams("company, ticker or market to look up"),
			Run: func(ctx context.Context, args json.RawMessage) (string, error) {
				var a queryArgs
				if err := json.Unmarshal(args, &a); err != nil {
					return "", err
				}
				stats.WebSearches++
				return withRetry(ctx, t.Retries, t.Backoff, func() (string, error) {
					results, err := t.Search.Discover(ctx, a.Query+" financials revenue filings", 10)
					if err != nil {
						return "", err
					}
					return formatSearchResults(results), nil
				})
			},
		})
		out = append(out, provider.Tool{
			Name:        "company_profile",
			Description: "Look up a company profile: founding, leadership, products, funding.",
			Parameters:  queryParams("company name"),
			Run: func(ctx context.Context, args json.RawMessage) (string, error) {
				var a queryArgs
				if err := json.Unmarshal(args, &a); err != nil {
					return "", err
				}
				stats.WebSearches++
				return withRetry(ctx, t.Retries, t.Backoff, func() (string, error) {
					results, err := t.Search.Discover(ctx, a.Query+" company profile about", 10)
					if err != nil {
						return "", err
					}
					return formatSearchResults(results), nil
				})
			},
		})
	}

	if t.Fetch != nil {
		out = append(out, provider.Tool{
			Name:        "pull_sources",
			Description: "Fetch the readable text of up to 5 URLs found via search.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"urls": map[string]interface{}{
						"type":  "array",
						"items": map[string]interface{}{"type": "string"},
					},
				},
				"required": []string{"urls"},
			},
			Run: func(ctx context.Context, args json.RawMessage) (string, error) {
				var a urlArgs
				if err := json.Unmarshal(args, &a); err != nil {
					return "", err
				}
				maxURLs := t.MaxFetchURLs
				if maxURLs <= 0 {
					maxURLs = 5
				}
				if len(a.URLs) > maxURLs {
					a.URLs = a.URLs[:maxURLs]
				}
				var b strings.Builder
				for _, link := range a.URLs {
					stats.URLsFetched++
					text, err := withRetry(ctx, t.Retries, t.Backoff, func() (string, error) {
						res, err := t.Fetch.Fetch(ctx, link)
						if err != nil {
							return "", err
						}
						return res.Text, nil
					})
					if err != nil || strings.TrimSpace(text) == "" {
						fmt.Fprintf(&b, "=== %s ===\n(no readable content)\n\n", link)
						continue
					}
					stats.PagesRead++
					fmt.Fprintf(&b, "=== %s ===\n%s\n\n", link, text)
				}
				return b.String(), nil
			},
		})
	}

	if t.News != nil {
		out = append(out, provider.Tool{
			Name:        "search_news",
			Description: "Search recent news articles.",
			Parameters:  queryParams("news search query"),
			Run: func(ctx context.Context, args json.RawMessage) (string, error) {
				var a queryArgs
				if err := json.Unmarshal(args, &a); err != nil {
					return "", err
				}
				stats.NewsSearches++
				return withRetry(ctx, t.Retries, t.Backoff, func() (string, error) {
					articles, err := t.News.Search(ctx, a.Query, 10)
					if err != nil {
						return "", err
					}
					stats.NewsArticles += len(articles)
					var b strings.Builder
					for _, art := range articles {
						fmt.Fprintf(&b, "- %s (%s, %s) %s\n  %s\n", art.Title, art.Source.Name, art.PublishedAt.Format("2006-01-02"), art.URL, art.Description)
					}
					if b.Len() == 0 {
						return "no articles found", nil
					}
					return b.String(), nil
				})
			},
		})
	}

	if t.Social != nil {
		out = append(out, provider.Tool{
			Name:        "search_social",
			Description: "Search real-time social and community discussion for current sentiment.",
			Parameters:  queryParams("topic to check social discussion for"),
			Run: func(ctx context.Context, args json.RawMessage) (string, error) {
				var a queryArgs
				if err := json.Unmarshal(args, &a); err != nil {
					return "", err
				}
				stats.SocialQueries++
				return withRetry(ctx, t.Retries, t.Backoff, func() (string, error) {
					text, _, err := t.Social.Generate(ctx,
						"You have access to real-time social data. Summarize current discussion with links where possible.",
						a.Query, t.SocialModel)
					return text, err
				})
			},
		})
	}

	if t.Reason != nil {
		out = append(out, provider.Tool{
			Name:        "deep_reason",
			Description: "Reason carefully over already-gathered context to resolve a hard sub-question.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"question": map[string]interface{}{"type": "string"},
					"context":  map[string]interface{}{"type": "string"},
				},
				"required": []string{"question", "context"},
			},
			Run: func(ctx context.Context, args json.RawMessage) (string, error) {
				var a reasonArgs
				if err := json.Unmarshal(args, &a); err != nil {
					return "", err
				}
				stats.ReasoningCalls++
				return withRetry(ctx, t.Retries, t.Backoff, func() (string, error) {
					text, _, err := t.Reason.Generate(ctx,
						"Reason step by step over the provided context only. Do not invent facts.",
						"Question: "+a.Question+"\n\nContext:\n"+a.Context, t.ReasonModel)
					return text, err
				})
			},
		})
	}

	return out
}

func formatSearchResults(results []websearch.Result) string {
	if len(results) == 0 {
		return "no results"
	}
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "- %s\n  %s\n  %s\n", r.Title, r.URL, r.Snippet)
	}
	return b.String()
}

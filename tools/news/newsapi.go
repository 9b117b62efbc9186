// Package news: NewsAPI "everything" search client.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultEndpoint = "https://newsapi.org/v2/everything"

type Article struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Author      string    `json:"author"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
}

type response struct {
	Status       string    `json:"status"`
	TotalResults int       `json:"totalResults"`
	Articles     []Article `json:"articles"`
}

type NewsAPI struct {
	APIKey   string
	Endpoint string
	Client   *http.Client
}

func New(apiKey string, timeout time.Duration) NewsAPI {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return NewsAPI{APIKey: apiKey, Endpoint: defaultEndpoint, Client: &http.Client{Timeout: timeout}}
}

// Search returns up to k recent articles matching the query.
func (n NewsAPI) Search(ctx context.Context, q string, k int) ([]Article, error) {
	if k <= 0 || k > 50 {
		k = 10
	}
	endpoint := n.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	params := url.Values{}
	params.Add("q", q)
	params.Add("sortBy", "publishedAt")
	params.Add("pageSize", fmt.Sprint(k))
	params.Add("apiKey", n.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch news: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("newsapi %d: %s", resp.StatusCode, truncate(string(body), 300))
	}

	var out response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse news response: %w", err)
	}
	if out.Status != "ok" {
		return nil, fmt.Errorf("newsapi status: %s", out.Status)
	}
	return out.Articles, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

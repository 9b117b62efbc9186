// Package kb pushes finished briefings to an external knowledge base.
package kb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Document is the payload shape the knowledge base ingests.
type Document struct {
	JobID     string    `json:"job_id"`
	Query     string    `json:"query"`
	Depth     string    `json:"depth"`
	Synthesis string    `json:"synthesis"`
	Strategic string    `json:"strategic,omitempty"`
	QASummary string    `json:"qa_summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Client uploads documents to a knowledge-base HTTP endpoint. Uploads are
// best-effort from the pipeline's point of view; callers log and move on.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	retries  int
	backoff  time.Duration
	logger   *log.Logger
}

func New(endpoint, apiKey string, timeout time.Duration, logger *log.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[KB] ", log.LstdFlags)
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
		retries:  3,
		backoff:  2 * time.Second,
		logger:   logger,
	}
}

// Enabled reports whether an endpoint is configured.
func (c *Client) Enabled() bool { return c != nil && c.endpoint != "" }

// Upload sends one document, retrying server-side failures with exponential
// backoff. Client-side rejections (4xx) fail immediately.
func (c *Client) Upload(ctx context.Context, doc Document) error {
	if !c.Enabled() {
		return nil
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err == nil {
			msg, status := drain(resp)
			if status >= 200 && status < 300 {
				return nil
			}
			lastErr = fmt.Errorf("kb upload status %d: %s", status, msg)
			if status < 500 {
				return lastErr
			}
		} else {
			lastErr = err
		}

		if attempt < c.retries-1 {
			c.logger.Printf("kb upload attempt %d for job %s failed: %v", attempt+1, doc.JobID, lastErr)
			select {
			case <-time.After(c.backoff << attempt):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

func drain(resp *http.Response) (string, int) {
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return string(b), resp.StatusCode
}

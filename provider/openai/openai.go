package openai_provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxToolIterations = 8

// ModelCost carries per-model pricing and generation limits.
type ModelCost struct {
	Per1KInput  float64
	Per1KOutput float64
	MaxTokens   int
	Temperature float64
}

// Tool mirrors the OpenAI function-tool shape plus a local executor.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
	Run         func(ctx context.Context, args json.RawMessage) (string, error)
}

// Usage reports token consumption per request chain.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	Cost             float64
}

// Client implements chat completions against an OpenAI-compatible API
type Client struct {
	apiKey     string
	baseURL    string
	retries    int
	costs      map[string]ModelCost
	httpClient *http.Client
}

// NewClient creates a new OpenAI-compatible client
func NewClient(apiKey, baseURL string, timeout time.Duration, retries int, costs map[string]ModelCost) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		retries:    retries,
		costs:      costs,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type toolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type toolSpec struct {
	Type     string `json:"type"`
	Function struct {
		Name        string                 `json:"name"`
		Description string                 `json:"description,omitempty"`
		Parameters  map[string]interface{} `json:"parameters,omitempty"`
	} `json:"function"`
}

type chatRequest struct {
	Model       string     `json:"model"`
	Messages    []message  `json:"messages"`
	Tools       []toolSpec `json:"tools,omitempty"`
	Temperature float64    `json:"temperature,omitempty"`
	MaxTokens   int        `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate runs a plain completion
func (c *Client) Generate(ctx context.Context, system, prompt, model string) (string, Usage, error) {
	msgs := buildMessages(system, prompt)
	resp, usage, err := c.complete(ctx, model, msgs, nil)
	if err != nil {
		return "", usage, err
	}
	if len(resp.Choices) == 0 {
		return "", usage, errors.New("openai: empty choices")
	}
	return resp.Choices[0].Message.Content, usage, nil
}

// Invoke runs a completion with tool access, executing tool calls locally
// until the model returns a final answer or the iteration cap is hit.
func (c *Client) Invoke(ctx context.Context, system, prompt, model string, tools []Tool) (string, Usage, error) {
	msgs := buildMessages(system, prompt)
	specs := make([]toolSpec, len(tools))
	byName := make(map[string]Tool, len(tools))
	for i, t := range tools {
		specs[i].Type = "function"
		specs[i].Function.Name = t.Name
		specs[i].Function.Description = t.Description
		specs[i].Function.Parameters = t.Parameters
		byName[t.Name] = t
	}

	var total Usage
	for iter := 0; iter < maxToolIterations; iter++ {
		resp, usage, err := c.complete(ctx, model, msgs, specs)
		total.PromptTokens += usage.PromptTokens
		total.CompletionTokens += usage.CompletionTokens
		total.Cost += usage.Cost
		if err != nil {
			return "", total, err
		}
		if len(resp.Choices) == 0 {
			return "", total, errors.New("openai: empty choices")
		}
		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			return msg.Content, total, nil
		}
		msgs = append(msgs, msg)
		for _, tc := range msg.ToolCalls {
			tool, ok := byName[tc.Function.Name]
			var result string
			if !ok {
				result = fmt.Sprintf("error: unknown tool %q", tc.Function.Name)
			} else {
				out, err := tool.Run(ctx, json.RawMessage(tc.Function.Arguments))
				if err != nil {
					result = "error: " + err.Error()
				} else {
					result = out
				}
			}
			msgs = append(msgs, message{Role: "tool", Content: result, ToolCallID: tc.ID})
		}
	}
	return "", total, errors.New("openai: tool iteration limit reached")
}

func buildMessages(system, prompt string) []message {
	msgs := make([]message, 0, 2)
	if system != "" {
		msgs = append(msgs, message{Role: "system", Content: system})
	}
	msgs = append(msgs, message{Role: "user", Content: prompt})
	return msgs
}

func (c *Client) complete(ctx context.Context, model string, msgs []message, tools []toolSpec) (*chatResponse, Usage, error) {
	body := chatRequest{Model: model, Messages: msgs, Tools: tools}
	if mc, ok := c.costs[model]; ok {
		body.Temperature = mc.Temperature
		body.MaxTokens = mc.MaxTokens
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, Usage{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	tries := c.retries + 1
	for attempt := 0; attempt < tries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			return nil, Usage{}, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else if resp.StatusCode == http.StatusOK {
			var out chatResponse
			derr := json.NewDecoder(resp.Body).Decode(&out)
			resp.Body.Close()
			if derr != nil {
				return nil, Usage{}, fmt.Errorf("failed to parse response: %w", derr)
			}
			usage := Usage{PromptTokens: out.Usage.PromptTokens, CompletionTokens: out.Usage.CompletionTokens}
			if mc, ok := c.costs[model]; ok {
				usage.Cost = float64(usage.PromptTokens)/1000*mc.Per1KInput + float64(usage.CompletionTokens)/1000*mc.Per1KOutput
			}
			return &out, usage, nil
		} else {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			lastErr = fmt.Errorf("openai %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return nil, Usage{}, lastErr
			}
		}

		if attempt < tries-1 {
			select {
			case <-time.After(time.Duration(1<<attempt) * time.Second):
			case <-ctx.Done():
				return nil, Usage{}, ctx.Err()
			}
		}
	}
	return nil, Usage{}, lastErr
}

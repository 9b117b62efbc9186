package provider

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mohammad-safakhou/briefer/config"
	openai_provider "github.com/mohammad-safakhou/briefer/provider/openai"
)

// Tool is one capability the model may call autonomously during Invoke.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
	Run         func(ctx context.Context, args json.RawMessage) (string, error)
}

// Usage reports token consumption and estimated cost of a call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	Cost             float64
}

// Provider is the interface all LLM implementations must satisfy
type Provider interface {
	// Generate runs a plain completion and returns the final text.
	Generate(ctx context.Context, system, prompt, model string) (string, Usage, error)
	// Invoke runs a completion with tool access; the model chooses which
	// tools to call, in any order, until it produces a final answer.
	Invoke(ctx context.Context, system, prompt, model string, tools []Tool) (string, Usage, error)
}

// NewProvider creates an LLM client based on the provided configuration
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "openai":
		if cfg.APIKey == "" {
			return nil, errors.New("llm.api_key not set")
		}
		costs := make(map[string]openai_provider.ModelCost, len(cfg.Models))
		for name, m := range cfg.Models {
			apiName := m.APIName
			if apiName == "" {
				apiName = name
			}
			costs[apiName] = openai_provider.ModelCost{
				Per1KInput:  m.CostPer1K,
				Per1KOutput: m.CostPer1KOutput,
				MaxTokens:   m.MaxTokens,
				Temperature: m.Temperature,
			}
		}
		return &openaiAdapter{c: openai_provider.NewClient(cfg.APIKey, cfg.BaseURL, cfg.Timeout, cfg.Retries, costs)}, nil
	case "anthropic":
		return nil, errors.New("anthropic client not implemented yet")
	default:
		return nil, errors.New("unsupported LLM provider: " + cfg.Provider)
	}
}

type openaiAdapter struct {
	c *openai_provider.Client
}

func (a *openaiAdapter) Generate(ctx context.Context, system, prompt, model string) (string, Usage, error) {
	text, u, err := a.c.Generate(ctx, system, prompt, model)
	return text, Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, Cost: u.Cost}, err
}

func (a *openaiAdapter) Invoke(ctx context.Context, system, prompt, model string, tools []Tool) (string, Usage, error) {
	converted := make([]openai_provider.Tool, len(tools))
	for i, t := range tools {
		converted[i] = openai_provider.Tool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
			Run:         t.Run,
		}
	}
	text, u, err := a.c.Invoke(ctx, system, prompt, model, converted)
	return text, Usage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, Cost: u.Cost}, err
}

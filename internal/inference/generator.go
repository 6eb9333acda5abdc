// Package inference wraps the configured LLM provider and turns its replies
// into framework suggestions and research summaries.
package inference

import (
	"context"
	"fmt"

	gollm "github.com/guiperry/gollm_cerebras"
	gollmconfig "github.com/guiperry/gollm_cerebras/config"
	"github.com/guiperry/gollm_cerebras/llm"

	"researchtools/internal/config"
)

// TextGenerator produces a completion for a single prompt
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// LLMAdapter wraps an llm.LLM instance to implement TextGenerator
type LLMAdapter struct {
	LLM          llm.LLM
	ProviderName string
	ModelName    string
}

// NewLLMAdapter creates a new LLMAdapter instance
func NewLLMAdapter(instance llm.LLM, provider, model string) *LLMAdapter {
	return &LLMAdapter{LLM: instance, ProviderName: provider, ModelName: model}
}

// GenerateText implements TextGenerator
func (a *LLMAdapter) GenerateText(ctx context.Context, prompt string) (string, error) {
	return a.LLM.Generate(ctx, llm.NewPrompt(prompt))
}

// NewGenerator builds a gollm-backed generator from cfg. It returns nil, nil
// when no API key is configured so callers fall back to placeholder replies.
func NewGenerator(cfg config.AIConfig) (TextGenerator, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}

	opts := []gollmconfig.ConfigOption{
		gollmconfig.SetProvider(cfg.Provider),
		gollmconfig.SetAPIKey(cfg.APIKey),
		gollmconfig.SetModel(cfg.Model),
		gollmconfig.SetMaxTokens(cfg.MaxTokens),
	}

	instance, err := gollm.NewLLM(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating %s client: %w", cfg.Provider, err)
	}

	initialized, ok := instance.(llm.LLM)
	if !ok {
		return nil, fmt.Errorf("%s client does not implement llm.LLM", cfg.Provider)
	}
	return NewLLMAdapter(initialized, cfg.Provider, cfg.Model), nil
}

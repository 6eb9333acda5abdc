package inference

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// modelToEncoding maps model name fragments to tiktoken encodings.
var modelToEncoding = map[string]string{
	"gpt-4":    "cl100k_base",
	"gpt-3.5":  "cl100k_base",
	"cerebras": "cl100k_base",
	"gemini":   "cl100k_base",
	"claude":   "cl100k_base",
	"deepseek": "cl100k_base",
	"llama":    "cl100k_base",
	"mistral":  "cl100k_base",
}

// TokenCounter estimates the token count of text
type TokenCounter func(text string) int

// HeuristicTokens is the chars/4 estimate used when no encoding is available.
func HeuristicTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(text)/4 + 1
}

// NewTiktokenCounter returns a counter for model. The encoding is loaded on
// first use; if it cannot be loaded the counter falls back to HeuristicTokens.
func NewTiktokenCounter(model string) TokenCounter {
	var (
		once sync.Once
		enc  *tiktoken.Tiktoken
	)
	return func(text string) int {
		once.Do(func() {
			e, err := encodingForModel(model)
			if err == nil {
				enc = e
			}
		})
		if enc == nil {
			return HeuristicTokens(text)
		}
		return len(enc.Encode(text, nil, nil))
	}
}

func encodingForModel(model string) (*tiktoken.Tiktoken, error) {
	lower := strings.ToLower(model)
	if name, ok := tiktoken.MODEL_TO_ENCODING[lower]; ok {
		return tiktoken.GetEncoding(name)
	}
	best := ""
	for fragment := range modelToEncoding {
		if strings.Contains(lower, fragment) && len(fragment) > len(best) {
			best = fragment
		}
	}
	if best != "" {
		return tiktoken.GetEncoding(modelToEncoding[best])
	}
	return tiktoken.GetEncoding("cl100k_base")
}

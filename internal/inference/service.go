package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"
)

// ErrUnavailable is returned when no provider is configured.
var ErrUnavailable = errors.New("AI service is not configured")

// Placeholder texts returned instead of model output.
const (
	UnavailableText = "AI unavailable: configure an API key to enable analysis."
	NoAnswerText    = "No answer could be extracted from the AI response."
	FailedText      = "AI request failed; try again later."
)

// Request is a single completion call
type Request struct {
	FrameworkType string
	Prompt        string
}

// Usage is the estimated token accounting for a completion
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the result of Complete
type Response struct {
	Content  string        `json:"content"`
	Model    string        `json:"model"`
	Usage    Usage         `json:"usage"`
	Duration time.Duration `json:"-"`
}

// Service manages prompting and reply parsing. A Service without a generator
// answers the research helpers with placeholders and fails Complete with
// ErrUnavailable.
type Service struct {
	generator TextGenerator
	model     string
	tokens    TokenCounter
	logger    *zap.Logger
}

// Option configures a Service
type Option func(*Service)

// WithTokenCounter replaces the tiktoken-based counter.
func WithTokenCounter(c TokenCounter) Option {
	return func(s *Service) { s.tokens = c }
}

// NewService creates a Service. generator may be nil.
func NewService(generator TextGenerator, model string, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		generator: generator,
		model:     model,
		tokens:    NewTiktokenCounter(model),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Available reports whether a provider is configured
func (s *Service) Available() bool {
	return s.generator != nil
}

// degrade decides whether a helper answers with placeholders after a failed
// completion. Cancelled requests still fail.
func (s *Service) degrade(ctx context.Context, helper string, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	s.logger.Warn("AI helper returned a placeholder", zap.String("helper", helper), zap.Error(err))
	return true
}

// Complete sends the persona, the framework addendum and the prompt to the
// provider in one call.
func (s *Service) Complete(ctx context.Context, req Request) (*Response, error) {
	if s.generator == nil {
		return nil, ErrUnavailable
	}

	full := SystemPrompt(req.FrameworkType) + "\n\n" + req.Prompt
	start := time.Now()
	content, err := s.generator.GenerateText(ctx, full)
	if err != nil {
		s.logger.Warn("completion failed",
			zap.String("framework", req.FrameworkType), zap.Error(err))
		return nil, fmt.Errorf("generating completion: %w", err)
	}

	resp := &Response{
		Content:  content,
		Model:    s.model,
		Duration: time.Since(start),
		Usage: Usage{
			PromptTokens:     s.tokens(full),
			CompletionTokens: s.tokens(content),
		},
	}
	resp.Usage.TotalTokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens

	s.logger.Debug("completion finished",
		zap.String("framework", req.FrameworkType),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("duration", resp.Duration))
	return resp, nil
}

// SuggestionRequest asks for structured suggestions for a framework session
type SuggestionRequest struct {
	FrameworkType string
	Instruction   string
	CurrentData   json.RawMessage
	// ReplyShape is a zero value of the struct the reply should match.
	ReplyShape any
}

// Suggestion is a parsed suggestion reply
type Suggestion struct {
	Content map[string]any `json:"content"`
	Usage   Usage          `json:"usage"`
	Model   string         `json:"model"`
}

// GenerateFrameworkSuggestions prompts with the instruction, current data and
// reply schema. Replies that are not JSON become {"suggestions": raw}.
func (s *Service) GenerateFrameworkSuggestions(ctx context.Context, req SuggestionRequest) (*Suggestion, error) {
	data := strings.TrimSpace(string(req.CurrentData))
	if data == "" {
		data = "{}"
	}
	schema := "{}"
	if req.ReplyShape != nil {
		schema = SchemaFor(req.ReplyShape)
	}

	resp, err := s.Complete(ctx, Request{
		FrameworkType: req.FrameworkType,
		Prompt:        fmt.Sprintf(StructuredReplyPrompt, req.Instruction, data, schema),
	})
	if err != nil {
		return nil, err
	}

	content, ok := ExtractJSONObject(resp.Content)
	if !ok {
		content = map[string]any{"suggestions": resp.Content}
	}
	return &Suggestion{Content: content, Usage: resp.Usage, Model: resp.Model}, nil
}

var fiveWKeys = []string{"who", "what", "when", "where", "why"}

// Generate5WAnalysis returns who/what/when/where/why in that order.
func (s *Service) Generate5WAnalysis(ctx context.Context, content string) (*orderedmap.OrderedMap[string, string], error) {
	out := orderedmap.New[string, string]()
	if !s.Available() {
		for _, k := range fiveWKeys {
			out.Set(k, UnavailableText)
		}
		return out, nil
	}

	resp, err := s.Complete(ctx, Request{FrameworkType: "five_w", Prompt: fmt.Sprintf(FiveWPrompt, content)})
	if err != nil {
		if !s.degrade(ctx, "five_w", err) {
			return nil, err
		}
		for _, k := range fiveWKeys {
			out.Set(k, FailedText)
		}
		return out, nil
	}

	parsed := parseLabelled(resp.Content, fiveWKeys)
	for _, k := range fiveWKeys {
		if vals := parsed[k]; len(vals) > 0 {
			out.Set(k, strings.Join(vals, " "))
		} else {
			out.Set(k, NoAnswerText)
		}
	}
	return out, nil
}

var starburstKeys = []string{"who", "what", "when", "where", "why", "how"}

const defaultQuestionsPerCategory = 3

// GenerateStarburstingQuestions returns questions grouped by interrogative.
func (s *Service) GenerateStarburstingQuestions(ctx context.Context, topic string, perCategory int) (*orderedmap.OrderedMap[string, []string], error) {
	if perCategory <= 0 {
		perCategory = defaultQuestionsPerCategory
	}

	out := orderedmap.New[string, []string]()
	if !s.Available() {
		for _, k := range starburstKeys {
			out.Set(k, []string{UnavailableText})
		}
		return out, nil
	}

	resp, err := s.Complete(ctx, Request{
		FrameworkType: "starbursting",
		Prompt:        fmt.Sprintf(StarburstingPrompt, perCategory, topic),
	})
	if err != nil {
		if !s.degrade(ctx, "starbursting", err) {
			return nil, err
		}
		for _, k := range starburstKeys {
			out.Set(k, []string{FailedText})
		}
		return out, nil
	}

	parsed := parseLabelled(resp.Content, starburstKeys)
	for _, k := range starburstKeys {
		qs := parsed[k]
		if len(qs) > perCategory {
			qs = qs[:perCategory]
		}
		if len(qs) == 0 {
			qs = []string{NoAnswerText}
		}
		out.Set(k, qs)
	}
	return out, nil
}

// Summary is the parsed reply of SummarizeContent
type Summary struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
	WordCount int      `json:"word_count"`
	Usage     *Usage   `json:"usage,omitempty"`
}

const defaultSummaryWords = 150

// SummarizeContent summarizes content in at most maxWords words.
func (s *Service) SummarizeContent(ctx context.Context, content string, maxWords int) (*Summary, error) {
	if maxWords <= 0 {
		maxWords = defaultSummaryWords
	}
	if !s.Available() {
		return &Summary{Summary: UnavailableText, KeyPoints: []string{}}, nil
	}

	resp, err := s.Complete(ctx, Request{
		FrameworkType: "summary",
		Prompt:        fmt.Sprintf(SummarizePrompt, maxWords, content),
	})
	if err != nil {
		if !s.degrade(ctx, "summary", err) {
			return nil, err
		}
		return &Summary{Summary: FailedText, KeyPoints: []string{}}, nil
	}

	parsed := parseLabelled(resp.Content, []string{"summary", "key point"})
	sum := &Summary{KeyPoints: parsed["key point"], Usage: &resp.Usage}
	if vals := parsed["summary"]; len(vals) > 0 {
		sum.Summary = strings.Join(vals, " ")
	} else {
		sum.Summary = strings.TrimSpace(resp.Content)
	}
	if sum.KeyPoints == nil {
		sum.KeyPoints = []string{}
	}
	sum.WordCount = len(strings.Fields(sum.Summary))
	return sum, nil
}

var dimeKeys = []string{"diplomatic", "information", "military", "economic"}

// GenerateDIMESuggestions returns considerations per instrument of power.
func (s *Service) GenerateDIMESuggestions(ctx context.Context, scenario string) (*orderedmap.OrderedMap[string, []string], error) {
	out := orderedmap.New[string, []string]()
	if !s.Available() {
		for _, k := range dimeKeys {
			out.Set(k, []string{UnavailableText})
		}
		return out, nil
	}

	resp, err := s.Complete(ctx, Request{FrameworkType: "dime", Prompt: fmt.Sprintf(DIMEPrompt, scenario)})
	if err != nil {
		if !s.degrade(ctx, "dime", err) {
			return nil, err
		}
		for _, k := range dimeKeys {
			out.Set(k, []string{FailedText})
		}
		return out, nil
	}

	parsed := parseLabelled(resp.Content, dimeKeys)
	for _, k := range dimeKeys {
		if vals := parsed[k]; len(vals) > 0 {
			out.Set(k, vals)
		} else {
			out.Set(k, []string{NoAnswerText})
		}
	}
	return out, nil
}

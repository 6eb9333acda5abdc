package inference

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockGenerator implements TextGenerator for testing
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func newTestService(gen TextGenerator) *Service {
	return NewService(gen, "gpt-4o-mini", zap.NewNop(), WithTokenCounter(HeuristicTokens))
}

func TestUnconfiguredService_Placeholders(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()
	assert.False(t, svc.Available())

	fiveW, err := svc.Generate5WAnalysis(ctx, "anything")
	require.NoError(t, err)
	assert.Equal(t, 5, fiveW.Len())
	for pair := fiveW.Oldest(); pair != nil; pair = pair.Next() {
		assert.Equal(t, UnavailableText, pair.Value, pair.Key)
	}
	assert.Equal(t, "who", fiveW.Oldest().Key)
	assert.Equal(t, "why", fiveW.Newest().Key)

	dime, err := svc.GenerateDIMESuggestions(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, 4, dime.Len())

	sum, err := svc.SummarizeContent(ctx, "x", 0)
	require.NoError(t, err)
	assert.Equal(t, UnavailableText, sum.Summary)

	_, err = svc.Complete(ctx, Request{Prompt: "x"})
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = svc.GenerateFrameworkSuggestions(ctx, SuggestionRequest{FrameworkType: "swot"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestComplete_IncludesAddendumAndUsage(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("GenerateText", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.HasPrefix(p, AnalystPersona) && strings.Contains(p, "MOM, POP, MOSES") && strings.HasSuffix(p, "question")
	})).Return("answer text", nil)

	svc := newTestService(gen)
	resp, err := svc.Complete(context.Background(), Request{FrameworkType: "deception_detection", Prompt: "question"})
	require.NoError(t, err)

	assert.Equal(t, "answer text", resp.Content)
	assert.Equal(t, "gpt-4o-mini", resp.Model)
	assert.Equal(t, HeuristicTokens("answer text"), resp.Usage.CompletionTokens)
	assert.Equal(t, resp.Usage.PromptTokens+resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	gen.AssertExpectations(t)
}

func TestComplete_ProviderError(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("GenerateText", mock.Anything, mock.Anything).Return("", errors.New("rate limited"))

	_, err := newTestService(gen).Complete(context.Background(), Request{Prompt: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestResearchHelpers_DegradeOnProviderError(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("GenerateText", mock.Anything, mock.Anything).Return("", errors.New("upstream 502"))
	svc := newTestService(gen)
	ctx := context.Background()

	fiveW, err := svc.Generate5WAnalysis(ctx, "text")
	require.NoError(t, err)
	assert.Equal(t, 5, fiveW.Len())
	for pair := fiveW.Oldest(); pair != nil; pair = pair.Next() {
		assert.Equal(t, FailedText, pair.Value, pair.Key)
	}

	questions, err := svc.GenerateStarburstingQuestions(ctx, "topic", 0)
	require.NoError(t, err)
	assert.Equal(t, 6, questions.Len())
	how, _ := questions.Get("how")
	assert.Equal(t, []string{FailedText}, how)

	sum, err := svc.SummarizeContent(ctx, "text", 0)
	require.NoError(t, err)
	assert.Equal(t, FailedText, sum.Summary)
	assert.Empty(t, sum.KeyPoints)
	assert.Nil(t, sum.Usage)

	dime, err := svc.GenerateDIMESuggestions(ctx, "scenario")
	require.NoError(t, err)
	economic, _ := dime.Get("economic")
	assert.Equal(t, []string{FailedText}, economic)

	gen.AssertNumberOfCalls(t, "GenerateText", 4)
}

func TestResearchHelpers_CancelledContextFails(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("GenerateText", mock.Anything, mock.Anything).Return("", context.Canceled)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestService(gen).Generate5WAnalysis(ctx, "text")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSystemPrompt(t *testing.T) {
	assert.Equal(t, AnalystPersona, SystemPrompt("starbursting"))
	for _, ft := range []string{"swot", "cog", "pmesii_pt", "ach", "deception_detection"} {
		assert.NotEqual(t, AnalystPersona, SystemPrompt(ft), ft)
	}
}

type swotReply struct {
	Strengths []string `json:"strengths"`
	Threats   []string `json:"threats"`
}

func TestGenerateFrameworkSuggestions(t *testing.T) {
	t.Run("json reply with fences", func(t *testing.T) {
		gen := new(MockGenerator)
		gen.On("GenerateText", mock.Anything, mock.MatchedBy(func(p string) bool {
			return strings.Contains(p, `"strengths"`) && strings.Contains(p, "Suggest items")
		})).Return("```json\n{\"strengths\": [\"local knowledge\"]}\n```", nil)

		got, err := newTestService(gen).GenerateFrameworkSuggestions(context.Background(), SuggestionRequest{
			FrameworkType: "swot",
			Instruction:   "Suggest items",
			ReplyShape:    swotReply{},
		})
		require.NoError(t, err)
		assert.Equal(t, []any{"local knowledge"}, got.Content["strengths"])
	})

	t.Run("plain text reply", func(t *testing.T) {
		gen := new(MockGenerator)
		gen.On("GenerateText", mock.Anything, mock.Anything).Return("Consider supply chains.", nil)

		got, err := newTestService(gen).GenerateFrameworkSuggestions(context.Background(), SuggestionRequest{FrameworkType: "cog"})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"suggestions": "Consider supply chains."}, got.Content)
	})
}

func TestGenerate5WAnalysis_Parses(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("GenerateText", mock.Anything, mock.Anything).Return(
		"WHO: The ministry\n**What**: A new port\nlease agreement\nWHERE: Coastal region\n", nil)

	got, err := newTestService(gen).Generate5WAnalysis(context.Background(), "text")
	require.NoError(t, err)

	who, _ := got.Get("who")
	what, _ := got.Get("what")
	when, _ := got.Get("when")
	assert.Equal(t, "The ministry", who)
	assert.Equal(t, "A new port lease agreement", what)
	assert.Equal(t, NoAnswerText, when)
}

func TestGenerateStarburstingQuestions_Caps(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("GenerateText", mock.Anything, mock.Anything).Return(
		"WHO: Who funds it?\nWHO: Who opposes it?\nWHO: Who decides?\nHOW: How is it built?", nil)

	got, err := newTestService(gen).GenerateStarburstingQuestions(context.Background(), "new port", 2)
	require.NoError(t, err)

	who, _ := got.Get("who")
	how, _ := got.Get("how")
	why, _ := got.Get("why")
	assert.Equal(t, []string{"Who funds it?", "Who opposes it?"}, who)
	assert.Equal(t, []string{"How is it built?"}, how)
	assert.Equal(t, []string{NoAnswerText}, why)
}

func TestSummarizeContent_Parses(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("GenerateText", mock.Anything, mock.Anything).Return(
		"SUMMARY: Port expansion is likely.\nKEY POINT: Funding secured\nKEY POINT: Local opposition", nil)

	got, err := newTestService(gen).SummarizeContent(context.Background(), "long text", 50)
	require.NoError(t, err)
	assert.Equal(t, "Port expansion is likely.", got.Summary)
	assert.Equal(t, []string{"Funding secured", "Local opposition"}, got.KeyPoints)
	assert.Equal(t, 4, got.WordCount)
}

func TestExtractJSONObject(t *testing.T) {
	got, ok := ExtractJSONObject(`Here you go: {"a": 1} thanks`)
	require.True(t, ok)
	assert.Equal(t, float64(1), got["a"])

	_, ok = ExtractJSONObject("no json here")
	assert.False(t, ok)
}

func TestHeuristicTokens(t *testing.T) {
	assert.Equal(t, 0, HeuristicTokens(""))
	assert.Equal(t, 3, HeuristicTokens("12345678"))
}

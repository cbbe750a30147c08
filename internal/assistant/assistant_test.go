package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/kv"
	"github.com/starford/lectern/internal/models"
	"github.com/starford/lectern/internal/notify"
)

type notices struct{ titles []string }

func (n *notices) Notify(_ notify.Variant, title, _ string) { n.titles = append(n.titles, title) }

func newFacade(t *testing.T, r Responder, opts ...Option) (*Facade, *notices, kv.Store) {
	t.Helper()
	store, err := kv.NewFS(t.TempDir())
	require.NoError(t, err)
	n := &notices{}
	return New(store, r, n, opts...), n, store
}

func TestQueryWithoutKey(t *testing.T) {
	f, n, _ := newFacade(t, Simulator{})

	resp, err := f.Query(context.Background(), "hello")
	assert.Nil(t, resp)
	require.ErrorIs(t, err, apperr.ErrMissingCredential)
	assert.Equal(t, []string{"API Key Missing"}, n.titles)
	assert.Empty(t, f.History())
}

func TestQueryGreetingWithKey(t *testing.T) {
	f, n, store := newFacade(t, Simulator{Latency: time.Millisecond})
	require.NoError(t, f.SetKey("  secret  "))

	raw, err := store.Get(KeyName)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(raw))

	resp, err := f.Query(context.Background(), "hello")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, CategoryGreeting, resp.Category)
	assert.NotEmpty(t, resp.Text)
	assert.Empty(t, n.titles)

	h := f.History()
	require.Len(t, h, 2)
	assert.Equal(t, models.Message{Role: models.RoleUser, Content: "hello"}, h[0])
	assert.Equal(t, models.RoleAssistant, h[1].Role)
	assert.Equal(t, resp.Text, h[1].Content)
}

func TestHistoryEvictsOldestFirst(t *testing.T) {
	f, _, _ := newFacade(t, Simulator{})
	require.NoError(t, f.SetKey("k"))

	for i := 0; i < 10; i++ {
		_, err := f.Query(context.Background(), fmt.Sprintf("question %d", i))
		require.NoError(t, err)
	}
	h := f.History()
	require.Len(t, h, DefaultHistorySize)
	// 20 messages were produced; the first five are gone, so the window
	// starts with the answer to question 2.
	assert.Equal(t, models.RoleAssistant, h[0].Role)
	assert.Equal(t, "question 3", h[1].Content)
	assert.Equal(t, "question 9", h[len(h)-2].Content)

	f.ClearHistory()
	assert.Empty(t, f.History())
}

func TestKeyLifecycle(t *testing.T) {
	f, _, _ := newFacade(t, Simulator{})
	assert.False(t, f.HasKey())
	require.ErrorIs(t, f.SetKey(" "), apperr.ErrValidation)
	require.NoError(t, f.SetKey("k"))
	assert.True(t, f.HasKey())
	require.NoError(t, f.ClearKey())
	assert.False(t, f.HasKey())
}

func TestCascadePrecedence(t *testing.T) {
	tests := []struct {
		prompt string
		want   Category
	}{
		{"Hello there", CategoryGreeting},
		{"hi, can you summarize this?", CategoryGreeting},
		{"Give me a recap of chapter 3", CategorySummary},
		{"What are the key points?", CategorySummary},
		{"My grades are slipping", CategoryPerformance},
		{"study tips for my exam", CategoryExam},
		{"How should I study for biology", CategoryStudyTips},
		{"Help me plan my week", CategorySchedule},
		{"solve this equation", CategoryMath},
		{"I feel overwhelmed and want to give up", CategoryMotivation},
		{"This history lecture was long", CategoryFallback},
		{"What is photosynthesis", CategoryFallback},
	}
	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.prompt).Category)
		})
	}
}

func TestCascadeTableIsComplete(t *testing.T) {
	seen := map[Category]bool{}
	for _, r := range Cascade {
		assert.False(t, seen[r.Category], "duplicate rule %s", r.Category)
		seen[r.Category] = true
		assert.NotEmpty(t, r.Keywords)
		assert.NotEmpty(t, r.Reply)
	}
	assert.Len(t, Cascade, 8)
}

func TestSimulatorHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Simulator{Latency: time.Hour}.Respond(ctx, Request{Prompt: "hi"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestScoreInsight(t *testing.T) {
	f, n, _ := newFacade(t, Simulator{})
	require.NoError(t, f.SetKey("k"))

	v := func(x float64) *float64 { return &x }
	in, err := f.ScoreInsight(context.Background(), []Score{
		{Subject: "Math", Value: v(90)},
		{Subject: "Physics", Value: v(0)},
		{Subject: "History", Value: v(60)},
	})
	require.NoError(t, err)
	assert.InDelta(t, 50.0, in.Average, 0.001)
	assert.Equal(t, "Math", in.Strongest)
	assert.Equal(t, "Physics", in.Weakest)
	assert.NotEmpty(t, in.Text)
	assert.Empty(t, n.titles)
	assert.Len(t, f.History(), 2)

	for name, scores := range map[string][]Score{
		"empty":         nil,
		"missing score": {{Subject: "Math"}},
		"blank subject": {{Subject: "", Value: v(10)}},
		"out of range":  {{Subject: "Math", Value: v(101)}},
		"negative":      {{Subject: "Math", Value: v(-1)}},
	} {
		t.Run(name, func(t *testing.T) {
			n.titles = nil
			_, err := f.ScoreInsight(context.Background(), scores)
			require.ErrorIs(t, err, apperr.ErrValidation)
			assert.Equal(t, []string{"Invalid scores"}, n.titles)
		})
	}
	assert.Len(t, f.History(), 2, "invalid input must not query")
}

func TestSuggestTopics(t *testing.T) {
	f, _, _ := newFacade(t, Simulator{})
	_, err := f.SuggestTopics(context.Background(), "text")
	require.ErrorIs(t, err, apperr.ErrMissingCredential)

	require.NoError(t, f.SetKey("k"))
	got, err := f.SuggestTopics(context.Background(), "text")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, f.History())
}

type capturing struct{ prompt string }

func (c *capturing) Respond(_ context.Context, req Request) (Response, error) {
	c.prompt = req.Prompt
	return Response{Category: CategoryModel, Text: "Optics"}, nil
}

func TestSuggestTopicsTruncatesOnRuneBoundary(t *testing.T) {
	c := &capturing{}
	f, _, _ := newFacade(t, c)
	require.NoError(t, f.SetKey("k"))

	// 'é' is two bytes, so byte 4000 falls inside a rune.
	transcript := "a" + strings.Repeat("é", 3000)
	got, err := f.SuggestTopics(context.Background(), transcript)
	require.NoError(t, err)
	assert.Equal(t, "Optics", got)
	assert.True(t, utf8.ValidString(c.prompt), "prompt is not valid UTF-8")
	assert.True(t, strings.HasSuffix(c.prompt, "é"))

	assert.Equal(t, "ab", truncate("ab", 5))
	assert.Equal(t, "a", truncate("aé", 2))
}

const geminiURL = "https://gemini.test/v1beta/models/test-model:generateContent"

func newGemini(t *testing.T) *Gemini {
	t.Helper()
	g := NewGemini(GeminiConfig{BaseURL: "https://gemini.test/", Model: "test-model", Temperature: 0.7, MaxOutputTokens: 256})
	httpmock.ActivateNonDefault(g.Client().GetClient())
	t.Cleanup(httpmock.DeactivateAndReset)
	return g
}

func TestGeminiWireShape(t *testing.T) {
	g := newGemini(t)

	var captured generateRequest
	httpmock.RegisterResponder(http.MethodPost, geminiURL,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "secret", req.URL.Query().Get("key"))
			if err := json.NewDecoder(req.Body).Decode(&captured); err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, ""), nil
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
				"candidates": []any{map[string]any{
					"content": map[string]any{
						"role":  "model",
						"parts": []any{map[string]any{"text": " Photosynthesis converts light into chemical energy. "}},
					},
				}},
			})
		})

	resp, err := g.Respond(context.Background(), Request{
		APIKey: "secret",
		Prompt: "what is photosynthesis",
		History: []models.Message{
			{Role: models.RoleUser, Content: "hello"},
			{Role: models.RoleAssistant, Content: "Hi!"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, Response{Category: CategoryModel, Text: "Photosynthesis converts light into chemical energy."}, resp)

	require.Len(t, captured.Contents, 3)
	assert.Equal(t, "user", captured.Contents[0].Role)
	assert.Equal(t, "model", captured.Contents[1].Role)
	assert.Equal(t, "what is photosynthesis", captured.Contents[2].Parts[0].Text)
	assert.InDelta(t, 0.7, captured.GenerationConfig.Temperature, 0.0001)
	assert.Equal(t, 256, captured.GenerationConfig.MaxOutputTokens)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestGeminiErrors(t *testing.T) {
	g := newGemini(t)

	httpmock.RegisterResponder(http.MethodPost, geminiURL,
		httpmock.NewStringResponder(http.StatusForbidden, `{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`).
			HeaderSet(http.Header{"Content-Type": {"application/json"}}))
	_, err := g.Respond(context.Background(), Request{APIKey: "bad", Prompt: "x"})
	require.ErrorIs(t, err, apperr.ErrPermission)
	assert.Contains(t, err.Error(), "API key not valid")

	httpmock.RegisterResponder(http.MethodPost, geminiURL,
		httpmock.NewStringResponder(http.StatusInternalServerError, "boom"))
	_, err = g.Respond(context.Background(), Request{APIKey: "k", Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")

	httpmock.RegisterResponder(http.MethodPost, geminiURL,
		httpmock.NewStringResponder(http.StatusOK, `{"candidates":[]}`).
			HeaderSet(http.Header{"Content-Type": {"application/json"}}))
	_, err = g.Respond(context.Background(), Request{APIKey: "k", Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}

func TestFacadeWithGeminiSuggestsTopics(t *testing.T) {
	g := newGemini(t)
	httpmock.RegisterResponder(http.MethodPost, geminiURL,
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{"parts": []any{map[string]any{"text": "Optics, Lenses, Refraction"}}},
			}},
		}))

	f, _, _ := newFacade(t, g)
	require.NoError(t, f.SetKey("k"))
	got, err := f.SuggestTopics(context.Background(), "light and lenses")
	require.NoError(t, err)
	assert.Equal(t, "Optics, Lenses, Refraction", got)
}

func TestFacadeReportsResponderFailure(t *testing.T) {
	f, n, _ := newFacade(t, failing{})
	require.NoError(t, f.SetKey("k"))
	resp, err := f.Query(context.Background(), "hello")
	assert.Nil(t, resp)
	require.Error(t, err)
	assert.Equal(t, []string{"Assistant Error"}, n.titles)
	assert.Empty(t, f.History())
}

type failing struct{}

func (failing) Respond(context.Context, Request) (Response, error) {
	return Response{}, errors.New("unavailable")
}

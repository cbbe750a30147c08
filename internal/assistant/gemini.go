package assistant

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/models"
)

// GeminiConfig configures the generative-language HTTP responder.
type GeminiConfig struct {
	BaseURL         string
	Model           string
	Temperature     float64
	MaxOutputTokens int
	Timeout         time.Duration
}

// Defaults for GeminiConfig.
const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel   = "gemini-1.5-flash"
)

const systemPrompt = "You are a friendly study assistant for university students. Answer concisely and practically."

// Gemini calls the generateContent endpoint with the caller's key.
type Gemini struct {
	client *resty.Client
	cfg    GeminiConfig
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	SystemInstruction *geminiContent   `json:"systemInstruction,omitempty"`
	Contents          []geminiContent  `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// NewGemini builds a responder. Zero fields take the package defaults.
func NewGemini(cfg GeminiConfig) *Gemini {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Gemini{client: client, cfg: cfg}
}

// Client exposes the underlying resty client.
func (g *Gemini) Client() *resty.Client {
	return g.client
}

func (g *Gemini) Respond(ctx context.Context, req Request) (Response, error) {
	body := generateRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}},
		Contents:          contents(req.History, req.Prompt),
		GenerationConfig: generationConfig{
			Temperature:     g.cfg.Temperature,
			MaxOutputTokens: g.cfg.MaxOutputTokens,
		},
	}

	var out generateResponse
	var apiErr geminiError
	resp, err := g.client.R().
		SetContext(ctx).
		SetPathParam("model", g.cfg.Model).
		SetQueryParam("key", req.APIKey).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1beta/models/{model}:generateContent")
	if err != nil {
		return Response{}, fmt.Errorf("gemini: request: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return Response{}, fmt.Errorf("gemini: %s: %w", apiErr.Error.Message, apperr.ErrPermission)
	case resp.IsError():
		msg := apiErr.Error.Message
		if msg == "" {
			msg = resp.Status()
		}
		return Response{}, fmt.Errorf("gemini: status %d: %s", resp.StatusCode(), msg)
	}

	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return Response{}, fmt.Errorf("gemini: empty response")
	}
	text := strings.TrimSpace(out.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return Response{}, fmt.Errorf("gemini: empty response")
	}
	return Response{Category: CategoryModel, Text: text}, nil
}

// contents maps the conversation window to ordered role/parts pairs,
// ending with the new prompt.
func contents(history []models.Message, prompt string) []geminiContent {
	out := make([]geminiContent, 0, len(history)+1)
	for _, m := range history {
		role := "user"
		if m.Role == models.RoleAssistant {
			role = "model"
		}
		out = append(out, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	return append(out, geminiContent{Role: "user", Parts: []geminiPart{{Text: prompt}}})
}

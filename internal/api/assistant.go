package api

import (
	"net/http"
	"strings"
)

// Query handles POST /api/assistant/query.
//
//	@Summary		Ask the study assistant
//	@Description	Replies come from the keyword cascade unless a remote model is configured. Requires a stored API key.
//	@Tags			assistant
//	@Accept			json
//	@Produce		json
//	@Param			body	body		QueryRequest	true	"Prompt"
//	@Success		200		{object}	assistant.Response
//	@Failure		400		{object}	errResponse
//	@Failure		412		{object}	errResponse	"API key missing"
//	@Security		BearerAuth
//	@Router			/assistant/query [post]
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := h.assistant.Query(r.Context(), req.Prompt)
	if err != nil {
		writeError(w, "assistant query", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetHistory handles GET /api/assistant/history.
//
//	@Summary	Recent conversation
//	@Tags		assistant
//	@Produce	json
//	@Success	200	{object}	HistoryResponse
//	@Security	BearerAuth
//	@Router		/assistant/history [get]
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HistoryResponse{Messages: h.assistant.History()})
}

// ClearHistory handles DELETE /api/assistant/history.
//
//	@Summary	Forget the conversation
//	@Tags		assistant
//	@Success	204
//	@Security	BearerAuth
//	@Router		/assistant/history [delete]
func (h *Handler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	h.assistant.ClearHistory()
	w.WriteHeader(http.StatusNoContent)
}

// GetKey handles GET /api/assistant/key. The key itself is never returned.
//
//	@Summary	Whether an API key is stored
//	@Tags		assistant
//	@Produce	json
//	@Success	200	{object}	KeyStatus
//	@Security	BearerAuth
//	@Router		/assistant/key [get]
func (h *Handler) GetKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, KeyStatus{Configured: h.assistant.HasKey()})
}

// PutKey handles PUT /api/assistant/key.
//
//	@Summary	Store the assistant API key
//	@Tags		assistant
//	@Accept		json
//	@Produce	json
//	@Param		body	body		KeyRequest	true	"API key"
//	@Success	200		{object}	KeyStatus
//	@Failure	400		{object}	errResponse
//	@Security	BearerAuth
//	@Router		/assistant/key [put]
func (h *Handler) PutKey(w http.ResponseWriter, r *http.Request) {
	var req KeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.assistant.SetKey(strings.TrimSpace(req.Key)); err != nil {
		writeError(w, "set key", err)
		return
	}
	writeJSON(w, http.StatusOK, KeyStatus{Configured: true})
}

// DeleteKey handles DELETE /api/assistant/key.
//
//	@Summary	Remove the assistant API key
//	@Tags		assistant
//	@Success	204
//	@Security	BearerAuth
//	@Router		/assistant/key [delete]
func (h *Handler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	if err := h.assistant.ClearKey(); err != nil {
		writeError(w, "clear key", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Insights handles POST /api/assistant/insights.
//
//	@Summary	Analyse subject scores
//	@Tags		assistant
//	@Accept		json
//	@Produce	json
//	@Param		body	body		InsightRequest	true	"Scores from 0 to 100"
//	@Success	200		{object}	assistant.Insight
//	@Failure	400		{object}	errResponse
//	@Failure	412		{object}	errResponse	"API key missing"
//	@Security	BearerAuth
//	@Router		/assistant/insights [post]
func (h *Handler) Insights(w http.ResponseWriter, r *http.Request) {
	var req InsightRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := h.assistant.ScoreInsight(r.Context(), req.Scores)
	if err != nil {
		writeError(w, "score insight", err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

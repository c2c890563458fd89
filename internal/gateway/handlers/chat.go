package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/coursepilot/gateway/internal/gateway/contextwindow"
	"github.com/coursepilot/gateway/internal/gateway/orchestrator"
	"github.com/coursepilot/gateway/internal/gateway/providers"
	"github.com/coursepilot/gateway/internal/gateway/secrets"
	"github.com/coursepilot/gateway/internal/shared/models"
)

const suggestionsPrompt = "You generate three short follow-up study questions " +
	"for the conversation so far. Return one question per line, nothing else."

const titlePrompt = "You write a concise title (at most six words) for a chat " +
	"session based on its first question. Return only the title."

// Generator runs one model request end to end.
type Generator interface {
	GenerateResponse(ctx context.Context, req orchestrator.GenerateRequest) (*orchestrator.GenerateResult, error)
}

// messageStore persists conversation turns after a response is generated.
type messageStore interface {
	SaveChatMessage(ctx context.Context, msg *models.ChatMessage) error
}

// responseCache short-circuits repeated generation requests.
type responseCache interface {
	Get(ctx context.Context, parts ...string) (*orchestrator.GenerateResult, bool)
	Set(ctx context.Context, result *orchestrator.GenerateResult, parts ...string)
}

type ChatHandler struct {
	orch     Generator
	cache    responseCache
	messages messageStore
}

func NewChatHandler(orch Generator, cache responseCache, messages messageStore) *ChatHandler {
	return &ChatHandler{
		orch:     orch,
		cache:    cache,
		messages: messages,
	}
}

type chatRequest struct {
	Query         string                  `json:"query"`
	History       []contextwindow.Message `json:"history"`
	Summary       string                  `json:"summary,omitempty"`
	CanvasContext string                  `json:"canvas_context,omitempty"`
	SessionID     string                  `json:"session_id,omitempty"`
	Model         string                  `json:"model,omitempty"`
	ModelOverride string                  `json:"model_override,omitempty"`
}

type chatResponse struct {
	Response string          `json:"response"`
	Provider providers.Kind  `json:"provider"`
	Model    string          `json:"model"`
	Usage    providers.Usage `json:"usage"`
}

// HandleChat handles POST /v1/chat
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := UserID(ctx)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSONError(w, http.StatusBadRequest, "query is required")
		return
	}

	result, err := h.orch.GenerateResponse(ctx, orchestrator.GenerateRequest{
		UserID:        userID,
		Query:         req.Query,
		CanvasContext: req.CanvasContext,
		History:       req.History,
		Summary:       req.Summary,
		SessionID:     req.SessionID,
		ModelOverride: h.modelOverride(req),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.persistTurn(userID, req.SessionID, req.Query, result.Response)

	writeJSON(w, http.StatusOK, chatResponse{
		Response: result.Response,
		Provider: result.ProviderType,
		Model:    result.Model,
		Usage:    result.Usage,
	})
}

// HandleSuggestions handles POST /v1/suggestions
func (h *ChatHandler) HandleSuggestions(w http.ResponseWriter, r *http.Request) {
	h.handleCachedGeneration(w, r, suggestionsPrompt, "suggestions")
}

// HandleTitle handles POST /v1/title
func (h *ChatHandler) HandleTitle(w http.ResponseWriter, r *http.Request) {
	h.handleCachedGeneration(w, r, titlePrompt, "title")
}

// handleCachedGeneration serves the fixed-prompt generation routes
// (suggestions, titles) through the response cache.
func (h *ChatHandler) handleCachedGeneration(w http.ResponseWriter, r *http.Request, systemPrompt, purpose string) {
	ctx := r.Context()

	userID, ok := UserID(ctx)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSONError(w, http.StatusBadRequest, "query is required")
		return
	}

	cacheParts := []string{purpose, userID, req.Query, historyFingerprint(req.History)}
	if cached, ok := h.cache.Get(ctx, cacheParts...); ok {
		w.Header().Set("X-Cache-Hit", "true")
		writeJSON(w, http.StatusOK, chatResponse{
			Response: cached.Response,
			Provider: cached.ProviderType,
			Model:    cached.Model,
			Usage:    cached.Usage,
		})
		return
	}

	result, err := h.orch.GenerateResponse(ctx, orchestrator.GenerateRequest{
		UserID:        userID,
		Query:         req.Query,
		History:       req.History,
		SessionID:     req.SessionID,
		ModelOverride: h.modelOverride(req),
		SystemPrompt:  systemPrompt,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.cache.Set(ctx, result, cacheParts...)

	writeJSON(w, http.StatusOK, chatResponse{
		Response: result.Response,
		Provider: result.ProviderType,
		Model:    result.Model,
		Usage:    result.Usage,
	})
}

// modelOverride resolves the two accepted request fields; model_override
// wins over model when both are present.
func (h *ChatHandler) modelOverride(req chatRequest) string {
	if req.ModelOverride != "" {
		return req.ModelOverride
	}
	return req.Model
}

// persistTurn saves the user query and assistant reply. Runs off the
// request path; persistence failures must not fail a delivered response.
func (h *ChatHandler) persistTurn(userID, sessionID, query, response string) {
	go func() {
		ctx := context.Background()
		if err := h.messages.SaveChatMessage(ctx, &models.ChatMessage{
			UserID:    userID,
			SessionID: sessionID,
			Role:      contextwindow.RoleUser,
			Content:   query,
		}); err != nil {
			log.Printf("persist user message: %v", err)
			return
		}
		if err := h.messages.SaveChatMessage(ctx, &models.ChatMessage{
			UserID:    userID,
			SessionID: sessionID,
			Role:      contextwindow.RoleAssistant,
			Content:   response,
		}); err != nil {
			log.Printf("persist assistant message: %v", err)
		}
	}()
}

// historyFingerprint folds the history into a cache key component.
func historyFingerprint(history []contextwindow.Message) string {
	var b strings.Builder
	for _, m := range history {
		b.WriteString(m.Role)
		b.WriteByte(':')
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps orchestrator errors onto HTTP statuses. Known
// upstream categories pass their actionable message through; generic
// failures are masked.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, providers.ErrProviderNotFound):
		writeJSONError(w, http.StatusBadRequest, "no provider configured, add an API key in settings")
	case errors.Is(err, providers.ErrInvalidKey):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, providers.ErrQuotaExceeded):
		writeJSONError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, providers.ErrModelNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, secrets.ErrDecryptionFailed):
		writeJSONError(w, http.StatusInternalServerError, "stored credential could not be decrypted, re-enter your API key")
	case errors.Is(err, orchestrator.ErrUsageFetch):
		writeJSONError(w, http.StatusInternalServerError, "failed to fetch usage statistics")
	default:
		log.Printf("generation failed: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to generate response")
	}
}

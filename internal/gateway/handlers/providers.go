package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/coursepilot/gateway/internal/gateway/orchestrator"
	"github.com/coursepilot/gateway/internal/shared/models"
)

// providerStore is the database surface for provider settings.
type providerStore interface {
	ListProviderConfigs(ctx context.Context, userID string) ([]models.ProviderConfig, error)
	CreateProviderConfig(ctx context.Context, cfg *models.ProviderConfig, markActive bool) error
	DeleteProviderConfig(ctx context.Context, userID, providerID string) error
}

// encrypter seals credentials before they reach storage.
type encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// connectionTester validates credentials and reads usage stats.
type connectionTester interface {
	TestProviderConnection(ctx context.Context, userID, providerID string) (*orchestrator.TestResult, error)
	GetProviderUsageStats(ctx context.Context, userID, providerID string, windowDays int) (*models.UsageStats, error)
}

type ProviderHandler struct {
	store providerStore
	codec encrypter
	orch  connectionTester
}

func NewProviderHandler(store providerStore, codec encrypter, orch connectionTester) *ProviderHandler {
	return &ProviderHandler{
		store: store,
		codec: codec,
		orch:  orch,
	}
}

// providerView is a config row with the credential stripped. Keys never
// leave the server, encrypted or not.
type providerView struct {
	ID           string    `json:"id"`
	ProviderName string    `json:"provider_name"`
	ModelName    string    `json:"model_name"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toView(cfg models.ProviderConfig) providerView {
	return providerView{
		ID:           cfg.ID,
		ProviderName: cfg.ProviderName,
		ModelName:    cfg.ModelName,
		IsActive:     cfg.IsActive,
		CreatedAt:    cfg.CreatedAt,
		UpdatedAt:    cfg.UpdatedAt,
	}
}

// HandleList handles GET /v1/providers
func (h *ProviderHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	configs, err := h.store.ListProviderConfigs(r.Context(), userID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to list providers")
		return
	}

	views := make([]providerView, 0, len(configs))
	for _, cfg := range configs {
		views = append(views, toView(cfg))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"providers": views})
}

type createProviderRequest struct {
	ProviderName string `json:"provider_name"`
	ModelName    string `json:"model_name"`
	APIKey       string `json:"api_key"`
	Activate     bool   `json:"activate"`
}

// HandleCreate handles POST /v1/providers
func (h *ProviderHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.APIKey) == "" {
		writeJSONError(w, http.StatusBadRequest, "api_key is required")
		return
	}
	if strings.TrimSpace(req.ModelName) == "" {
		writeJSONError(w, http.StatusBadRequest, "model_name is required")
		return
	}
	if req.ProviderName == "" {
		req.ProviderName = "openrouter"
	}

	encrypted, err := h.codec.Encrypt(req.APIKey)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to store credential")
		return
	}

	cfg := &models.ProviderConfig{
		UserID:          userID,
		ProviderName:    req.ProviderName,
		ModelName:       req.ModelName,
		EncryptedAPIKey: encrypted,
	}
	if err := h.store.CreateProviderConfig(r.Context(), cfg, req.Activate); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to store provider")
		return
	}

	writeJSON(w, http.StatusCreated, toView(*cfg))
}

// HandleDelete handles DELETE /v1/providers/{id}
func (h *ProviderHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	providerID := chi.URLParam(r, "id")
	if err := h.store.DeleteProviderConfig(r.Context(), userID, providerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSONError(w, http.StatusNotFound, "provider not found")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "failed to delete provider")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleTest handles POST /v1/providers/{id}/test
func (h *ProviderHandler) HandleTest(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	result, err := h.orch.TestProviderConnection(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type usageStatsResponse struct {
	TotalRequests int               `json:"totalRequests"`
	TotalTokens   int               `json:"totalTokens"`
	TotalCost     float64           `json:"totalCost"`
	UsageData     []usageRecordView `json:"usageData"`
}

type usageRecordView struct {
	Date     string  `json:"date"`
	Requests int     `json:"requests"`
	Tokens   int     `json:"tokens"`
	Cost     float64 `json:"cost"`
}

// HandleUsage handles GET /v1/providers/{id}/usage?days=n
func (h *ProviderHandler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserID(r.Context())
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	windowDays := 30
	if v := r.URL.Query().Get("days"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			windowDays = parsed
		}
	}

	stats, err := h.orch.GetProviderUsageStats(r.Context(), userID, chi.URLParam(r, "id"), windowDays)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := usageStatsResponse{
		TotalRequests: stats.TotalRequests,
		TotalTokens:   stats.TotalTokens,
		TotalCost:     stats.TotalCost,
		UsageData:     make([]usageRecordView, 0, len(stats.Records)),
	}
	for _, rec := range stats.Records {
		resp.UsageData = append(resp.UsageData, usageRecordView{
			Date:     rec.UsageDate.Format("2006-01-02"),
			Requests: rec.RequestCount,
			Tokens:   rec.TotalTokens,
			Cost:     rec.TotalCost,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// Package orchestrator drives one model request end to end: resolve the
// credential, assemble the bounded context, call the upstream gateway,
// classify failures, and record usage for billing.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/coursepilot/gateway/internal/gateway/contextwindow"
	"github.com/coursepilot/gateway/internal/gateway/providers"
	"github.com/coursepilot/gateway/internal/shared/config"
	"github.com/coursepilot/gateway/internal/shared/models"
)

// ErrUsageFetch wraps failures while reading the usage ledger.
var ErrUsageFetch = errors.New("failed to fetch usage statistics")

const (
	// contextBudgetTokens bounds the assembled context per request.
	contextBudgetTokens = 4000
	// maxHistoryTurns caps how many trailing turns are considered.
	maxHistoryTurns = 20
)

const baseSystemPrompt = "You are CoursePilot, an AI study assistant with access to the " +
	"student's Canvas course material. Answer using the supplied course " +
	"context when relevant, and say so when the material does not cover " +
	"the question."

// Store is the persistence surface the orchestrator needs.
type Store interface {
	GetActiveProviderConfig(ctx context.Context, userID string) (*models.ProviderConfig, error)
	GetProviderConfig(ctx context.Context, userID, providerID string) (*models.ProviderConfig, error)
	RecordUsage(ctx context.Context, userID string, providerConfigID *string, day time.Time, tokens int, cost float64) error
	GetUsageRecords(ctx context.Context, userID, providerConfigID string, windowDays int) ([]models.UsageRecord, error)
	GetModelPricing(ctx context.Context, provider, model string) (*models.ModelPricing, error)
}

// Codec opens stored credentials.
type Codec interface {
	Decrypt(ciphertext string) (string, error)
}

// ChatClient is one credential's view of the upstream gateway.
type ChatClient interface {
	ChatCompletion(ctx context.Context, model string, messages []contextwindow.Message) (*providers.Completion, error)
	ListModels(ctx context.Context) ([]string, error)
}

// ClientFactory builds a ChatClient for a plaintext API key.
type ClientFactory func(apiKey string) ChatClient

// Orchestrator resolves providers and executes model requests.
type Orchestrator struct {
	store        Store
	codec        Codec
	newClient    ClientFactory
	ownerKey     string
	defaultModel string
	now          func() time.Time
}

// New creates an orchestrator using the real OpenRouter client.
func New(store Store, codec Codec, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		store: store,
		codec: codec,
		newClient: func(apiKey string) ChatClient {
			return providers.NewClient(apiKey)
		},
		ownerKey:     cfg.OpenRouterAPIKey,
		defaultModel: cfg.DefaultModel,
		now:          time.Now,
	}
}

// GenerateRequest describes one chat generation.
type GenerateRequest struct {
	UserID        string
	Query         string
	CanvasContext string
	History       []contextwindow.Message
	Summary       string
	SessionID     string
	ModelOverride string
	// SystemPrompt replaces the default course-assistant prompt when set
	// (suggestions and title generation use their own prompts).
	SystemPrompt string
}

// GenerateResult is a successful generation.
type GenerateResult struct {
	Response     string
	ProviderType providers.Kind
	Model        string
	Usage        providers.Usage
}

// GenerateResponse runs the full pipeline for one request. Errors carry
// the domain taxonomy (ErrProviderNotFound, ErrDecryptionFailed, upstream
// categories); no retries happen here.
func (o *Orchestrator) GenerateResponse(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	resolved, err := providers.Resolve(ctx, o.store, o.codec, req.UserID, req.ModelOverride, o.ownerKey, o.defaultModel)
	if err != nil {
		return nil, err
	}

	messages := contextwindow.Assemble(contextwindow.Params{
		SystemPrompt: o.systemPrompt(req),
		Summary:      req.Summary,
		Messages:     req.History,
		MaxTokens:    contextBudgetTokens,
		MaxTurns:     maxHistoryTurns,
	})
	messages = append(messages, contextwindow.Message{
		Role:    contextwindow.RoleUser,
		Content: req.Query,
	})

	client := o.newClient(resolved.APIKey)
	completion, err := client.ChatCompletion(ctx, resolved.Model, messages)
	if err != nil {
		return nil, providers.ClassifyUpstreamError(err)
	}

	o.recordUsage(ctx, req.UserID, resolved, completion)

	return &GenerateResult{
		Response:     completion.Content,
		ProviderType: resolved.Kind,
		Model:        resolved.Model,
		Usage:        completion.Usage,
	}, nil
}

// systemPrompt builds the system entry, folding course context in when the
// route supplied any.
func (o *Orchestrator) systemPrompt(req GenerateRequest) string {
	prompt := req.SystemPrompt
	if prompt == "" {
		prompt = baseSystemPrompt
	}
	if strings.TrimSpace(req.CanvasContext) != "" {
		prompt += "\n\nCourse context:\n" + req.CanvasContext
	}
	return prompt
}

// recordUsage increments the day bucket for the resolved provider. Ledger
// failures are logged, not surfaced: the user already has their response.
func (o *Orchestrator) recordUsage(ctx context.Context, userID string, resolved *providers.Resolved, completion *providers.Completion) {
	var configID *string
	if resolved.Kind == providers.KindUserConfigured {
		configID = &resolved.ConfigID
	}

	cost := o.estimateCost(ctx, resolved, completion.Usage)

	if err := o.store.RecordUsage(ctx, userID, configID, o.now(), completion.Usage.TotalTokens, cost); err != nil {
		log.Printf("usage record failed for user %s: %v", userID, err)
	}
}

// estimateCost prices the call from the model_pricing table. A missing
// pricing row costs zero; the request still succeeds.
func (o *Orchestrator) estimateCost(ctx context.Context, resolved *providers.Resolved, usage providers.Usage) float64 {
	pricing, err := o.store.GetModelPricing(ctx, resolved.ProviderName, resolved.Model)
	if err != nil {
		return 0
	}
	inputCost := float64(usage.PromptTokens) / 1000.0 * pricing.InputPer1kTokens
	outputCost := float64(usage.CompletionTokens) / 1000.0 * pricing.OutputPer1kTokens
	return inputCost + outputCost
}

// TestResult reports a credential validation attempt.
type TestResult struct {
	Success bool     `json:"success"`
	Models  []string `json:"models,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// TestProviderConnection validates a stored credential with a lightweight
// list-models call, without generating a completion or persisting
// anything.
func (o *Orchestrator) TestProviderConnection(ctx context.Context, userID, providerID string) (*TestResult, error) {
	cfg, err := o.store.GetProviderConfig(ctx, userID, providerID)
	if err != nil {
		return nil, providers.ErrProviderNotFound
	}

	key, err := o.codec.Decrypt(cfg.EncryptedAPIKey)
	if err != nil {
		return nil, err
	}

	modelIDs, err := o.newClient(key).ListModels(ctx)
	if err != nil {
		return &TestResult{Success: false, Error: providers.ClassifyUpstreamError(err).Error()}, nil
	}

	return &TestResult{Success: true, Models: modelIDs}, nil
}

// GetProviderUsageStats sums the usage ledger over the trailing window.
// No rows is a valid all-zero result, not an error.
func (o *Orchestrator) GetProviderUsageStats(ctx context.Context, userID, providerID string, windowDays int) (*models.UsageStats, error) {
	if windowDays <= 0 {
		windowDays = 30
	}

	records, err := o.store.GetUsageRecords(ctx, userID, providerID, windowDays)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUsageFetch, err)
	}

	stats := &models.UsageStats{Records: records}
	for _, rec := range records {
		stats.TotalRequests += rec.RequestCount
		stats.TotalTokens += rec.TotalTokens
		stats.TotalCost += rec.TotalCost
	}
	return stats, nil
}

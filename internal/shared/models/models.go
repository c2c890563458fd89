package models

import "time"

// ProviderConfig is a user-supplied upstream provider credential.
// The API key is stored encrypted; at most one config per user is active.
type ProviderConfig struct {
	ID              string
	UserID          string
	ProviderName    string
	ModelName       string
	EncryptedAPIKey string
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UsageRecord is one day's usage ledger row for a provider.
// Rows are only ever incremented within their day bucket, never decremented.
type UsageRecord struct {
	ID               string
	UserID           string
	ProviderConfigID *string
	UsageDate        time.Time
	RequestCount     int
	TotalTokens      int
	TotalCost        float64
	CreatedAt        time.Time
}

// UsageStats aggregates usage rows over a trailing window.
type UsageStats struct {
	TotalRequests int
	TotalTokens   int
	TotalCost     float64
	Records       []UsageRecord
}

// ChatMessage is a persisted conversation turn.
type ChatMessage struct {
	ID        string
	UserID    string
	SessionID string
	Role      string
	Content   string
	CreatedAt time.Time
}

// ModelPricing holds per-1k-token pricing for an upstream model.
type ModelPricing struct {
	ID                string
	Provider          string
	Model             string
	InputPer1kTokens  float64
	OutputPer1kTokens float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Package providers resolves which upstream credential and model serve a
// request, talks to the OpenRouter gateway, and classifies its failures.
package providers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/coursepilot/gateway/internal/shared/models"
)

// Kind tells which credential source a request resolved to.
type Kind string

const (
	// KindOwner is the platform-level fallback key.
	KindOwner Kind = "owner"
	// KindUserConfigured is a user's own stored credential.
	KindUserConfigured Kind = "user"
)

// Resolved is the outcome of provider resolution: a usable plaintext key
// and the model to call. Resolved once per request; the key never outlives
// the request.
type Resolved struct {
	Kind         Kind
	APIKey       string
	Model        string
	ProviderName string
	// ConfigID is set only for user-configured credentials.
	ConfigID string
}

// configSource is the subset of the database layer resolution needs.
type configSource interface {
	GetActiveProviderConfig(ctx context.Context, userID string) (*models.ProviderConfig, error)
}

// decrypter opens stored credentials.
type decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// Resolve picks the credential and model for a user's request. An active
// provider config wins, with modelOverride taking precedence over its
// stored model. Without one the owner key and default model apply; if the
// owner key is unset too, resolution fails with ErrProviderNotFound.
func Resolve(ctx context.Context, store configSource, codec decrypter, userID, modelOverride, ownerKey, defaultModel string) (*Resolved, error) {
	cfg, err := store.GetActiveProviderConfig(ctx, userID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load provider config: %w", err)
	}

	if cfg != nil {
		key, err := codec.Decrypt(cfg.EncryptedAPIKey)
		if err != nil {
			return nil, err
		}
		model := cfg.ModelName
		if modelOverride != "" {
			model = modelOverride
		}
		return &Resolved{
			Kind:         KindUserConfigured,
			APIKey:       key,
			Model:        model,
			ProviderName: cfg.ProviderName,
			ConfigID:     cfg.ID,
		}, nil
	}

	if ownerKey == "" {
		return nil, ErrProviderNotFound
	}

	model := defaultModel
	if modelOverride != "" {
		model = modelOverride
	}
	return &Resolved{
		Kind:         KindOwner,
		APIKey:       ownerKey,
		Model:        model,
		ProviderName: "openrouter",
	}, nil
}

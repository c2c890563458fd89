package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/coursepilot/gateway/internal/shared/models"
)

type DB struct {
	conn *sql.DB
}

// New creates a new database connection
func New(databaseURL string) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(10)
	conn.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// GetActiveProviderConfig returns the user's active provider config, if any.
// Returns sql.ErrNoRows when the user has no active config.
func (db *DB) GetActiveProviderConfig(ctx context.Context, userID string) (*models.ProviderConfig, error) {
	query := `
		SELECT id, user_id, provider_name, model_name, encrypted_api_key,
		       is_active, created_at, updated_at
		FROM provider_configs
		WHERE user_id = $1 AND is_active = true
		ORDER BY updated_at DESC
		LIMIT 1
	`

	var cfg models.ProviderConfig
	err := db.conn.QueryRowContext(ctx, query, userID).Scan(
		&cfg.ID,
		&cfg.UserID,
		&cfg.ProviderName,
		&cfg.ModelName,
		&cfg.EncryptedAPIKey,
		&cfg.IsActive,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &cfg, nil
}

// GetProviderConfig returns a provider config owned by the given user.
func (db *DB) GetProviderConfig(ctx context.Context, userID, providerID string) (*models.ProviderConfig, error) {
	query := `
		SELECT id, user_id, provider_name, model_name, encrypted_api_key,
		       is_active, created_at, updated_at
		FROM provider_configs
		WHERE id = $1 AND user_id = $2
	`

	var cfg models.ProviderConfig
	err := db.conn.QueryRowContext(ctx, query, providerID, userID).Scan(
		&cfg.ID,
		&cfg.UserID,
		&cfg.ProviderName,
		&cfg.ModelName,
		&cfg.EncryptedAPIKey,
		&cfg.IsActive,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &cfg, nil
}

// ListProviderConfigs returns all provider configs owned by the user.
func (db *DB) ListProviderConfigs(ctx context.Context, userID string) ([]models.ProviderConfig, error) {
	query := `
		SELECT id, user_id, provider_name, model_name, encrypted_api_key,
		       is_active, created_at, updated_at
		FROM provider_configs
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var configs []models.ProviderConfig
	for rows.Next() {
		var cfg models.ProviderConfig
		if err := rows.Scan(
			&cfg.ID,
			&cfg.UserID,
			&cfg.ProviderName,
			&cfg.ModelName,
			&cfg.EncryptedAPIKey,
			&cfg.IsActive,
			&cfg.CreatedAt,
			&cfg.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
		configs = append(configs, cfg)
	}

	return configs, rows.Err()
}

// CreateProviderConfig inserts a new provider config. When markActive is set,
// any previously active config for the user is deactivated in the same
// transaction so at most one config stays active.
func (db *DB) CreateProviderConfig(ctx context.Context, cfg *models.ProviderConfig, markActive bool) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	defer tx.Rollback()

	if markActive {
		if _, err := tx.ExecContext(ctx,
			`UPDATE provider_configs SET is_active = false, updated_at = NOW() WHERE user_id = $1 AND is_active = true`,
			cfg.UserID,
		); err != nil {
			return fmt.Errorf("database error: %w", err)
		}
	}

	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	cfg.IsActive = markActive

	if err := tx.QueryRowContext(ctx, `
		INSERT INTO provider_configs (id, user_id, provider_name, model_name, encrypted_api_key, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`,
		cfg.ID,
		cfg.UserID,
		cfg.ProviderName,
		cfg.ModelName,
		cfg.EncryptedAPIKey,
		cfg.IsActive,
	).Scan(&cfg.CreatedAt, &cfg.UpdatedAt); err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	return tx.Commit()
}

// DeleteProviderConfig removes a provider config owned by the user.
func (db *DB) DeleteProviderConfig(ctx context.Context, userID, providerID string) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM provider_configs WHERE id = $1 AND user_id = $2`,
		providerID, userID,
	)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ownerUsageSentinel stands in for a NULL provider_config_id inside the
// provider_usage uniqueness expression, so owner-key traffic gets its own
// day bucket per user.
const ownerUsageSentinel = "00000000-0000-0000-0000-000000000000"

// RecordUsage increments the day bucket for (user, provider config, day)
// atomically, creating the row if absent. Counter-only update; concurrent
// requests never lose increments.
func (db *DB) RecordUsage(ctx context.Context, userID string, providerConfigID *string, day time.Time, tokens int, cost float64) error {
	query := `
		INSERT INTO provider_usage (id, user_id, provider_config_id, usage_date, request_count, total_tokens, total_cost)
		VALUES ($1, $2, $3, $4, 1, $5, $6)
		ON CONFLICT (user_id, COALESCE(provider_config_id, '` + ownerUsageSentinel + `'::uuid), usage_date)
		DO UPDATE SET
			request_count = provider_usage.request_count + 1,
			total_tokens  = provider_usage.total_tokens + EXCLUDED.total_tokens,
			total_cost    = provider_usage.total_cost + EXCLUDED.total_cost
	`

	var configID sql.NullString
	if providerConfigID != nil {
		configID = sql.NullString{String: *providerConfigID, Valid: true}
	}

	_, err := db.conn.ExecContext(ctx, query,
		uuid.NewString(),
		userID,
		configID,
		day.UTC().Truncate(24*time.Hour),
		tokens,
		cost,
	)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	return nil
}

// GetUsageRecords returns usage rows for a provider config within the
// trailing window, newest first. An empty result is not an error.
func (db *DB) GetUsageRecords(ctx context.Context, userID, providerConfigID string, windowDays int) ([]models.UsageRecord, error) {
	query := `
		SELECT id, user_id, provider_config_id, usage_date, request_count, total_tokens, total_cost, created_at
		FROM provider_usage
		WHERE user_id = $1 AND provider_config_id = $2 AND usage_date >= $3
		ORDER BY usage_date DESC
	`

	since := time.Now().UTC().AddDate(0, 0, -windowDays)

	rows, err := db.conn.QueryContext(ctx, query, userID, providerConfigID, since)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var records []models.UsageRecord
	for rows.Next() {
		var rec models.UsageRecord
		var configID sql.NullString
		if err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&configID,
			&rec.UsageDate,
			&rec.RequestCount,
			&rec.TotalTokens,
			&rec.TotalCost,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
		if configID.Valid {
			rec.ProviderConfigID = &configID.String
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// SaveChatMessage persists a conversation turn.
func (db *DB) SaveChatMessage(ctx context.Context, msg *models.ChatMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO chat_messages (id, user_id, session_id, role, content)
		VALUES ($1, $2, $3, $4, $5)
	`,
		msg.ID,
		msg.UserID,
		msg.SessionID,
		msg.Role,
		msg.Content,
	)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	return nil
}

// GetModelPricing retrieves pricing for a model
func (db *DB) GetModelPricing(ctx context.Context, provider, model string) (*models.ModelPricing, error) {
	query := `
		SELECT id, provider, model, input_per_1k_tokens, output_per_1k_tokens, created_at, updated_at
		FROM model_pricing
		WHERE provider = $1 AND model = $2
	`

	var pricing models.ModelPricing
	err := db.conn.QueryRowContext(ctx, query, provider, model).Scan(
		&pricing.ID,
		&pricing.Provider,
		&pricing.Model,
		&pricing.InputPer1kTokens,
		&pricing.OutputPer1kTokens,
		&pricing.CreatedAt,
		&pricing.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("pricing not found for %s/%s", provider, model)
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &pricing, nil
}

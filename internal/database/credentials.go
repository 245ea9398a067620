package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Credential is the marketplace connection of one application user. An
// empty AccessToken means the user is disconnected.
type Credential struct {
	UserID            string
	MarketplaceUserID string
	AccessToken       string
	RefreshToken      string
}

// Connected reports whether the user holds an access token
func (c Credential) Connected() bool {
	return c.AccessToken != ""
}

// UserSettings holds alert preferences and connection state for a user
type UserSettings struct {
	IsConnected        bool       `json:"is_connected_ml"`
	MarketplaceUserID  string     `json:"ml_user_id,omitempty"`
	AlertThresholdDays int        `json:"alert_threshold_days"`
	LastSync           *time.Time `json:"last_sync,omitempty"`
}

// DefaultAlertThresholdDays applies to users without saved settings
const DefaultAlertThresholdDays = 5

// GetCredential returns the stored connection for a user. A user without a
// row yields an empty Credential.
func (db *DB) GetCredential(ctx context.Context, userID string) (Credential, error) {
	var mlUserID, access, refresh sql.NullString
	err := db.QueryRowContext(ctx, `
		SELECT ml_user_id, ml_access_token, ml_refresh_token
		FROM users
		WHERE id = ?
	`, userID).Scan(&mlUserID, &access, &refresh)
	if errors.Is(err, sql.ErrNoRows) {
		return Credential{UserID: userID}, nil
	}
	if err != nil {
		return Credential{}, fmt.Errorf("failed to load credential: %w", err)
	}

	accessToken, err := db.sealer.Open(access.String)
	if err != nil {
		return Credential{}, err
	}
	refreshToken, err := db.sealer.Open(refresh.String)
	if err != nil {
		return Credential{}, err
	}

	return Credential{
		UserID:            userID,
		MarketplaceUserID: mlUserID.String,
		AccessToken:       accessToken,
		RefreshToken:      refreshToken,
	}, nil
}

// SetTokens stores a new token pair, creating the user row if needed
func (db *DB) SetTokens(ctx context.Context, userID, marketplaceUserID, accessToken, refreshToken string) error {
	access, err := db.sealer.Seal(accessToken)
	if err != nil {
		return err
	}
	refresh, err := db.sealer.Seal(refreshToken)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO users (id, ml_user_id, ml_access_token, ml_refresh_token)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ml_user_id = COALESCE(NULLIF(excluded.ml_user_id, ''), users.ml_user_id),
			ml_access_token = excluded.ml_access_token,
			ml_refresh_token = excluded.ml_refresh_token,
			updated_at = CURRENT_TIMESTAMP
	`, userID, nullIfEmpty(marketplaceUserID), nullIfEmpty(access), nullIfEmpty(refresh))
	if err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}
	return nil
}

// ClearConnection removes the marketplace identity and both tokens
func (db *DB) ClearConnection(ctx context.Context, userID string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE users
		SET ml_user_id = NULL, ml_access_token = NULL, ml_refresh_token = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to clear connection: %w", err)
	}
	return nil
}

// ConnectedUsers returns the ids of users holding an access token
func (db *DB) ConnectedUsers(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id FROM users
		WHERE ml_access_token IS NOT NULL AND ml_access_token != ''
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetSettings returns a user's settings, with defaults for unknown users
func (db *DB) GetSettings(ctx context.Context, userID string) (*UserSettings, error) {
	var (
		mlUserID sql.NullString
		access   sql.NullString
		s        UserSettings
	)
	err := db.QueryRowContext(ctx, `
		SELECT ml_user_id, ml_access_token, alert_threshold_days, last_sync_at
		FROM users
		WHERE id = ?
	`, userID).Scan(&mlUserID, &access, &s.AlertThresholdDays, &s.LastSync)
	if errors.Is(err, sql.ErrNoRows) {
		return &UserSettings{AlertThresholdDays: DefaultAlertThresholdDays}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	s.IsConnected = access.String != ""
	s.MarketplaceUserID = mlUserID.String
	return &s, nil
}

// UpdateSettings stores the alert threshold for a user
func (db *DB) UpdateSettings(ctx context.Context, userID string, alertThresholdDays int) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, alert_threshold_days)
		VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET
			alert_threshold_days = excluded.alert_threshold_days,
			updated_at = CURRENT_TIMESTAMP
	`, userID, alertThresholdDays)
	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

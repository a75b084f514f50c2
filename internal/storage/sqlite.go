package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/callbridge/callbridge/internal/models"
)

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			url TEXT NOT NULL,
			secret TEXT NOT NULL,
			event_types TEXT NOT NULL DEFAULT '[]',
			active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS delivery_attempts (
			id TEXT PRIMARY KEY,
			subscription_id TEXT,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL DEFAULT '',
			attempt_number INTEGER NOT NULL,
			status_code INTEGER NOT NULL DEFAULT 0,
			response_body TEXT NOT NULL DEFAULT '',
			success INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS processed_events (
			provider_event_id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			event_type TEXT NOT NULL,
			tenant_id TEXT NOT NULL DEFAULT '',
			processed INTEGER NOT NULL DEFAULT 0,
			claimed_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			processed_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_tenant ON subscriptions(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_subscription ON delivery_attempts(subscription_id)`,
		`CREATE INDEX IF NOT EXISTS idx_processed_events_source ON processed_events(source)`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- Subscriptions ---

func (s *SQLiteStorage) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	eventTypes, _ := json.Marshal(sub.EventTypes)
	active := 0
	if sub.Active {
		active = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, tenant_id, url, secret, event_types, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.TenantID, sub.URL, sub.Secret, string(eventTypes), active, sub.CreatedAt, sub.UpdatedAt,
	)
	return err
}

func (s *SQLiteStorage) scanSubscription(row interface{ Scan(...interface{}) error }) (*models.Subscription, error) {
	var sub models.Subscription
	var eventTypes string
	var active int
	err := row.Scan(&sub.ID, &sub.TenantID, &sub.URL, &sub.Secret, &eventTypes, &active, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(eventTypes), &sub.EventTypes)
	sub.Active = active == 1
	return &sub, nil
}

func (s *SQLiteStorage) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, url, secret, event_types, active, created_at, updated_at FROM subscriptions WHERE id = ?`, id)
	sub, err := s.scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sub, err
}

func (s *SQLiteStorage) ListSubscriptions(ctx context.Context, tenantID string) ([]models.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, url, secret, event_types, active, created_at, updated_at
		 FROM subscriptions WHERE tenant_id = ? ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		sub, err := s.scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

func (s *SQLiteStorage) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	eventTypes, _ := json.Marshal(sub.EventTypes)
	active := 0
	if sub.Active {
		active = 1
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET url = ?, event_types = ?, active = ?, updated_at = ? WHERE id = ?`,
		sub.URL, string(eventTypes), active, time.Now().UTC(), sub.ID,
	)
	return err
}

func (s *SQLiteStorage) DeleteSubscription(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	return err
}

func (s *SQLiteStorage) ToggleSubscription(ctx context.Context, id string, active bool) error {
	a := 0
	if active {
		a = 1
	}
	_, err := s.db.ExecContext(ctx, `UPDATE subscriptions SET active = ?, updated_at = ? WHERE id = ?`, a, time.Now().UTC(), id)
	return err
}

func (s *SQLiteStorage) GetSubscriptionsByEvent(ctx context.Context, tenantID, eventType string, limit int) ([]models.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, url, secret, event_types, active, created_at, updated_at
		 FROM subscriptions WHERE tenant_id = ? AND active = 1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		sub, err := s.scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		if !matchesEventType(sub.EventTypes, eventType) {
			continue
		}
		subs = append(subs, *sub)
		if limit > 0 && len(subs) >= limit {
			break
		}
	}
	return subs, rows.Err()
}

func matchesEventType(subscribed []string, eventType string) bool {
	for _, sub := range subscribed {
		if sub == eventType || sub == "*" {
			return true
		}
		// wildcard matching: "call.*" matches "call.completed"
		if strings.HasSuffix(sub, ".*") {
			prefix := strings.TrimSuffix(sub, ".*")
			if strings.HasPrefix(eventType, prefix+".") {
				return true
			}
		}
	}
	return false
}

// --- Delivery attempts ---

func (s *SQLiteStorage) CreateAttempt(ctx context.Context, a *models.DeliveryAttempt) error {
	success := 0
	if a.Success {
		success = 1
	}
	subscriptionID := sql.NullString{String: a.SubscriptionID, Valid: a.SubscriptionID != ""}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_attempts (id, subscription_id, event_type, payload, attempt_number, status_code, response_body, success, duration_ms, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, subscriptionID, a.EventType, a.Payload, a.AttemptNumber, a.StatusCode, a.ResponseBody, success, a.DurationMs, a.Error, a.CreatedAt,
	)
	return err
}

func (s *SQLiteStorage) ListAttemptsBySubscription(ctx context.Context, subscriptionID string, limit int) ([]models.DeliveryAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subscription_id, event_type, payload, attempt_number, status_code, response_body, success, duration_ms, error, created_at
		 FROM delivery_attempts WHERE subscription_id = ? ORDER BY created_at DESC, attempt_number DESC LIMIT ?`,
		subscriptionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []models.DeliveryAttempt
	for rows.Next() {
		var a models.DeliveryAttempt
		var subID sql.NullString
		var success int
		if err := rows.Scan(&a.ID, &subID, &a.EventType, &a.Payload, &a.AttemptNumber, &a.StatusCode, &a.ResponseBody, &success, &a.DurationMs, &a.Error, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.SubscriptionID = subID.String
		a.Success = success == 1
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// --- Processed-event ledger ---

// ClaimEvent inserts a pending row for the provider event id. When the id
// already exists, a processed row means the event is a duplicate; an
// unprocessed row can be reclaimed once its lease has expired, so a
// provider retry after a failed run gets another chance while concurrent
// duplicate deliveries racing the in-flight claim do not.
func (s *SQLiteStorage) ClaimEvent(ctx context.Context, ev *models.ProcessedEvent, lease time.Duration) (bool, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processed_events (provider_event_id, source, event_type, tenant_id, processed, claimed_at, created_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?)`,
		ev.ProviderEventID, ev.Source, ev.EventType, ev.TenantID, now, now,
	)
	if err == nil {
		return true, nil
	}
	if !isUniqueViolation(err) {
		return false, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE processed_events SET claimed_at = ? WHERE provider_event_id = ? AND processed = 0 AND claimed_at <= ?`,
		now, ev.ProviderEventID, now.Add(-lease),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteStorage) MarkProcessed(ctx context.Context, providerEventID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE processed_events SET processed = 1, processed_at = ? WHERE provider_event_id = ?`,
		time.Now().UTC(), providerEventID,
	)
	return err
}

func (s *SQLiteStorage) GetProcessedEvent(ctx context.Context, providerEventID string) (*models.ProcessedEvent, error) {
	var ev models.ProcessedEvent
	var processed int
	err := s.db.QueryRowContext(ctx,
		`SELECT provider_event_id, source, event_type, tenant_id, processed, claimed_at, created_at, processed_at
		 FROM processed_events WHERE provider_event_id = ?`, providerEventID,
	).Scan(&ev.ProviderEventID, &ev.Source, &ev.EventType, &ev.TenantID, &processed, &ev.ClaimedAt, &ev.CreatedAt, &ev.ProcessedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	ev.Processed = processed == 1
	return &ev, err
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

// --- Stats ---

func (s *SQLiteStorage) GetStats(ctx context.Context, tenantID string) (*Stats, error) {
	stats := &Stats{}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscriptions WHERE tenant_id = ?`, tenantID).Scan(&stats.TotalSubscriptions)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscriptions WHERE tenant_id = ? AND active = 1`, tenantID).Scan(&stats.ActiveSubscriptions)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM delivery_attempts a JOIN subscriptions s ON a.subscription_id = s.id WHERE s.tenant_id = ?`, tenantID).Scan(&stats.TotalAttempts)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM delivery_attempts a JOIN subscriptions s ON a.subscription_id = s.id WHERE s.tenant_id = ? AND a.success = 1`, tenantID).Scan(&stats.SuccessCount)
	s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM delivery_attempts a JOIN subscriptions s ON a.subscription_id = s.id WHERE s.tenant_id = ? AND a.success = 0`, tenantID).Scan(&stats.FailedCount)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processed_events WHERE tenant_id = ? AND processed = 1`, tenantID).Scan(&stats.ProcessedEvents)

	if stats.TotalAttempts > 0 {
		stats.SuccessRate = float64(stats.SuccessCount) / float64(stats.TotalAttempts) * 100
	}

	return stats, nil
}

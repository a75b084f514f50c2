package storage

import (
	"context"
	"time"

	"github.com/callbridge/callbridge/internal/models"
)

type Storage interface {
	// Subscriptions
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	GetSubscription(ctx context.Context, id string) (*models.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID string) ([]models.Subscription, error)
	UpdateSubscription(ctx context.Context, sub *models.Subscription) error
	DeleteSubscription(ctx context.Context, id string) error
	ToggleSubscription(ctx context.Context, id string, active bool) error
	GetSubscriptionsByEvent(ctx context.Context, tenantID, eventType string, limit int) ([]models.Subscription, error)

	// Delivery attempts (append-only)
	CreateAttempt(ctx context.Context, a *models.DeliveryAttempt) error
	ListAttemptsBySubscription(ctx context.Context, subscriptionID string, limit int) ([]models.DeliveryAttempt, error)

	// Processed-event ledger
	ClaimEvent(ctx context.Context, ev *models.ProcessedEvent, lease time.Duration) (bool, error)
	MarkProcessed(ctx context.Context, providerEventID string) error
	GetProcessedEvent(ctx context.Context, providerEventID string) (*models.ProcessedEvent, error)

	// Stats
	GetStats(ctx context.Context, tenantID string) (*Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

type Stats struct {
	TotalSubscriptions  int64   `json:"total_subscriptions"`
	ActiveSubscriptions int64   `json:"active_subscriptions"`
	TotalAttempts       int64   `json:"total_attempts"`
	SuccessCount        int64   `json:"success_count"`
	FailedCount         int64   `json:"failed_count"`
	SuccessRate         float64 `json:"success_rate"`
	ProcessedEvents     int64   `json:"processed_events"`
}

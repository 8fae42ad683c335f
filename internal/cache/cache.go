package cache

import (
	"context"
	"time"

	"pharmapos/backend/internal/domain"
)

type AlertSummaryCache interface {
	Get(ctx context.Context, key string) (*domain.AlertSummary, bool, error)
	Set(ctx context.Context, key string, value *domain.AlertSummary, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopAlertSummaryCache struct{}

func (NoopAlertSummaryCache) Get(_ context.Context, _ string) (*domain.AlertSummary, bool, error) {
	return nil, false, nil
}

func (NoopAlertSummaryCache) Set(_ context.Context, _ string, _ *domain.AlertSummary, _ time.Duration) error {
	return nil
}

func (NoopAlertSummaryCache) Invalidate(_ context.Context, _ string) error {
	return nil
}

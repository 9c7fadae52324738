package port

import (
	"context"

	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// RateSnapshotCache caches the full RateConfig set between writes
type RateSnapshotCache interface {
	// Get returns the cached snapshot; ok is false on a miss
	Get(ctx context.Context) (snapshot []entity.RateConfig, ok bool, err error)
	Set(ctx context.Context, snapshot []entity.RateConfig) error
	Invalidate(ctx context.Context) error
}

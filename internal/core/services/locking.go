package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/IANDYI/pku-menu-service/internal/core/domain"
	"github.com/IANDYI/pku-menu-service/internal/core/ports"
)

// LockingGenerator holds the per-patient generation lock around each run.
// A concurrent run for the same patient fails with domain.ErrGenerationLocked.
type LockingGenerator struct {
	inner ports.MenuGenerator
	lock  ports.GenerationLock
}

// NewLockingGenerator wraps a generator with the given lock
func NewLockingGenerator(inner ports.MenuGenerator, lock ports.GenerationLock) *LockingGenerator {
	return &LockingGenerator{inner: inner, lock: lock}
}

func (g *LockingGenerator) GenerateDailyMenu(ctx context.Context, patientID uuid.UUID, date time.Time, opts domain.GenerationOptions) (*domain.GenerationResult, error) {
	var result *domain.GenerationResult
	err := g.withLock(ctx, patientID, func() error {
		var err error
		result, err = g.inner.GenerateDailyMenu(ctx, patientID, date, opts)
		return err
	})
	return result, err
}

func (g *LockingGenerator) GenerateWeeklyMenu(ctx context.Context, patientID uuid.UUID, startDate time.Time, opts domain.GenerationOptions) (*domain.GenerationResult, error) {
	var result *domain.GenerationResult
	err := g.withLock(ctx, patientID, func() error {
		var err error
		result, err = g.inner.GenerateWeeklyMenu(ctx, patientID, startDate, opts)
		return err
	})
	return result, err
}

func (g *LockingGenerator) withLock(ctx context.Context, patientID uuid.UUID, fn func() error) error {
	release, err := g.lock.Acquire(ctx, patientID)
	if err != nil {
		return err
	}
	defer func() {
		// the run's context may already be cancelled
		if relErr := release(context.Background()); relErr != nil {
			logEvent("generation_lock_release_failed", map[string]interface{}{
				"patient_id": patientID.String(),
				"error":      relErr.Error(),
			})
		}
	}()
	return fn()
}

var _ ports.MenuGenerator = (*LockingGenerator)(nil)

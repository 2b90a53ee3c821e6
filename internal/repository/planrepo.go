package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/sleep-keeper/internal/model"
)

// PlanRepository provides CRUD access to persisted sleep plans.
type PlanRepository interface {
	// Create inserts a new plan; a duplicate id yields errs.ErrAlreadyExists.
	Create(ctx context.Context, p *model.SleepPlan) error
	// Get loads a plan by ID.
	Get(ctx context.Context, id uuid.UUID) (*model.SleepPlan, error)
	// List returns all plans, oldest first.
	List(ctx context.Context) ([]model.SleepPlan, error)
	// Update overwrites a stored plan, including UpdatedAt as given.
	Update(ctx context.Context, p *model.SleepPlan) error
	// Delete removes a plan permanently.
	Delete(ctx context.Context, id uuid.UUID) error
}

package app

import (
	"context"

	"github.com/evanschultz/kanmetrics/internal/domain"
)

// Repository stores work items with their status journals.
type Repository interface {
	SaveWorkItems(context.Context, []*domain.WorkItem) error
	ListWorkItems(context.Context) ([]*domain.WorkItem, error)
	GetWorkItem(context.Context, int) (*domain.WorkItem, error)
}

package storage

import (
	"context"

	"arcevo/internal/model"
)

// Store defines transaction-like persistence operations for search runs.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns every run, most recently started first.
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveGenerations(ctx context.Context, runID string, generations []model.GenerationRecord) error
	GetGenerations(ctx context.Context, runID string) ([]model.GenerationRecord, bool, error)
	SaveIndividuals(ctx context.Context, runID string, individuals []model.IndividualRecord) error
	GetIndividuals(ctx context.Context, runID string) ([]model.IndividualRecord, bool, error)
}

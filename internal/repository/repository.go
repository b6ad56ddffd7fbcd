package repository

import (
	"context"

	"gorm.io/gorm"

	"smartflow/internal/models"
)

// FlowRepository is the store behind the publisher and the read API.
type FlowRepository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	DeleteFlowsByTimeframeTx(ctx context.Context, tx *gorm.DB, timeframe string) (int64, error)
	InsertFlowsTx(ctx context.Context, tx *gorm.DB, items []models.TokenFlow, batchSize int) error
	ListFlows(ctx context.Context, params ListFlowsParams) ([]models.TokenFlow, error)
	CountFlowsByTimeframe(ctx context.Context) (map[string]int64, error)

	SaveRefreshRun(ctx context.Context, run *models.RefreshRun) error
	ListRefreshRuns(ctx context.Context, params ListRefreshRunsParams) ([]models.RefreshRun, error)
	GetLastSuccessfulRun(ctx context.Context) (*models.RefreshRun, error)
}

type ListFlowsParams struct {
	Timeframe string
	Limit     int
	Offset    int
	OrderBy   string
	Asc       *bool
}

type ListRefreshRunsParams struct {
	Limit  int
	Offset int
	Status *string
}

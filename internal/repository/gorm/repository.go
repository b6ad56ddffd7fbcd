package gormrepository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"smartflow/internal/models"
	"smartflow/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ repository.FlowRepository = (*Store)(nil)

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- token flows -------------------------------------------------------------

func (s *Store) DeleteFlowsByTimeframeTx(ctx context.Context, tx *gorm.DB, timeframe string) (int64, error) {
	timeframe = strings.TrimSpace(timeframe)
	if timeframe == "" {
		return 0, errors.New("timeframe is required")
	}
	res := tx.WithContext(ctx).Where("timeframe = ?", timeframe).Delete(&models.TokenFlow{})
	return res.RowsAffected, res.Error
}

func (s *Store) InsertFlowsTx(ctx context.Context, tx *gorm.DB, items []models.TokenFlow, batchSize int) error {
	return createInBatches(tx.WithContext(ctx), items, batchSize)
}

var flowOrderColumns = map[string]string{
	"net_flows":     "net_flows",
	"inflows":       "inflows",
	"outflows":      "outflows",
	"volume":        "volume",
	"liquidity":     "liquidity",
	"market_cap":    "market_cap",
	"price_change":  "price_change",
	"smart_wallets": "smart_wallets",
}

func (s *Store) ListFlows(ctx context.Context, params repository.ListFlowsParams) ([]models.TokenFlow, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.TokenFlow{})
	if tf := strings.TrimSpace(params.Timeframe); tf != "" {
		query = query.Where("timeframe = ?", tf)
	}
	column, ok := flowOrderColumns[strings.TrimSpace(params.OrderBy)]
	if !ok {
		column = "net_flows"
	}
	query = applyOrder(query, column, params.Asc, "net_flows")
	var items []models.TokenFlow
	if err := query.Order("id asc").
		Limit(normalizeLimit(params.Limit, 50)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountFlowsByTimeframe(ctx context.Context) (map[string]int64, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var rows []struct {
		Timeframe string
		Total     int64
	}
	if err := s.db.WithContext(ctx).
		Model(&models.TokenFlow{}).
		Select("timeframe, COUNT(*) AS total").
		Group("timeframe").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Timeframe] = r.Total
	}
	return out, nil
}

// --- refresh runs ------------------------------------------------------------

func (s *Store) SaveRefreshRun(ctx context.Context, run *models.RefreshRun) error {
	if s == nil || s.db == nil || run == nil {
		return nil
	}
	if strings.TrimSpace(run.RunID) == "" {
		return errors.New("run_id is required")
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "run_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status",
			"finished_at",
			"duration_ms",
			"tokens",
			"row_count",
			"last_error",
			"stats_json",
		}),
	}).Create(run).Error
}

func (s *Store) ListRefreshRuns(ctx context.Context, params repository.ListRefreshRunsParams) ([]models.RefreshRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.RefreshRun{})
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	var items []models.RefreshRun
	if err := query.Order("started_at desc").
		Limit(normalizeLimit(params.Limit, 20)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetLastSuccessfulRun(ctx context.Context) (*models.RefreshRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var run models.RefreshRun
	err := s.db.WithContext(ctx).
		Where("status IN ?", []string{models.RunStatusSucceeded, models.RunStatusPartial}).
		Order("started_at desc").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// --- helpers -----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func createInBatches[T any](db *gorm.DB, items []T, batchSize int) error {
	if len(items) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	for i := 0; i < len(items); i += batchSize {
		end := min(i+batchSize, len(items))
		if err := db.CreateInBatches(items[i:end], batchSize).Error; err != nil {
			return err
		}
	}
	return nil
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

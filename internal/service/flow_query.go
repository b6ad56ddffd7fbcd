package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"smartflow/internal/flow"
	"smartflow/internal/metrics"
	"smartflow/internal/models"
	"smartflow/internal/repository"
)

const (
	DefaultTimeframe = "5min"
	DefaultMaxRows   = 50

	SourceStore    = "store"
	SourceFallback = "fallback"
)

var ErrUnknownTimeframe = errors.New("unknown timeframe")

type FlowQueryService struct {
	Repo            repository.FlowRepository
	Mapping         flow.Mapping
	FallbackEnabled bool
	MaxRows         int
	Metrics         *metrics.Metrics
	Logger          *zap.Logger
	Now             func() time.Time
}

type FlowQuery struct {
	Timeframe string
	Limit     int
}

type FlowPage struct {
	Timeframe string
	Source    string
	Items     []FlowView
	// RefreshedAt is the end of the newest run that published data. Only set
	// for store pages.
	RefreshedAt *time.Time
}

// List returns the stored rows of one timeframe, highest net flow first. When
// the fallback is enabled an empty or failed read is answered with sample rows
// and Source set to SourceFallback.
func (s *FlowQueryService) List(ctx context.Context, q FlowQuery) (FlowPage, error) {
	timeframe := strings.TrimSpace(q.Timeframe)
	if timeframe == "" {
		timeframe = s.defaultTimeframe()
	}
	if _, ok := s.mapping().Lookup(timeframe); !ok {
		return FlowPage{}, fmt.Errorf("%w: %q", ErrUnknownTimeframe, timeframe)
	}
	limit := s.limit(q.Limit)

	items, err := s.Repo.ListFlows(ctx, repository.ListFlowsParams{Timeframe: timeframe, Limit: limit, OrderBy: "net_flows"})
	if err != nil {
		if !s.FallbackEnabled {
			return FlowPage{}, err
		}
		s.logger().Warn("flow query failed, serving fallback", zap.String("timeframe", timeframe), zap.Error(err))
		return s.fallback(timeframe, limit), nil
	}
	if len(items) == 0 && s.FallbackEnabled {
		s.logger().Info("no stored flows, serving fallback", zap.String("timeframe", timeframe))
		return s.fallback(timeframe, limit), nil
	}

	page := FlowPage{Timeframe: timeframe, Source: SourceStore, Items: make([]FlowView, 0, len(items))}
	for _, item := range items {
		page.Items = append(page.Items, viewFromModel(item))
	}
	page.RefreshedAt = s.lastRefreshedAt(ctx)
	return page, nil
}

// RowCounts reports the stored row count of every mapped timeframe. Empty
// buckets report zero.
func (s *FlowQueryService) RowCounts(ctx context.Context) (map[string]int64, error) {
	counts, err := s.Repo.CountFlowsByTimeframe(ctx)
	if err != nil {
		return nil, err
	}
	m := s.mapping()
	out := make(map[string]int64, len(m))
	for _, spec := range m {
		out[spec.Label] = counts[spec.Label]
	}
	return out, nil
}

func (s *FlowQueryService) ListRuns(ctx context.Context, limit int, status string) ([]models.RefreshRun, error) {
	params := repository.ListRefreshRunsParams{Limit: limit}
	if status = strings.TrimSpace(status); status != "" {
		params.Status = &status
	}
	return s.Repo.ListRefreshRuns(ctx, params)
}

func (s *FlowQueryService) Timeframes() flow.Mapping {
	return s.mapping()
}

func (s *FlowQueryService) lastRefreshedAt(ctx context.Context) *time.Time {
	run, err := s.Repo.GetLastSuccessfulRun(ctx)
	if err != nil {
		s.logger().Warn("last refresh lookup failed", zap.Error(err))
		return nil
	}
	if run == nil {
		return nil
	}
	at := run.StartedAt
	if run.FinishedAt != nil {
		at = *run.FinishedAt
	}
	at = at.UTC()
	return &at
}

func (s *FlowQueryService) fallback(timeframe string, limit int) FlowPage {
	s.Metrics.RecordFallback(timeframe)
	rows := flow.SampleRows(timeframe, limit, s.now())
	page := FlowPage{Timeframe: timeframe, Source: SourceFallback, Items: make([]FlowView, 0, len(rows))}
	for _, r := range rows {
		page.Items = append(page.Items, viewFromRow(r))
	}
	return page
}

func (s *FlowQueryService) limit(requested int) int {
	ceiling := s.MaxRows
	if ceiling <= 0 {
		ceiling = DefaultMaxRows
	}
	if requested <= 0 || requested > ceiling {
		return ceiling
	}
	return requested
}

func (s *FlowQueryService) defaultTimeframe() string {
	m := s.mapping()
	if _, ok := m.Lookup(DefaultTimeframe); ok {
		return DefaultTimeframe
	}
	return m[0].Label
}

func (s *FlowQueryService) mapping() flow.Mapping {
	if len(s.Mapping) == 0 {
		return flow.DefaultMapping
	}
	return s.Mapping
}

func (s *FlowQueryService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *FlowQueryService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

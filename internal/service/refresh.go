package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"

	"smartflow/internal/client/dexscreener"
	"smartflow/internal/client/nansen"
	"smartflow/internal/flow"
	"smartflow/internal/metrics"
	"smartflow/internal/models"
	"smartflow/internal/repository"
	"smartflow/internal/stream"
)

const (
	TriggerCron    = "cron"
	TriggerStartup = "startup"
	TriggerManual  = "manual"

	providerNansen      = "nansen"
	providerDexScreener = "dexscreener"
)

type NetflowFetcher interface {
	FetchNetflow(ctx context.Context, req nansen.NetflowRequest) ([]flow.NetflowRecord, []flow.Rejection, error)
}

type MarketFetcher interface {
	FetchMarketData(ctx context.Context, addresses []string, batchSize int) dexscreener.MarketResult
}

type HistoryArchiver interface {
	InsertBulk(ctx context.Context, runID string, rows []flow.TimeframeRow) error
}

type EventBroadcaster interface {
	Broadcast(ev stream.Event)
}

type RefreshOptions struct {
	Chain       string
	PageSize    int
	OrderField  string
	BatchSize   int
	TickTimeout time.Duration
}

// RefreshService runs one fetch, merge, project and publish cycle per call.
type RefreshService struct {
	Netflow   NetflowFetcher
	Market    MarketFetcher
	Publisher *Publisher
	Runs      repository.FlowRepository
	Archive   HistoryArchiver
	Stream    EventBroadcaster
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	Mapping   flow.Mapping
	Options   RefreshOptions
	Now       func() time.Time

	group singleflight.Group
}

type BucketSummary struct {
	Timeframe string `json:"timeframe"`
	Deleted   int64  `json:"deleted"`
	Inserted  int    `json:"inserted"`
	Error     string `json:"error,omitempty"`
}

type RunResult struct {
	RunID         string          `json:"run_id"`
	Trigger       string          `json:"trigger"`
	Status        string          `json:"status"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    time.Time       `json:"finished_at"`
	Tokens        int             `json:"tokens"`
	Rejected      int             `json:"rejected"`
	MarketRecords int             `json:"market_records"`
	ChunkFailures int             `json:"chunk_failures"`
	Rows          int             `json:"rows"`
	Buckets       []BucketSummary `json:"buckets"`
	Error         string          `json:"error,omitempty"`
	Joined        bool            `json:"joined"`
}

// RunOnce runs the pipeline under the tick deadline. A call made while a run
// is in flight waits for that run and returns its result with Joined set.
// Cancelling ctx does not stop the run; only the tick deadline does.
func (s *RefreshService) RunOnce(ctx context.Context, trigger string) (RunResult, error) {
	executed := false
	v, err, _ := s.group.Do("refresh", func() (any, error) {
		executed = true
		return s.run(context.WithoutCancel(ctx), trigger)
	})
	res, _ := v.(RunResult)
	res.Joined = !executed
	return res, err
}

func (s *RefreshService) run(ctx context.Context, trigger string) (RunResult, error) {
	if s.Netflow == nil || s.Market == nil || s.Publisher == nil {
		return RunResult{}, errors.New("refresh service is not fully configured")
	}
	ctx, cancel := context.WithTimeout(ctx, s.tickTimeout())
	defer cancel()

	res := RunResult{RunID: uuid.NewString(), Trigger: trigger, Status: models.RunStatusRunning, StartedAt: s.now()}
	log := s.logger().With(zap.String("run_id", res.RunID), zap.String("trigger", trigger))
	log.Info("refresh started")
	s.saveRun(ctx, log, res, nil)

	netflow, rejected, err := s.Netflow.FetchNetflow(ctx, nansen.NetflowRequest{
		Chains:     []string{s.chain()},
		PerPage:    s.Options.PageSize,
		OrderField: s.Options.OrderField,
	})
	if err != nil {
		s.Metrics.RecordUpstreamError(providerNansen)
		log.Error("netflow fetch failed, tick aborted", append(upstreamFields(err), zap.String("stage", "netflow"))...)
		return s.finish(ctx, log, res, models.RunStatusFailed, nil, err)
	}
	res.Tokens = len(netflow)
	res.Rejected = len(rejected)
	s.Metrics.RecordTokens(len(netflow))
	s.Metrics.RecordRejected(providerNansen, len(rejected))
	logRejections(log, rejected)
	if len(netflow) == 0 {
		log.Warn("netflow returned no tokens, keeping last published data", zap.String("stage", "netflow"))
		return s.finish(ctx, log, res, models.RunStatusSkipped, nil, nil)
	}

	addresses := make([]string, 0, len(netflow))
	for _, r := range netflow {
		addresses = append(addresses, r.Address)
	}
	market := s.Market.FetchMarketData(ctx, addresses, s.Options.BatchSize)
	res.MarketRecords = len(market.Records)
	res.ChunkFailures = len(market.Failures)
	res.Rejected += len(market.Rejected)
	s.Metrics.RecordChunkFailures(len(market.Failures))
	s.Metrics.RecordRejected(providerDexScreener, len(market.Rejected))
	logRejections(log, market.Rejected)
	for _, f := range market.Failures {
		s.Metrics.RecordUpstreamError(providerDexScreener)
		log.Warn("market chunk failed, rows keep zero market fields",
			append(upstreamFields(f.Err), zap.String("stage", "market"), zap.Int("addresses", len(f.Addresses)))...)
	}

	fetchedAt := s.now()
	mapping := s.mapping()
	merged := flow.Merge(netflow, market.Records)
	rows := flow.Project(merged.Tokens(), mapping, fetchedAt)
	buckets := flow.GroupByTimeframe(rows, mapping)
	log.Info("projected",
		zap.String("stage", "project"),
		zap.Int("tokens", merged.Len()),
		zap.Int("timeframes", len(mapping)),
		zap.Int("rows", len(rows)),
	)

	report := s.Publisher.Publish(ctx, buckets)
	res.Rows = report.Inserted()
	for _, b := range report.Buckets {
		sum := BucketSummary{Timeframe: b.Timeframe, Deleted: b.Deleted, Inserted: b.Inserted}
		if b.Err != nil {
			sum.Error = b.Err.Error()
		}
		res.Buckets = append(res.Buckets, sum)
	}

	if s.Archive != nil {
		if err := s.Archive.InsertBulk(ctx, res.RunID, rows); err != nil {
			s.Metrics.RecordArchiveError()
			log.Warn("history archive failed", zap.String("stage", "archive"), zap.Int("rows", len(rows)), zap.Error(err))
		}
	}

	failed := len(report.Failed())
	status := models.RunStatusSucceeded
	switch {
	case failed == len(report.Buckets) && failed > 0:
		status = models.RunStatusFailed
	case failed > 0 || len(market.Failures) > 0:
		status = models.RunStatusPartial
	}
	var runErr error
	if status == models.RunStatusFailed {
		runErr = report.Err()
	}
	return s.finish(ctx, log, res, status, report.Err(), runErr)
}

// finish records the outcome. cause is stored on the run; runErr is returned.
func (s *RefreshService) finish(ctx context.Context, log *zap.Logger, res RunResult, status string, cause, runErr error) (RunResult, error) {
	res.Status = status
	res.FinishedAt = s.now()
	if runErr != nil && cause == nil {
		cause = runErr
	}
	if cause != nil {
		res.Error = cause.Error()
	}
	s.saveRun(ctx, log, res, cause)

	elapsed := res.FinishedAt.Sub(res.StartedAt)
	s.Metrics.RecordRun(res.Trigger, status, elapsed, res.FinishedAt, status == models.RunStatusSucceeded)

	fields := []zap.Field{
		zap.String("status", status),
		zap.Int("tokens", res.Tokens),
		zap.Int("rows", res.Rows),
		zap.Int("chunk_failures", res.ChunkFailures),
		zap.Duration("elapsed", elapsed),
	}
	switch status {
	case models.RunStatusSucceeded:
		log.Info("refresh finished", fields...)
	case models.RunStatusFailed:
		log.Error("refresh finished", append(fields, zap.Error(cause))...)
	default:
		log.Warn("refresh finished", fields...)
	}

	if status == models.RunStatusSucceeded || status == models.RunStatusPartial {
		if s.Stream != nil {
			s.Stream.Broadcast(stream.Event{
				Type:       stream.EventRefresh,
				RunID:      res.RunID,
				Status:     status,
				Timeframes: s.mapping().Labels(),
				Rows:       res.Rows,
				At:         res.FinishedAt,
			})
		}
	}
	return res, runErr
}

func (s *RefreshService) saveRun(ctx context.Context, log *zap.Logger, res RunResult, cause error) {
	if s.Runs == nil {
		return
	}
	run := &models.RefreshRun{
		RunID:     res.RunID,
		Trigger:   res.Trigger,
		Status:    res.Status,
		StartedAt: res.StartedAt,
		Tokens:    res.Tokens,
		RowCount:  res.Rows,
		StatsJSON: runStats(res),
	}
	if !res.FinishedAt.IsZero() {
		finished := res.FinishedAt
		run.FinishedAt = &finished
		run.DurationMS = finished.Sub(res.StartedAt).Milliseconds()
	}
	if cause != nil {
		run.LastError = strPtr(cause.Error())
	}
	// Detached: the tick deadline may already have expired.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.Runs.SaveRefreshRun(saveCtx, run); err != nil {
		log.Warn("save refresh run failed", zap.Error(err))
	}
}

func runStats(res RunResult) datatypes.JSON {
	payload, err := json.Marshal(map[string]any{
		"rejected":       res.Rejected,
		"market_records": res.MarketRecords,
		"chunk_failures": res.ChunkFailures,
		"buckets":        res.Buckets,
	})
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(payload)
}

func upstreamFields(err error) []zap.Field {
	fields := []zap.Field{zap.Error(err)}
	var upErr *flow.UpstreamError
	if errors.As(err, &upErr) {
		fields = append(fields, zap.String("provider", upErr.Provider))
		if upErr.Status != 0 {
			fields = append(fields, zap.Int("http_status", upErr.Status))
		}
	}
	return fields
}

func logRejections(log *zap.Logger, rejected []flow.Rejection) {
	for _, r := range rejected {
		log.Warn("upstream record rejected",
			zap.String("stage", "validate"),
			zap.String("provider", r.Provider),
			zap.String("address", r.Address),
			zap.String("reason", r.Reason),
		)
	}
}

func (s *RefreshService) tickTimeout() time.Duration {
	if s.Options.TickTimeout <= 0 {
		return 60 * time.Second
	}
	return s.Options.TickTimeout
}

func (s *RefreshService) chain() string {
	if s.Options.Chain == "" {
		return flow.ChainSolana
	}
	return s.Options.Chain
}

func (s *RefreshService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *RefreshService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *RefreshService) mapping() flow.Mapping {
	if len(s.Mapping) == 0 {
		return flow.DefaultMapping
	}
	return s.Mapping
}

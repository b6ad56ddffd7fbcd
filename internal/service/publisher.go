package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"smartflow/internal/flow"
	"smartflow/internal/lock"
	"smartflow/internal/metrics"
	"smartflow/internal/repository"
)

const lockKeyPrefix = "token_flows:"

// Publisher replaces the stored row-set of each timeframe bucket.
type Publisher struct {
	Store     repository.FlowRepository
	Locker    lock.Locker
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	LockTTL   time.Duration
	BatchSize int
}

type BucketResult struct {
	Timeframe string `json:"timeframe"`
	Deleted   int64  `json:"deleted"`
	Inserted  int    `json:"inserted"`
	Err       error  `json:"-"`
}

type PublishReport struct {
	Buckets []BucketResult
}

func (r PublishReport) Failed() []BucketResult {
	var out []BucketResult
	for _, b := range r.Buckets {
		if b.Err != nil {
			out = append(out, b)
		}
	}
	return out
}

func (r PublishReport) Inserted() int {
	total := 0
	for _, b := range r.Buckets {
		if b.Err == nil {
			total += b.Inserted
		}
	}
	return total
}

// Err joins every bucket failure, nil when all buckets were replaced.
func (r PublishReport) Err() error {
	var errs []error
	for _, b := range r.Buckets {
		if b.Err != nil {
			errs = append(errs, b.Err)
		}
	}
	return errors.Join(errs...)
}

// Publish replaces each bucket independently. An empty bucket clears the
// timeframe. A failed bucket is reported and the remaining buckets still run.
func (p *Publisher) Publish(ctx context.Context, buckets []flow.Bucket) PublishReport {
	report := PublishReport{Buckets: make([]BucketResult, 0, len(buckets))}
	for _, b := range buckets {
		res := p.publishBucket(ctx, b)
		p.Metrics.RecordBucket(b.Timeframe, res.Inserted, res.Err)
		if res.Err != nil {
			p.logger().Error("publish bucket failed",
				zap.String("timeframe", b.Timeframe),
				zap.Int("rows", len(b.Rows)),
				zap.Error(res.Err),
			)
		}
		report.Buckets = append(report.Buckets, res)
	}
	return report
}

func (p *Publisher) publishBucket(ctx context.Context, b flow.Bucket) BucketResult {
	res := BucketResult{Timeframe: b.Timeframe}
	fail := func(op string, err error) BucketResult {
		res.Err = &flow.PersistenceError{Timeframe: b.Timeframe, Op: op, Rows: len(b.Rows), Err: err}
		return res
	}
	if p.Store == nil {
		return fail("publish", errors.New("store is nil"))
	}

	if p.Locker != nil {
		lease, err := p.Locker.Acquire(ctx, lockKeyPrefix+b.Timeframe, p.lockTTL())
		if err != nil {
			return fail("lock", err)
		}
		defer func() {
			// The tick deadline may already have passed.
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := lease.Release(releaseCtx); err != nil {
				p.logger().Warn("release bucket lock failed", zap.String("timeframe", b.Timeframe), zap.Error(err))
			}
		}()
	}

	items := toModels(b.Rows)
	op := "delete"
	err := p.Store.InTx(ctx, func(tx *gorm.DB) error {
		deleted, err := p.Store.DeleteFlowsByTimeframeTx(ctx, tx, b.Timeframe)
		if err != nil {
			return err
		}
		res.Deleted = deleted
		op = "insert"
		return p.Store.InsertFlowsTx(ctx, tx, items, p.BatchSize)
	})
	if err != nil {
		res.Deleted = 0
		return fail(op, err)
	}
	res.Inserted = len(items)
	return res
}

func (p *Publisher) lockTTL() time.Duration {
	if p.LockTTL <= 0 {
		return time.Minute
	}
	return p.LockTTL
}

func (p *Publisher) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

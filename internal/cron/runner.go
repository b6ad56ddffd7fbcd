package cronrunner

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

// New builds a runner using six-field specs (seconds first). A tick that finds
// the previous run of the same job still going is skipped. Recover must sit
// inside SkipIfStillRunning: the skip guard only frees its slot when the job
// returns normally.
func New(logger *zap.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := zapLogger{l: logger.Named("cron")}
	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.SkipIfStillRunning(cl), cron.Recover(cl)),
		),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

func (r *Runner) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		job(r.baseCtx)
	})
}

func (r *Runner) Entries() []cron.Entry {
	return r.cron.Entries()
}

func (r *Runner) Start() {
	r.logger.Info("cron started", zap.Int("entries", len(r.cron.Entries())))
	r.cron.Start()
}

// Stop waits for running jobs to return.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron stopped")
}

type zapLogger struct {
	l *zap.Logger
}

func (z zapLogger) Info(msg string, keysAndValues ...any) {
	z.l.Sugar().Debugw(msg, keysAndValues...)
}

func (z zapLogger) Error(err error, msg string, keysAndValues ...any) {
	z.l.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}

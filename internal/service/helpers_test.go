package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"smartflow/internal/client/dexscreener"
	"smartflow/internal/client/nansen"
	"smartflow/internal/config"
	"smartflow/internal/db"
	"smartflow/internal/flow"
	"smartflow/internal/models"
	"smartflow/internal/repository"
	gormrepository "smartflow/internal/repository/gorm"
	"smartflow/internal/stream"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *gormrepository.Store {
	t.Helper()
	gdb, err := db.Open(config.DBConfig{
		Provider: db.ProviderSQLite,
		DSN:      "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(gdb))
	t.Cleanup(func() { _ = db.Close(gdb) })
	return gormrepository.New(gdb.Gorm)
}

func listFlows(t *testing.T, repo repository.FlowRepository, tf string) []models.TokenFlow {
	t.Helper()
	items, err := repo.ListFlows(context.Background(), repository.ListFlowsParams{Timeframe: tf, Limit: 500})
	require.NoError(t, err)
	return items
}

func row(tf, addr string, net int64) flow.TimeframeRow {
	n := decimal.NewFromInt(net)
	in, out := flow.SplitFlow(n)
	return flow.TimeframeRow{
		Symbol:    "SYM" + addr,
		Address:   addr,
		Timeframe: tf,
		Inflow:    in,
		Outflow:   out,
		NetFlow:   n,
		Sectors:   []string{"Meme"},
		FetchedAt: testNow,
	}
}

func seed(t *testing.T, p *Publisher, buckets ...flow.Bucket) {
	t.Helper()
	report := p.Publish(context.Background(), buckets)
	require.NoError(t, report.Err())
}

// failingStore fails the delete of one timeframe.
type failingStore struct {
	*gormrepository.Store
	failOn string
}

func (f failingStore) DeleteFlowsByTimeframeTx(ctx context.Context, tx *gorm.DB, timeframe string) (int64, error) {
	if timeframe == f.failOn || f.failOn == "*" {
		return 0, errors.New("disk full")
	}
	return f.Store.DeleteFlowsByTimeframeTx(ctx, tx, timeframe)
}

type brokenRepo struct {
	repository.FlowRepository
}

func (brokenRepo) ListFlows(context.Context, repository.ListFlowsParams) ([]models.TokenFlow, error) {
	return nil, errors.New("connection refused")
}

type fakeNetflow struct {
	records  []flow.NetflowRecord
	rejected []flow.Rejection
	err      error
	release  chan struct{}
	calls    atomic.Int32
	lastReq  nansen.NetflowRequest
}

func (f *fakeNetflow) FetchNetflow(ctx context.Context, req nansen.NetflowRequest) ([]flow.NetflowRecord, []flow.Rejection, error) {
	f.calls.Add(1)
	f.lastReq = req
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, nil, &flow.UpstreamError{Provider: "nansen", Err: ctx.Err()}
		}
	}
	return f.records, f.rejected, f.err
}

type fakeMarket struct {
	result    dexscreener.MarketResult
	addresses []string
}

func (f *fakeMarket) FetchMarketData(_ context.Context, addresses []string, _ int) dexscreener.MarketResult {
	f.addresses = addresses
	return f.result
}

type fakeArchive struct {
	runID string
	rows  int
	err   error
}

func (f *fakeArchive) InsertBulk(_ context.Context, runID string, rows []flow.TimeframeRow) error {
	f.runID = runID
	f.rows = len(rows)
	return f.err
}

type recordingStream struct {
	mu     sync.Mutex
	events []stream.Event
}

func (r *recordingStream) Broadcast(ev stream.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingStream) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartflow/internal/flow"
	"smartflow/internal/metrics"
	"smartflow/internal/models"
)

func TestListReturnsStoredRowsByNetFlow(t *testing.T) {
	store := newStore(t)
	seed(t, &Publisher{Store: store}, flow.Bucket{Timeframe: "5min", Rows: []flow.TimeframeRow{
		row("5min", "a", -10), row("5min", "b", 30), row("5min", "c", 20),
	}})
	q := &FlowQueryService{Repo: store, FallbackEnabled: true}

	page, err := q.List(context.Background(), FlowQuery{})
	require.NoError(t, err)
	assert.Equal(t, "5min", page.Timeframe)
	assert.Equal(t, SourceStore, page.Source)
	require.Len(t, page.Items, 3)
	assert.Equal(t, "b", page.Items[0].TokenAddress)
	assert.Equal(t, "c", page.Items[1].TokenAddress)
	assert.Equal(t, "a", page.Items[2].TokenAddress)
	assert.Equal(t, []string{"Meme"}, page.Items[0].TokenSectors)

	page, err = q.List(context.Background(), FlowQuery{Timeframe: "5min", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
}

func TestListClampsLimit(t *testing.T) {
	store := newStore(t)
	var rows []flow.TimeframeRow
	for i := 0; i < 60; i++ {
		rows = append(rows, row("1h", strings.Repeat("x", i+1), int64(i)))
	}
	seed(t, &Publisher{Store: store}, flow.Bucket{Timeframe: "1h", Rows: rows})

	page, err := (&FlowQueryService{Repo: store}).List(context.Background(), FlowQuery{Timeframe: "1h", Limit: 500})
	require.NoError(t, err)
	assert.Len(t, page.Items, DefaultMaxRows)
}

func TestListFallbackWhenEmpty(t *testing.T) {
	store := newStore(t)
	m := metrics.New("test")

	page, err := (&FlowQueryService{Repo: store, FallbackEnabled: true, Metrics: m}).List(context.Background(), FlowQuery{Timeframe: "24h"})
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, page.Source)
	require.Len(t, page.Items, 10)
	for _, item := range page.Items {
		assert.True(t, strings.HasPrefix(item.TokenAddress, flow.SampleAddressPrefix))
		assert.Equal(t, "24h", item.Timeframe)
	}

	page, err = (&FlowQueryService{Repo: store}).List(context.Background(), FlowQuery{Timeframe: "24h"})
	require.NoError(t, err)
	assert.Equal(t, SourceStore, page.Source)
	assert.Empty(t, page.Items)
}

func TestListStoreErrorHonoursFallbackSetting(t *testing.T) {
	repo := brokenRepo{}

	_, err := (&FlowQueryService{Repo: repo}).List(context.Background(), FlowQuery{Timeframe: "1h"})
	require.Error(t, err)

	page, err := (&FlowQueryService{Repo: repo, FallbackEnabled: true}).List(context.Background(), FlowQuery{Timeframe: "1h", Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, page.Source)
	assert.Len(t, page.Items, 3)
}

func TestListUnknownTimeframe(t *testing.T) {
	q := &FlowQueryService{Repo: brokenRepo{}, FallbackEnabled: true}
	_, err := q.List(context.Background(), FlowQuery{Timeframe: "2h"})
	assert.True(t, errors.Is(err, ErrUnknownTimeframe))

	subset, err := flow.DefaultMapping.Select([]string{"24h", "7d"})
	require.NoError(t, err)
	q.Mapping = subset
	_, err = q.List(context.Background(), FlowQuery{Timeframe: "1h"})
	assert.True(t, errors.Is(err, ErrUnknownTimeframe))
	page, err := q.List(context.Background(), FlowQuery{})
	require.NoError(t, err)
	assert.Equal(t, "24h", page.Timeframe)
}

func TestListReportsLastRefresh(t *testing.T) {
	store := newStore(t)
	seed(t, &Publisher{Store: store}, flow.Bucket{Timeframe: "5min", Rows: []flow.TimeframeRow{row("5min", "a", 1)}})
	q := &FlowQueryService{Repo: store}

	page, err := q.List(context.Background(), FlowQuery{})
	require.NoError(t, err)
	assert.Nil(t, page.RefreshedAt)

	finished := testNow.Add(90 * time.Second)
	for _, run := range []*models.RefreshRun{
		{RunID: "ok", Trigger: TriggerCron, Status: models.RunStatusSucceeded, StartedAt: testNow, FinishedAt: &finished},
		{RunID: "later-failure", Trigger: TriggerCron, Status: models.RunStatusFailed, StartedAt: testNow.Add(time.Hour)},
	} {
		require.NoError(t, store.SaveRefreshRun(context.Background(), run))
	}

	page, err = q.List(context.Background(), FlowQuery{})
	require.NoError(t, err)
	require.NotNil(t, page.RefreshedAt)
	assert.True(t, finished.Equal(*page.RefreshedAt))
}

func TestRowCountsCoverEveryTimeframe(t *testing.T) {
	store := newStore(t)
	seed(t, &Publisher{Store: store},
		flow.Bucket{Timeframe: "5min", Rows: []flow.TimeframeRow{row("5min", "a", 1), row("5min", "b", 2)}},
		flow.Bucket{Timeframe: "7d", Rows: []flow.TimeframeRow{row("7d", "a", 1)}},
	)

	counts, err := (&FlowQueryService{Repo: store}).RowCounts(context.Background())
	require.NoError(t, err)
	assert.Len(t, counts, len(flow.DefaultMapping))
	assert.Equal(t, int64(2), counts["5min"])
	assert.Equal(t, int64(1), counts["7d"])
	assert.Equal(t, int64(0), counts["30d"])
}

package archive

import (
	"context"
	_ "embed"
	"fmt"

	"smartflow/internal/flow"
)

//go:embed schema.sql
var schemaDDL string

// HistoryStore keeps every run's rows; the serving table only ever holds the latest.
type HistoryStore struct {
	conn *Conn
}

func NewHistoryStore(conn *Conn) *HistoryStore {
	return &HistoryStore{conn: conn}
}

func (s *HistoryStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.conn == nil {
		return nil
	}
	if err := s.conn.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("create token_flow_history: %w", err)
	}
	return nil
}

// InsertBulk appends one run's rows in a single batch.
func (s *HistoryStore) InsertBulk(ctx context.Context, runID string, rows []flow.TimeframeRow) error {
	if s == nil || s.conn == nil || len(rows) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO token_flow_history (
			run_id, timeframe, token_address, symbol, price_change, market_cap,
			smart_wallets, volume, liquidity, inflows, outflows, net_flows,
			token_age, token_sectors, fetched_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range rows {
		sectors := r.Sectors
		if sectors == nil {
			sectors = []string{}
		}
		if err := batch.Append(
			runID, r.Timeframe, r.Address, r.Symbol, r.PriceChangePct, r.MarketCap,
			r.SmartWalletCount, r.Volume, r.Liquidity, r.Inflow, r.Outflow, r.NetFlow,
			r.TokenAge, sectors, r.FetchedAt,
		); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// CountByRun returns how many rows a run archived.
func (s *HistoryStore) CountByRun(ctx context.Context, runID string) (uint64, error) {
	var n uint64
	row := s.conn.QueryRow(ctx, `SELECT count() FROM token_flow_history WHERE run_id = ?`, runID)
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

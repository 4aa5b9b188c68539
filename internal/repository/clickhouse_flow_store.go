package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"PerpLens/internal/domain/models"
	domrepo "PerpLens/internal/domain/repository"
	pkgch "PerpLens/pkg/clickhouse"
	applogger "PerpLens/pkg/logger"
)

// CHFlowStore implements FlowStore backed by ClickHouse.
// Timestamps are stored and filtered in epoch milliseconds.
type CHFlowStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHFlowStore(ch *pkgch.Client) *CHFlowStore {
	return &CHFlowStore{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHFlowStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHFlowStore) TradeAggregates(ctx context.Context, symbol string, fromMS, toMS int64) ([]models.TradeAgg, error) {
	start := time.Now()
	const q = `
		SELECT ts, taker_buy_notional, taker_sell_notional
		FROM perplens.perp_trades_agg
		WHERE symbol = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`
	rows, err := s.db.QueryContext(ctx, q, symbol, fromMS, toMS)
	if err != nil {
		s.logErr("trade_aggregates", symbol, err)
		return nil, fmt.Errorf("trade aggregates: %w", err)
	}
	defer rows.Close()

	out := make([]models.TradeAgg, 0, 256)
	for rows.Next() {
		var t models.TradeAgg
		if err := rows.Scan(&t.Timestamp, &t.Buy, &t.Sell); err != nil {
			s.logErr("trade_aggregates_scan", symbol, err)
			return nil, fmt.Errorf("scan trade agg: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.logOK("trade_aggregates", symbol, len(out), time.Since(start))
	return out, nil
}

func (s *CHFlowStore) AssetMetrics(ctx context.Context, symbol string, fromMS, toMS int64) ([]models.AssetMetricPoint, error) {
	start := time.Now()
	const q = `
		SELECT ts, open_interest, funding_rate
		FROM perplens.perp_asset_metrics
		WHERE symbol = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`
	rows, err := s.db.QueryContext(ctx, q, symbol, fromMS, toMS)
	if err != nil {
		s.logErr("asset_metrics", symbol, err)
		return nil, fmt.Errorf("asset metrics: %w", err)
	}
	defer rows.Close()

	out := make([]models.AssetMetricPoint, 0, 256)
	for rows.Next() {
		var p models.AssetMetricPoint
		var funding sql.NullFloat64
		if err := rows.Scan(&p.Timestamp, &p.OpenInterest, &funding); err != nil {
			s.logErr("asset_metrics_scan", symbol, err)
			return nil, fmt.Errorf("scan asset metric: %w", err)
		}
		if funding.Valid {
			f := funding.Float64
			p.FundingRate = &f
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.logOK("asset_metrics", symbol, len(out), time.Since(start))
	return out, nil
}

func (s *CHFlowStore) OrderbookDepth(ctx context.Context, symbol string, fromMS, toMS int64) ([]models.DepthPoint, error) {
	start := time.Now()
	const q = `
		SELECT ts, bid_depth, ask_depth
		FROM perplens.perp_orderbook_snapshots
		WHERE symbol = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`
	rows, err := s.db.QueryContext(ctx, q, symbol, fromMS, toMS)
	if err != nil {
		s.logErr("orderbook_depth", symbol, err)
		return nil, fmt.Errorf("orderbook depth: %w", err)
	}
	defer rows.Close()

	out := make([]models.DepthPoint, 0, 256)
	for rows.Next() {
		var d models.DepthPoint
		if err := rows.Scan(&d.Timestamp, &d.Bid, &d.Ask); err != nil {
			s.logErr("orderbook_depth_scan", symbol, err)
			return nil, fmt.Errorf("scan depth: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.logOK("orderbook_depth", symbol, len(out), time.Since(start))
	return out, nil
}

func (s *CHFlowStore) logErr(op, symbol string, err error) {
	if s.l != nil {
		s.l.Error("clickhouse "+op+" error",
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
	}
}

func (s *CHFlowStore) logOK(op, symbol string, rows int, dur time.Duration) {
	if s.l != nil {
		s.l.Debug("clickhouse "+op+" ok",
			applogger.String("symbol", symbol),
			applogger.Int("rows", rows),
			applogger.Duration("duration_ms", dur),
		)
	}
}

var _ domrepo.FlowStore = (*CHFlowStore)(nil)

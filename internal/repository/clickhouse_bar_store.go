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

// CHBarStore implements BarStore backed by ClickHouse.
type CHBarStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHBarStore(ch *pkgch.Client) *CHBarStore {
	return &CHBarStore{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHBarStore) SetLogger(l *applogger.Logger) { s.l = l }

// LatestBars returns up to limit bars with bucket <= asOf, ascending.
// The as-of bound is what keeps historical classification replayable.
func (s *CHBarStore) LatestBars(ctx context.Context, symbol string, tf domrepo.Timeframe, limit int, asOf time.Time) ([]models.PriceBar, error) {
	start := time.Now()
	const q = `
		SELECT bucket, symbol, timeframe, open, high, low, close, volume
		FROM perplens.perp_klines
		WHERE symbol = ? AND timeframe = ? AND bucket <= ?
		ORDER BY bucket DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, q, symbol, string(tf), asOf, limit)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse latest_bars query error",
				applogger.String("symbol", symbol),
				applogger.String("tf", string(tf)),
				applogger.Int("limit", limit),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("latest bars: %w", err)
	}
	defer rows.Close()

	tmp := make([]models.PriceBar, 0, limit)
	for rows.Next() {
		var b models.PriceBar
		if err := rows.Scan(&b.Bucket, &b.Symbol, &b.Timeframe, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse latest_bars scan error",
					applogger.String("symbol", symbol),
					applogger.String("tf", string(tf)),
					applogger.Error(err),
				)
			}
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		tmp = append(tmp, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	if s.l != nil {
		s.l.Debug("clickhouse latest_bars ok",
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Int("rows", len(tmp)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return tmp, nil
}

var _ domrepo.BarStore = (*CHBarStore)(nil)

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"PerpLens/internal/domain/models"
	domrepo "PerpLens/internal/domain/repository"
	pkgch "PerpLens/pkg/clickhouse"
	applogger "PerpLens/pkg/logger"
)

// CHConfigStore keeps threshold profiles in memory for lock-cheap reads and
// writes every update through to ClickHouse. The in-memory map is the source
// of truth while the process runs; ClickHouse restores it across restarts
// (ReplacingMergeTree keyed by id, newest updated_at wins).
type CHConfigStore struct {
	db *sql.DB
	l  *applogger.Logger

	mu      sync.RWMutex
	configs map[int64]models.ThresholdConfig
}

func NewCHConfigStore(ch *pkgch.Client) *CHConfigStore {
	return &CHConfigStore{
		db:      ch.DB(),
		configs: make(map[int64]models.ThresholdConfig),
	}
}

// SetLogger injects a structured logger.
func (s *CHConfigStore) SetLogger(l *applogger.Logger) { s.l = l }

// Load populates the registry from ClickHouse and seeds the default profile
// when the table is empty. Call once at startup before serving reads.
func (s *CHConfigStore) Load(ctx context.Context) error {
	const q = `
		SELECT id, name, is_default, rolling_window,
			   breakout_cvd_z, breakout_oi_z, breakout_price_atr,
			   breakout_taker_high, breakout_taker_low,
			   absorption_cvd_z, absorption_price_atr,
			   trap_cvd_z, trap_oi_z,
			   exhaustion_cvd_z, exhaustion_rsi_high, exhaustion_rsi_low,
			   stop_hunt_range_atr, stop_hunt_close_atr, noise_cvd_z,
			   created_at, updated_at
		FROM perplens.regime_configs FINAL
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("load configs: %w", err)
	}
	defer rows.Close()

	loaded := make(map[int64]models.ThresholdConfig)
	for rows.Next() {
		var c models.ThresholdConfig
		var isDefault uint8
		if err := rows.Scan(
			&c.ID, &c.Name, &isDefault, &c.RollingWindow,
			&c.BreakoutCVD, &c.BreakoutOI, &c.BreakoutPriceATR,
			&c.BreakoutTakerHigh, &c.BreakoutTakerLow,
			&c.AbsorptionCVD, &c.AbsorptionPriceATR,
			&c.TrapCVD, &c.TrapOI,
			&c.ExhaustionCVD, &c.ExhaustionRSIHigh, &c.ExhaustionRSILow,
			&c.StopHuntRangeATR, &c.StopHuntCloseATR, &c.NoiseCVD,
			&c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return fmt.Errorf("scan config: %w", err)
		}
		c.IsDefault = isDefault != 0
		loaded[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows: %w", err)
	}

	if len(loaded) == 0 {
		def := models.DefaultThresholdConfig()
		now := time.Now().UTC()
		def.CreatedAt = now
		def.UpdatedAt = now
		if err := s.persist(ctx, def); err != nil {
			return fmt.Errorf("seed default config: %w", err)
		}
		loaded[def.ID] = def
		if s.l != nil {
			s.l.Info("seeded default regime config", applogger.Int64("id", def.ID))
		}
	}

	s.mu.Lock()
	s.configs = loaded
	s.mu.Unlock()

	if s.l != nil {
		s.l.Info("regime configs loaded", applogger.Int("count", len(loaded)))
	}
	return nil
}

func (s *CHConfigStore) Get(ctx context.Context, id int64) (models.ThresholdConfig, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.configs[id]
	return c, ok, nil
}

func (s *CHConfigStore) Default(ctx context.Context) (models.ThresholdConfig, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.configs {
		if c.IsDefault {
			return c, true, nil
		}
	}
	return models.ThresholdConfig{}, false, nil
}

func (s *CHConfigStore) List(ctx context.Context) ([]models.ThresholdConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ThresholdConfig, 0, len(s.configs))
	for _, c := range s.configs {
		out = append(out, c)
	}
	// stable order for API responses
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Update applies a merge-patch to one config. The swap under the write lock is
// what guarantees readers never see a half-applied patch.
func (s *CHConfigStore) Update(ctx context.Context, id int64, patch models.ThresholdPatch) (models.ThresholdConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.configs[id]
	if !ok {
		return models.ThresholdConfig{}, fmt.Errorf("%w: %d", domrepo.ErrConfigNotFound, id)
	}

	updated := current.Apply(patch)
	updated.UpdatedAt = time.Now().UTC()

	if err := s.persist(ctx, updated); err != nil {
		return models.ThresholdConfig{}, fmt.Errorf("persist config %d: %w", id, err)
	}
	s.configs[id] = updated

	if s.l != nil {
		s.l.Info("regime config updated", applogger.Int64("id", id))
	}
	return updated, nil
}

func (s *CHConfigStore) persist(ctx context.Context, c models.ThresholdConfig) error {
	const q = `
		INSERT INTO perplens.regime_configs (
			id, name, is_default, rolling_window,
			breakout_cvd_z, breakout_oi_z, breakout_price_atr,
			breakout_taker_high, breakout_taker_low,
			absorption_cvd_z, absorption_price_atr,
			trap_cvd_z, trap_oi_z,
			exhaustion_cvd_z, exhaustion_rsi_high, exhaustion_rsi_low,
			stop_hunt_range_atr, stop_hunt_close_atr, noise_cvd_z,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	isDefault := uint8(0)
	if c.IsDefault {
		isDefault = 1
	}
	_, err := s.db.ExecContext(ctx, q,
		c.ID, c.Name, isDefault, c.RollingWindow,
		c.BreakoutCVD, c.BreakoutOI, c.BreakoutPriceATR,
		c.BreakoutTakerHigh, c.BreakoutTakerLow,
		c.AbsorptionCVD, c.AbsorptionPriceATR,
		c.TrapCVD, c.TrapOI,
		c.ExhaustionCVD, c.ExhaustionRSIHigh, c.ExhaustionRSILow,
		c.StopHuntRangeATR, c.StopHuntCloseATR, c.NoiseCVD,
		c.CreatedAt, c.UpdatedAt,
	)
	return err
}

var _ domrepo.ConfigStore = (*CHConfigStore)(nil)

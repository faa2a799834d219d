package setups

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/lookout/internal/database"
	"github.com/aristath/lookout/internal/domain"
)

const setupColumns = `symbol, week, setup_type, entry_low, entry_high, stop,
	stop_method, stop_distance_pct, target_1, target_2, rr, confidence,
	quality_composite, current_price, high_52w, low_52w, sma_20, sma_50,
	sma_200, atr_14, calculated_at`

// Repository persists trade setups in the analysis database.
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a setups repository.
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{db: db, log: log.With().Str("component", "setups_repo").Logger()}
}

// SaveBatch upserts all setups for the week in one transaction.
func (r *Repository) SaveBatch(setups []domain.TradeSetup) error {
	return database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(
			`INSERT INTO trade_setups (` + setupColumns + `)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(symbol, week) DO UPDATE SET
			   setup_type = excluded.setup_type,
			   entry_low = excluded.entry_low,
			   entry_high = excluded.entry_high,
			   stop = excluded.stop,
			   stop_method = excluded.stop_method,
			   stop_distance_pct = excluded.stop_distance_pct,
			   target_1 = excluded.target_1,
			   target_2 = excluded.target_2,
			   rr = excluded.rr,
			   confidence = excluded.confidence,
			   quality_composite = excluded.quality_composite,
			   current_price = excluded.current_price,
			   high_52w = excluded.high_52w,
			   low_52w = excluded.low_52w,
			   sma_20 = excluded.sma_20,
			   sma_50 = excluded.sma_50,
			   sma_200 = excluded.sma_200,
			   atr_14 = excluded.atr_14,
			   calculated_at = excluded.calculated_at`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, s := range setups {
			_, err := stmt.Exec(s.Symbol, string(s.Week), string(s.SetupType),
				s.EntryLow, s.EntryHigh, s.Stop, string(s.StopMethod), s.StopDistancePct,
				s.Target1, s.Target2, s.RR, s.Confidence, s.QualityComposite,
				s.CurrentPrice, s.High52W, s.Low52W, s.SMA20, s.SMA50, s.SMA200,
				s.ATR14, s.CalculatedAt.Format(time.RFC3339))
			if err != nil {
				return fmt.Errorf("failed to upsert trade setup %s: %w", s.Symbol, err)
			}
		}
		return nil
	})
}

// GetByWeek returns all setups for a week ranked by quality composite.
func (r *Repository) GetByWeek(week domain.Week) ([]domain.TradeSetup, error) {
	rows, err := r.db.Query(
		`SELECT `+setupColumns+` FROM trade_setups
		 WHERE week = ?
		 ORDER BY quality_composite DESC, symbol`, string(week))
	if err != nil {
		return nil, fmt.Errorf("failed to query trade setups: %w", err)
	}
	defer rows.Close()
	return scanSetups(rows)
}

// GetBySymbol returns a symbol's setup for a week, or (nil, nil) when absent.
func (r *Repository) GetBySymbol(symbol string, week domain.Week) (*domain.TradeSetup, error) {
	rows, err := r.db.Query(
		`SELECT `+setupColumns+` FROM trade_setups WHERE symbol = ? AND week = ?`,
		symbol, string(week))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	setups, err := scanSetups(rows)
	if err != nil {
		return nil, err
	}
	if len(setups) == 0 {
		return nil, nil
	}
	return &setups[0], nil
}

func scanSetups(rows *sql.Rows) ([]domain.TradeSetup, error) {
	var setups []domain.TradeSetup
	for rows.Next() {
		var s domain.TradeSetup
		var week, setupType, stopMethod, calculatedAt string

		err := rows.Scan(&s.Symbol, &week, &setupType, &s.EntryLow, &s.EntryHigh,
			&s.Stop, &stopMethod, &s.StopDistancePct, &s.Target1, &s.Target2,
			&s.RR, &s.Confidence, &s.QualityComposite, &s.CurrentPrice,
			&s.High52W, &s.Low52W, &s.SMA20, &s.SMA50, &s.SMA200, &s.ATR14,
			&calculatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade setup: %w", err)
		}

		s.Week = domain.Week(week)
		s.SetupType = domain.SetupType(setupType)
		s.StopMethod = domain.StopMethod(stopMethod)
		s.CalculatedAt, _ = time.Parse(time.RFC3339, calculatedAt)
		setups = append(setups, s)
	}
	return setups, rows.Err()
}

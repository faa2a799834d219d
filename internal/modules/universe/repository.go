package universe

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/lookout/internal/database"
	"github.com/aristath/lookout/internal/domain"
)

const stockColumns = `symbol, name, isin, sector, lot_size, tick_size, is_mtf,
	in_nifty_50, in_nifty_100, in_nifty_200, in_nifty_500,
	quality_score, tier, fundamentally_qualified, active`

// StockRepository persists the universe in the universe database.
type StockRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewStockRepository creates a stock repository.
func NewStockRepository(db *database.DB, log zerolog.Logger) *StockRepository {
	return &StockRepository{db: db, log: log.With().Str("component", "stock_repo").Logger()}
}

// UpsertBatch writes all stocks in a single transaction.
func (r *StockRepository) UpsertBatch(stocks []domain.Stock) error {
	return database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(
			`INSERT INTO stocks (` + stockColumns + `, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
			 ON CONFLICT(symbol) DO UPDATE SET
			   name = excluded.name,
			   isin = excluded.isin,
			   lot_size = excluded.lot_size,
			   tick_size = excluded.tick_size,
			   is_mtf = excluded.is_mtf,
			   in_nifty_50 = excluded.in_nifty_50,
			   in_nifty_100 = excluded.in_nifty_100,
			   in_nifty_200 = excluded.in_nifty_200,
			   in_nifty_500 = excluded.in_nifty_500,
			   quality_score = excluded.quality_score,
			   tier = excluded.tier,
			   active = 1,
			   updated_at = datetime('now')`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, s := range stocks {
			_, err := stmt.Exec(s.Symbol, s.Name, s.ISIN, s.Sector, s.LotSize, s.TickSize,
				boolToInt(s.IsMTF), boolToInt(s.InNifty50), boolToInt(s.InNifty100),
				boolToInt(s.InNifty200), boolToInt(s.InNifty500),
				s.QualityScore, s.Tier, boolToInt(s.FundamentallyQualified), boolToInt(s.Active))
			if err != nil {
				return fmt.Errorf("failed to upsert stock %s: %w", s.Symbol, err)
			}
		}
		return nil
	})
}

// DeactivateMissing marks previously-active symbols absent from this run as
// inactive and returns how many were deactivated.
func (r *StockRepository) DeactivateMissing(present map[string]bool) (int, error) {
	symbols, err := r.activeSymbols()
	if err != nil {
		return 0, err
	}

	missing := make([]string, 0)
	for _, symbol := range symbols {
		if !present[symbol] {
			missing = append(missing, symbol)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(missing))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(missing))
	for i, symbol := range missing {
		args[i] = symbol
	}

	_, err = r.db.Exec(
		`UPDATE stocks SET active = 0, updated_at = datetime('now') WHERE symbol IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate missing stocks: %w", err)
	}
	return len(missing), nil
}

func (r *StockRepository) activeSymbols() ([]string, error) {
	rows, err := r.db.Query(`SELECT symbol FROM stocks WHERE active = 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, err
		}
		symbols = append(symbols, symbol)
	}
	return symbols, rows.Err()
}

// GetHighQuality returns active stocks with quality_score >= minScore,
// ordered by score.
func (r *StockRepository) GetHighQuality(minScore float64) ([]domain.Stock, error) {
	rows, err := r.db.Query(
		`SELECT `+stockColumns+` FROM stocks
		 WHERE active = 1 AND quality_score >= ?
		 ORDER BY quality_score DESC, symbol`, minScore)
	if err != nil {
		return nil, fmt.Errorf("failed to query high-quality stocks: %w", err)
	}
	defer rows.Close()
	return scanStocks(rows)
}

// GetBySymbol returns one stock, or (nil, nil) when absent.
func (r *StockRepository) GetBySymbol(symbol string) (*domain.Stock, error) {
	rows, err := r.db.Query(`SELECT `+stockColumns+` FROM stocks WHERE symbol = ?`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stocks, err := scanStocks(rows)
	if err != nil {
		return nil, err
	}
	if len(stocks) == 0 {
		return nil, nil
	}
	return &stocks[0], nil
}

// SetFundamentallyQualified flags a symbol after the fundamentals refresh.
func (r *StockRepository) SetFundamentallyQualified(symbol string, qualified bool) error {
	_, err := r.db.Exec(
		`UPDATE stocks SET fundamentally_qualified = ?, updated_at = datetime('now') WHERE symbol = ?`,
		boolToInt(qualified), symbol)
	return err
}

// SetSector updates the sector label for a symbol.
func (r *StockRepository) SetSector(symbol, sector string) error {
	_, err := r.db.Exec(
		`UPDATE stocks SET sector = ?, updated_at = datetime('now') WHERE symbol = ?`,
		sector, symbol)
	return err
}

func scanStocks(rows *sql.Rows) ([]domain.Stock, error) {
	var stocks []domain.Stock
	for rows.Next() {
		var s domain.Stock
		var isMTF, in50, in100, in200, in500, fundamental, active int
		err := rows.Scan(&s.Symbol, &s.Name, &s.ISIN, &s.Sector, &s.LotSize, &s.TickSize,
			&isMTF, &in50, &in100, &in200, &in500,
			&s.QualityScore, &s.Tier, &fundamental, &active)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock: %w", err)
		}
		s.IsMTF = isMTF == 1
		s.InNifty50 = in50 == 1
		s.InNifty100 = in100 == 1
		s.InNifty200 = in200 == 1
		s.InNifty500 = in500 == 1
		s.FundamentallyQualified = fundamental == 1
		s.Active = active == 1
		stocks = append(stocks, s)
	}
	return stocks, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

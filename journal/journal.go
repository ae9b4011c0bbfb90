// Package journal is the engine's transactional persistence layer:
// trades, orders, equity snapshots, and the append-only event stream,
// all in one SQLite database.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/quantspot/engine/trade"
)

// ErrTradeNotFound is returned by lookups and CloseTrade for an
// unknown trade id.
var ErrTradeNotFound = errors.New("journal: trade not found")

// ErrTradeAlreadyClosed is returned when CloseTrade targets a trade
// that is not OPEN. A trade is closed exactly once.
var ErrTradeAlreadyClosed = errors.New("journal: trade already closed")

// EquitySnapshot is one row of the equity curve, written at least once
// per tick boundary and on every position change.
type EquitySnapshot struct {
	Time             time.Time
	EquityUSD        float64
	CashUSD          float64
	UnrealizedPnLUSD float64
	RealizedTodayUSD float64
	OpenPositions    int
	Meta             string
}

// ExitFill carries the terminal values applied when closing a trade.
type ExitFill struct {
	Price    float64
	PnL      float64
	Fees     float64
	ClosedAt time.Time
	Status   trade.Status // Closed or Canceled
	Notes    string
}

// Journal wraps the SQLite store. All mutating operations are atomic;
// the event seq allocator additionally holds seqMu so that no two
// events ever share a seq and no gaps appear within a run.
type Journal struct {
	db    *sql.DB
	seqMu sync.Mutex
}

// Open opens (creating if needed) the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// SQLite writers must not contend from multiple pooled conns.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// OpenTrade persists a new trade and its orders in one transaction.
func (j *Journal) OpenTrade(t trade.Trade, orders []trade.Order) error {
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO trades
		(id, symbol, side, status, mode, opened_at, closed_at, entry_price, entry_qty,
		 entry_notional_usd, stop_price, take_profit_price, trailing_enabled, trailing_offset,
		 exit_price, realized_pnl_usd, fees_paid_usd, slippage_est_usd, notes)
		VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, NULL, ?, ?)`,
		t.ID, t.Symbol, string(t.Side), string(t.Status), string(t.Mode), t.OpenedAt,
		t.EntryPrice, t.EntryQty, t.EntryNotional, t.StopPrice, t.TakeProfitPrice,
		t.TrailingEnabled, t.TrailingOffset, t.SlippageEst, t.Notes,
	)
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", t.ID, err)
	}

	for _, o := range orders {
		if err := insertOrder(tx, o); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CloseTrade marks an open trade closed (or canceled) with its exit
// economics, atomically. It fails if the trade is unknown or already
// closed.
func (j *Journal) CloseTrade(tradeID string, exit ExitFill) error {
	status := exit.Status
	if status == "" {
		status = trade.Closed
	}

	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var cur string
	err = tx.QueryRow(`SELECT status FROM trades WHERE id = ?`, tradeID).Scan(&cur)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", ErrTradeNotFound, tradeID)
	}
	if err != nil {
		return err
	}
	if cur != string(trade.Open) {
		return fmt.Errorf("%w: %s", ErrTradeAlreadyClosed, tradeID)
	}

	_, err = tx.Exec(`
		UPDATE trades
		SET status = ?, closed_at = ?, exit_price = ?, realized_pnl_usd = ?,
		    fees_paid_usd = ?, notes = CASE WHEN ? != '' THEN ? ELSE notes END
		WHERE id = ?`,
		string(status), exit.ClosedAt, exit.Price, exit.PnL,
		exit.Fees, exit.Notes, exit.Notes, tradeID,
	)
	if err != nil {
		return fmt.Errorf("close trade %s: %w", tradeID, err)
	}
	return tx.Commit()
}

// InsertOrder persists one additional order for an existing trade.
func (j *Journal) InsertOrder(o trade.Order) error {
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := insertOrder(tx, o); err != nil {
		return err
	}
	return tx.Commit()
}

func insertOrder(tx *sql.Tx, o trade.Order) error {
	// Simulated orders carry no key; bind NULL so the UNIQUE constraint
	// only bites on a genuinely repeated live key.
	_, err := tx.Exec(`
		INSERT INTO orders
		(id, trade_id, symbol, side, order_type, qty, price, status,
		 exchange_order_id, idempotency_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.TradeID, o.Symbol, string(o.Side), string(o.Type), o.Qty, o.Price,
		string(o.Status), nullable(o.ExchangeOrderID), nullable(o.IdempotencyKey),
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.ID, err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// UpdateOrderStatus transitions an order and stamps updated_at.
func (j *Journal) UpdateOrderStatus(orderID string, status trade.OrderStatus, exchangeOrderID string, at time.Time) error {
	_, err := j.db.Exec(`
		UPDATE orders
		SET status = ?, updated_at = ?,
		    exchange_order_id = CASE WHEN ? != '' THEN ? ELSE exchange_order_id END
		WHERE id = ?`,
		string(status), at, exchangeOrderID, exchangeOrderID, orderID,
	)
	return err
}

// AppendEquity records one equity curve row.
func (j *Journal) AppendEquity(s EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity_snapshots
		(ts, equity_usd, cash_usd, unrealized_pnl_usd, realized_pnl_today_usd, open_positions, meta)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.Time, s.EquityUSD, s.CashUSD, s.UnrealizedPnLUSD, s.RealizedTodayUSD, s.OpenPositions, s.Meta,
	)
	return err
}

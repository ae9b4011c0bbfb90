package journal

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/quantspot/engine/trade"
)

const tradeColumns = `
	id, symbol, side, status, mode, opened_at, closed_at, entry_price, entry_qty,
	entry_notional_usd, stop_price, take_profit_price, trailing_enabled, trailing_offset,
	exit_price, realized_pnl_usd, fees_paid_usd, slippage_est_usd, notes`

// GetTrade fetches one trade by id.
func (j *Journal) GetTrade(tradeID string) (trade.Trade, error) {
	rows, err := j.db.Query(`SELECT`+tradeColumns+` FROM trades WHERE id = ?`, tradeID)
	if err != nil {
		return trade.Trade{}, err
	}
	defer rows.Close()

	if !rows.Next() {
		return trade.Trade{}, fmt.Errorf("%w: %s", ErrTradeNotFound, tradeID)
	}
	return scanTrade(rows)
}

// OpenTrades returns every trade still OPEN, oldest first. Called at
// startup by the reconciler and on every tick by the symbol loops.
func (j *Journal) OpenTrades() ([]trade.Trade, error) {
	rows, err := j.db.Query(`SELECT`+tradeColumns+` FROM trades WHERE status = ? ORDER BY opened_at ASC`,
		string(trade.Open))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrades(rows)
}

// ClosedTradesOnDay returns the CLOSED trades whose close falls on the
// given local day. Canceled trades do not count toward realized PnL.
// The day filter is applied in Go because SQLite has no timezone table.
func (j *Journal) ClosedTradesOnDay(dayKey string, loc *time.Location) ([]trade.Trade, error) {
	if loc == nil {
		loc = time.UTC
	}
	rows, err := j.db.Query(`SELECT`+tradeColumns+` FROM trades WHERE status = ? AND closed_at IS NOT NULL ORDER BY closed_at ASC`,
		string(trade.Closed))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	all, err := collectTrades(rows)
	if err != nil {
		return nil, err
	}
	var out []trade.Trade
	for _, t := range all {
		if t.ClosedAt.In(loc).Format("2006-01-02") == dayKey {
			out = append(out, t)
		}
	}
	return out, nil
}

// Orders returns every order of a trade in creation order.
func (j *Journal) Orders(tradeID string) ([]trade.Order, error) {
	rows, err := j.db.Query(`
		SELECT id, trade_id, symbol, side, order_type, qty, price, status,
		       exchange_order_id, idempotency_key, created_at, updated_at
		FROM orders WHERE trade_id = ? ORDER BY created_at ASC, id ASC`, tradeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []trade.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// OrderByIdempotencyKey looks up the order persisted under a key, if
// any. The reconciler uses it to map exchange fills back to orders.
func (j *Journal) OrderByIdempotencyKey(key string) (trade.Order, bool, error) {
	rows, err := j.db.Query(`
		SELECT id, trade_id, symbol, side, order_type, qty, price, status,
		       exchange_order_id, idempotency_key, created_at, updated_at
		FROM orders WHERE idempotency_key = ?`, key)
	if err != nil {
		return trade.Order{}, false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return trade.Order{}, false, rows.Err()
	}
	o, err := scanOrder(rows)
	return o, err == nil, err
}

// LatestEquity returns the most recent equity snapshot, if one exists.
func (j *Journal) LatestEquity() (EquitySnapshot, bool, error) {
	row := j.db.QueryRow(`
		SELECT ts, equity_usd, cash_usd, unrealized_pnl_usd, realized_pnl_today_usd, open_positions, COALESCE(meta, '')
		FROM equity_snapshots ORDER BY id DESC LIMIT 1`)

	var s EquitySnapshot
	err := row.Scan(&s.Time, &s.EquityUSD, &s.CashUSD, &s.UnrealizedPnLUSD,
		&s.RealizedTodayUSD, &s.OpenPositions, &s.Meta)
	if err == sql.ErrNoRows {
		return EquitySnapshot{}, false, nil
	}
	if err != nil {
		return EquitySnapshot{}, false, err
	}
	return s, true, nil
}

func collectTrades(rows *sql.Rows) ([]trade.Trade, error) {
	var out []trade.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTrade(rows *sql.Rows) (trade.Trade, error) {
	var (
		t        trade.Trade
		side     string
		status   string
		mode     string
		closedAt sql.NullTime
		trailOff sql.NullFloat64
		exit     sql.NullFloat64
		pnl      sql.NullFloat64
		fees     sql.NullFloat64
		slip     sql.NullFloat64
		notes    sql.NullString
	)
	err := rows.Scan(&t.ID, &t.Symbol, &side, &status, &mode, &t.OpenedAt, &closedAt,
		&t.EntryPrice, &t.EntryQty, &t.EntryNotional, &t.StopPrice, &t.TakeProfitPrice,
		&t.TrailingEnabled, &trailOff, &exit, &pnl, &fees, &slip, &notes)
	if err != nil {
		return trade.Trade{}, err
	}
	t.Side = trade.Side(side)
	t.Status = trade.Status(status)
	t.Mode = trade.Mode(mode)
	if closedAt.Valid {
		t.ClosedAt = closedAt.Time
	}
	t.TrailingOffset = trailOff.Float64
	t.ExitPrice = exit.Float64
	t.RealizedPnL = pnl.Float64
	t.FeesPaid = fees.Float64
	t.SlippageEst = slip.Float64
	t.Notes = notes.String
	return t, nil
}

func scanOrder(rows *sql.Rows) (trade.Order, error) {
	var (
		o      trade.Order
		side   string
		typ    string
		status string
		price  sql.NullFloat64
		exch   sql.NullString
		key    sql.NullString
	)
	err := rows.Scan(&o.ID, &o.TradeID, &o.Symbol, &side, &typ, &o.Qty, &price,
		&status, &exch, &key, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return trade.Order{}, err
	}
	o.Side = trade.OrderSide(side)
	o.Type = trade.OrderType(typ)
	o.Status = trade.OrderStatus(status)
	o.Price = price.Float64
	o.ExchangeOrderID = exch.String
	o.IdempotencyKey = key.String
	return o, nil
}

package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quantspot/engine/event"
	"github.com/quantspot/engine/pkg/id"
)

// AppendEvent persists e, allocating the next seq inside the same
// transaction. Seq is strictly monotonic across the whole stream; the
// UNIQUE constraint backstops the allocator. Implements event.Appender.
func (j *Journal) AppendEvent(e event.Event) (int64, error) {
	j.seqMu.Lock()
	defer j.seqMu.Unlock()

	if e.ID == "" {
		e.ID = id.New()
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	if e.Level == "" {
		e.Level = event.Info
	}

	var payload []byte
	if e.Payload != nil {
		var err error
		payload, err = json.Marshal(e.Payload)
		if err != nil {
			return 0, fmt.Errorf("marshal event payload: %w", err)
		}
	}

	tx, err := j.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRow(`SELECT COALESCE(MAX(seq), 0) + 1 FROM events`).Scan(&seq); err != nil {
		return 0, err
	}

	_, err = tx.Exec(`
		INSERT INTO events (id, seq, ts, level, type, symbol, trade_id, payload, public_safe)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, seq, e.Time, string(e.Level), e.Type, e.Symbol, e.TradeID, string(payload), e.PublicSafe,
	)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return seq, nil
}

// EventsAfter returns up to limit events with seq strictly greater than
// after, in seq order. Subscribers use it to backfill across a dropped
// live tail.
func (j *Journal) EventsAfter(after int64, limit int) ([]event.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.Query(`
		SELECT id, seq, ts, level, type, symbol, trade_id, payload, public_safe
		FROM events WHERE seq > ? ORDER BY seq ASC LIMIT ?`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// EventsByType returns the most recent events of one type, newest first.
func (j *Journal) EventsByType(typ string, limit int) ([]event.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.Query(`
		SELECT id, seq, ts, level, type, symbol, trade_id, payload, public_safe
		FROM events WHERE type = ? ORDER BY seq DESC LIMIT ?`, typ, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LatestEvents returns the tail of the stream in seq order.
func (j *Journal) LatestEvents(limit int) ([]event.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.Query(`
		SELECT id, seq, ts, level, type, symbol, trade_id, payload, public_safe
		FROM events ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out, nil
}

func scanEvent(rows *sql.Rows) (event.Event, error) {
	var (
		e       event.Event
		level   string
		symbol  sql.NullString
		tradeID sql.NullString
		payload sql.NullString
	)
	err := rows.Scan(&e.ID, &e.Seq, &e.Time, &level, &e.Type, &symbol, &tradeID, &payload, &e.PublicSafe)
	if err != nil {
		return event.Event{}, err
	}
	e.Level = event.Level(level)
	e.Symbol = symbol.String
	e.TradeID = tradeID.String
	if payload.Valid && payload.String != "" {
		if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
			return event.Event{}, fmt.Errorf("unmarshal event payload seq %d: %w", e.Seq, err)
		}
	}
	return e, nil
}

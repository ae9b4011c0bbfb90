// Package marketdata provides the engine's market.DataSource
// implementations: a websocket stream cache fed by an exchange feed,
// and a static in-memory source for tests and replays.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quantspot/engine/logger"
	"github.com/quantspot/engine/market"
)

// StreamConfig configures the websocket cache.
type StreamConfig struct {
	URL            string
	StalenessBound time.Duration
	ReconnectDelay time.Duration
	CandleCap      int // candles retained per symbol+timeframe
}

// Stream maintains a rolling candle window and the latest orderbook
// per symbol from a combined websocket feed, and serves reads from
// that cache. Reads never block on the network.
type Stream struct {
	cfg StreamConfig
	log logger.Logger
	now func() time.Time

	mu      sync.RWMutex
	candles map[string][]market.Candle // symbol|timeframe
	books   map[string]bookEntry
}

type bookEntry struct {
	snap market.OrderBookSnapshot
	at   time.Time
}

func NewStream(cfg StreamConfig, log logger.Logger) *Stream {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.CandleCap <= 0 {
		cfg.CandleCap = 500
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Stream{
		cfg:     cfg,
		log:     log,
		now:     time.Now,
		candles: make(map[string][]market.Candle),
		books:   make(map[string]bookEntry),
	}
}

// Run dials the feed and consumes it until ctx is canceled,
// reconnecting after read failures.
func (s *Stream) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.URL, nil)
		if err != nil {
			s.log.Warn("marketdata dial failed", zap.String("url", s.cfg.URL), zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.ReconnectDelay):
			}
			continue
		}

		s.readLoop(ctx, conn)
		conn.Close()
	}
}

func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn("marketdata read failed", zap.Error(err))
			}
			return
		}
		s.Ingest(message)
	}
}

// Wire format of the combined feed.
type wireMsg struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type wireKline struct {
	Symbol    string  `json:"symbol"`
	Timeframe string  `json:"timeframe"`
	OpenTime  int64   `json:"open_time_ms"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

type wireDepth struct {
	Symbol string       `json:"symbol"`
	Bids   [][2]float64 `json:"bids"` // [price, size], best first
	Asks   [][2]float64 `json:"asks"`
}

// Ingest applies one raw feed message to the cache. Exposed so replay
// tooling and tests can drive the cache without a socket.
func (s *Stream) Ingest(message []byte) {
	var msg wireMsg
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}
	switch {
	case hasSuffix(msg.Stream, "@kline"):
		var k wireKline
		if err := json.Unmarshal(msg.Data, &k); err != nil {
			return
		}
		s.upsertCandle(k)
	case hasSuffix(msg.Stream, "@depth"):
		var d wireDepth
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			return
		}
		s.setBook(d)
	}
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

// upsertCandle replaces the in-progress bar or appends a new one,
// keeping the window ascending and bounded.
func (s *Stream) upsertCandle(k wireKline) {
	c := market.Candle{
		Time:   time.UnixMilli(k.OpenTime).UTC(),
		Open:   k.Open,
		High:   k.High,
		Low:    k.Low,
		Close:  k.Close,
		Volume: k.Volume,
	}
	key := k.Symbol + "|" + k.Timeframe

	s.mu.Lock()
	defer s.mu.Unlock()
	window := s.candles[key]
	if n := len(window); n > 0 && window[n-1].Time.Equal(c.Time) {
		window[n-1] = c
	} else if n > 0 && window[n-1].Time.After(c.Time) {
		return // out-of-order bar, drop
	} else {
		window = append(window, c)
	}
	if len(window) > s.cfg.CandleCap {
		window = window[len(window)-s.cfg.CandleCap:]
	}
	s.candles[key] = window
}

func (s *Stream) setBook(d wireDepth) {
	snap := market.OrderBookSnapshot{Symbol: d.Symbol, Time: s.now()}
	for _, b := range d.Bids {
		snap.Bids = append(snap.Bids, market.Level{Price: b[0], Size: b[1]})
	}
	for _, a := range d.Asks {
		snap.Asks = append(snap.Asks, market.Level{Price: a[0], Size: a[1]})
	}
	// Feed order is authoritative, but enforce best-first anyway.
	sort.Slice(snap.Bids, func(i, j int) bool { return snap.Bids[i].Price > snap.Bids[j].Price })
	sort.Slice(snap.Asks, func(i, j int) bool { return snap.Asks[i].Price < snap.Asks[j].Price })

	s.mu.Lock()
	s.books[d.Symbol] = bookEntry{snap: snap, at: snap.Time}
	s.mu.Unlock()
}

func (s *Stream) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]market.Candle, error) {
	s.mu.RLock()
	window := s.candles[symbol+"|"+timeframe]
	s.mu.RUnlock()

	if len(window) == 0 {
		return nil, fmt.Errorf("%w: %s %s", market.ErrNoData, symbol, timeframe)
	}
	last := window[len(window)-1]
	if err := market.CheckFresh(last.Time, s.now(), s.cfg.StalenessBound); err != nil {
		return nil, fmt.Errorf("%s %s: %w", symbol, timeframe, err)
	}
	if limit > 0 && len(window) > limit {
		window = window[len(window)-limit:]
	}
	out := make([]market.Candle, len(window))
	copy(out, window)
	return out, nil
}

func (s *Stream) GetOrderBook(ctx context.Context, symbol string, depth int) (market.OrderBookSnapshot, error) {
	s.mu.RLock()
	entry, ok := s.books[symbol]
	s.mu.RUnlock()

	if !ok {
		return market.OrderBookSnapshot{}, fmt.Errorf("%w: %s orderbook", market.ErrNoData, symbol)
	}
	if err := market.CheckFresh(entry.at, s.now(), s.cfg.StalenessBound); err != nil {
		return market.OrderBookSnapshot{}, fmt.Errorf("%s orderbook: %w", symbol, err)
	}
	snap := entry.snap
	if depth > 0 {
		if len(snap.Bids) > depth {
			snap.Bids = snap.Bids[:depth]
		}
		if len(snap.Asks) > depth {
			snap.Asks = snap.Asks[:depth]
		}
	}
	return snap, nil
}

var _ market.DataSource = (*Stream)(nil)

package marketdata

import (
	"context"
	"fmt"
	"sync"

	"github.com/quantspot/engine/market"
)

// Static serves pre-loaded candles and orderbooks. Used by replays and
// engine tests; never stale by construction.
type Static struct {
	mu      sync.RWMutex
	candles map[string][]market.Candle
	books   map[string]market.OrderBookSnapshot
}

func NewStatic() *Static {
	return &Static{
		candles: make(map[string][]market.Candle),
		books:   make(map[string]market.OrderBookSnapshot),
	}
}

// SetCandles replaces the window for symbol+timeframe.
func (s *Static) SetCandles(symbol, timeframe string, candles []market.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candles[symbol+"|"+timeframe] = append([]market.Candle(nil), candles...)
}

// AppendCandle extends the window by one bar.
func (s *Static) AppendCandle(symbol, timeframe string, c market.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := symbol + "|" + timeframe
	s.candles[key] = append(s.candles[key], c)
}

// SetOrderBook replaces the book for symbol.
func (s *Static) SetOrderBook(symbol string, book market.OrderBookSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[symbol] = book
}

func (s *Static) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]market.Candle, error) {
	s.mu.RLock()
	window := s.candles[symbol+"|"+timeframe]
	s.mu.RUnlock()

	if len(window) == 0 {
		return nil, fmt.Errorf("%w: %s %s", market.ErrNoData, symbol, timeframe)
	}
	if limit > 0 && len(window) > limit {
		window = window[len(window)-limit:]
	}
	out := make([]market.Candle, len(window))
	copy(out, window)
	return out, nil
}

func (s *Static) GetOrderBook(ctx context.Context, symbol string, depth int) (market.OrderBookSnapshot, error) {
	s.mu.RLock()
	book, ok := s.books[symbol]
	s.mu.RUnlock()

	if !ok {
		return market.OrderBookSnapshot{}, fmt.Errorf("%w: %s orderbook", market.ErrNoData, symbol)
	}
	if depth > 0 {
		if len(book.Bids) > depth {
			book.Bids = book.Bids[:depth]
		}
		if len(book.Asks) > depth {
			book.Asks = book.Asks[:depth]
		}
	}
	return book, nil
}

var _ market.DataSource = (*Static)(nil)

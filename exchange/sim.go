package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/quantspot/engine/pkg/id"
	"github.com/quantspot/engine/trade"
)

// Sim is an in-memory Adapter with exchange-side idempotency
// de-duplication. Market orders fill immediately at the configured
// mark price; limit orders rest open until FillOrder or MarkPrice
// crosses them. Fault injection hooks drive the executor's retry and
// duplicate paths in tests.
type Sim struct {
	mu       sync.Mutex
	marks    map[string]float64    // symbol -> mark price
	orders   map[string]OrderState // by exchange order id
	byKey    map[string]string     // idempotency key -> exchange order id
	balances []Balance

	failNext     []error // consumed FIFO by PlaceOrder before any effect
	dupNextPlace bool    // next duplicate-key hit returns a Duplicate error instead of replaying the ack
}

func NewSim() *Sim {
	return &Sim{
		marks:  make(map[string]float64),
		orders: make(map[string]OrderState),
		byKey:  make(map[string]string),
	}
}

// MarkPrice sets the instant fill price for market orders on symbol,
// and fills any resting limit order the new mark crosses.
func (s *Sim) MarkPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks[symbol] = price
	for oid, o := range s.orders {
		if o.Symbol != symbol || o.Status != trade.Placed || o.Type != trade.LimitOrder {
			continue
		}
		crossed := (o.Side == trade.Buy && price <= o.Price) ||
			(o.Side == trade.Sell && price >= o.Price)
		if crossed {
			o.Status = trade.Filled
			o.FillPrice = o.Price
			s.orders[oid] = o
		}
	}
}

// SetBalances replaces the reported balances.
func (s *Sim) SetBalances(b []Balance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances = append([]Balance(nil), b...)
}

// FailNextPlace queues an error returned by the next PlaceOrder call
// before any state changes, as a lost request would behave.
func (s *Sim) FailNextPlace(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = append(s.failNext, err)
}

// DuplicateNextPlace makes the next duplicate-key placement surface a
// Duplicate-classified error rather than silently replaying the ack.
func (s *Sim) DuplicateNextPlace() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dupNextPlace = true
}

// FillOrder force-fills a resting order at price, as the exchange
// would while the engine is down. Used to stage reconciliation states.
func (s *Sim) FillOrder(exchangeOrderID string, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[exchangeOrderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, exchangeOrderID)
	}
	o.Status = trade.Filled
	o.FillPrice = price
	s.orders[exchangeOrderID] = o
	return nil
}

func (s *Sim) PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	if err := ctx.Err(); err != nil {
		return OrderAck{}, NewError(Transient, "place_order", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.failNext) > 0 {
		err := s.failNext[0]
		s.failNext = s.failNext[1:]
		return OrderAck{}, err
	}
	if req.IdempotencyKey == "" {
		return OrderAck{}, NewError(Permanent, "place_order", errors.New("missing idempotency key"))
	}

	// Same key replays the original result; at most one exchange order
	// ever exists per key.
	if oid, ok := s.byKey[req.IdempotencyKey]; ok {
		if s.dupNextPlace {
			s.dupNextPlace = false
			return OrderAck{}, NewError(Duplicate, "place_order",
				fmt.Errorf("idempotency key %s already used", req.IdempotencyKey))
		}
		o := s.orders[oid]
		return ackFor(o), nil
	}

	if req.Qty <= 0 {
		return OrderAck{}, NewError(Permanent, "place_order", fmt.Errorf("invalid qty %v", req.Qty))
	}

	o := OrderState{
		ExchangeOrderID: id.New(),
		IdempotencyKey:  req.IdempotencyKey,
		Symbol:          req.Symbol,
		Side:            req.Side,
		Type:            req.Type,
		Qty:             req.Qty,
		Price:           req.Price,
		Status:          trade.Placed,
	}
	if req.Type == trade.MarketOrder {
		mark, ok := s.marks[req.Symbol]
		if !ok {
			return OrderAck{}, NewError(Transient, "place_order",
				fmt.Errorf("no mark price for %s", req.Symbol))
		}
		o.Status = trade.Filled
		o.FillPrice = mark
	}
	s.orders[o.ExchangeOrderID] = o
	s.byKey[o.IdempotencyKey] = o.ExchangeOrderID
	return ackFor(o), nil
}

func ackFor(o OrderState) OrderAck {
	return OrderAck{
		ExchangeOrderID: o.ExchangeOrderID,
		Status:          o.Status,
		FillPrice:       o.FillPrice,
		FilledQty:       o.Qty,
	}
}

func (s *Sim) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	if err := ctx.Err(); err != nil {
		return NewError(Transient, "cancel_order", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[exchangeOrderID]
	if !ok {
		return NewError(Permanent, "cancel_order",
			fmt.Errorf("%w: %s", ErrOrderNotFound, exchangeOrderID))
	}
	if o.Status == trade.Placed {
		o.Status = trade.OrderCanceled
		s.orders[exchangeOrderID] = o
	}
	return nil
}

func (s *Sim) GetOpenOrders(ctx context.Context, symbol string) ([]OrderState, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewError(Transient, "get_open_orders", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []OrderState
	for _, o := range s.orders {
		if o.Status == trade.Placed && (symbol == "" || o.Symbol == symbol) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *Sim) GetBalances(ctx context.Context) ([]Balance, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewError(Transient, "get_balances", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Balance(nil), s.balances...), nil
}

func (s *Sim) GetOrder(ctx context.Context, idOrKey string) (OrderState, error) {
	if err := ctx.Err(); err != nil {
		return OrderState{}, NewError(Transient, "get_order", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[idOrKey]; ok {
		return o, nil
	}
	if oid, ok := s.byKey[idOrKey]; ok {
		return s.orders[oid], nil
	}
	return OrderState{}, NewError(Permanent, "get_order",
		fmt.Errorf("%w: %s", ErrOrderNotFound, idOrKey))
}

var _ Adapter = (*Sim)(nil)

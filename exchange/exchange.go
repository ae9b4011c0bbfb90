// Package exchange defines the adapter contract the live executor
// speaks, its retry-classified error type, and a simulated in-memory
// exchange used by paper trading and tests.
package exchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/quantspot/engine/trade"
)

// ErrOrderNotFound is returned by GetOrder for an unknown id or key.
var ErrOrderNotFound = errors.New("exchange: order not found")

// Class buckets adapter failures by how the caller must react.
type Class int

const (
	// Transient covers timeouts, 5xx, and rate limits: retry with
	// bounded backoff, then feed the instability counter.
	Transient Class = iota
	// Permanent covers rejections and invalid orders: never retry.
	Permanent
	// Duplicate is an idempotency collision: treat as success and
	// refetch the canonical order state.
	Duplicate
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	case Duplicate:
		return "duplicate"
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// Error is an adapter failure tagged with its retry class.
type Error struct {
	Class Class
	Op    string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("exchange: %s: %s: %v", e.Op, e.Class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a class and the failing operation.
func NewError(class Class, op string, err error) *Error {
	return &Error{Class: class, Op: op, Err: err}
}

// ClassOf extracts the retry class from err. Unclassified errors
// (including context cancellation) report as Transient so callers
// never retry forever on a Permanent failure by mistake.
func ClassOf(err error) Class {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return Transient
}

// OrderRequest is one order submission. IdempotencyKey is mandatory:
// the adapter must de-duplicate retries carrying the same key.
type OrderRequest struct {
	Symbol         string
	Side           trade.OrderSide
	Type           trade.OrderType
	Qty            float64
	Price          float64 // zero for market orders
	IdempotencyKey string
}

// OrderAck is the adapter's answer to a placement.
type OrderAck struct {
	ExchangeOrderID string
	Status          trade.OrderStatus
	FillPrice       float64
	FilledQty       float64
}

// OrderState is the exchange-side view of one order, used by the
// reconciler to converge local state.
type OrderState struct {
	ExchangeOrderID string
	IdempotencyKey  string
	Symbol          string
	Side            trade.OrderSide
	Type            trade.OrderType
	Qty             float64
	Price           float64
	Status          trade.OrderStatus
	FillPrice       float64
}

// Balance of one asset.
type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}

// Adapter is the exchange surface the live executor consumes.
// PlaceOrder must be safe to retry with the same idempotency key and
// yield the same logical result.
type Adapter interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error)
	CancelOrder(ctx context.Context, exchangeOrderID string) error
	GetOpenOrders(ctx context.Context, symbol string) ([]OrderState, error)
	GetBalances(ctx context.Context) ([]Balance, error)
	// GetOrder resolves either an exchange order id or an idempotency
	// key to the canonical order state.
	GetOrder(ctx context.Context, idOrKey string) (OrderState, error)
}

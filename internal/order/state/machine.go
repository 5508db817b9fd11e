// Package state holds the order lifecycle rules shared by ordering and settlement.
package state

import (
	"errors"
	"fmt"

	"github.com/noah-isme/backend-food/internal/store"
)

var (
	// ErrInvalidTransition is returned for any move other than a single forward step.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrNotCancellable is returned when cancelling an order past CONFIRMED.
	ErrNotCancellable = errors.New("order can no longer be cancelled")
)

var forward = map[store.OrderStatus]store.OrderStatus{
	store.OrderStatusPENDING:    store.OrderStatusCONFIRMED,
	store.OrderStatusCONFIRMED:  store.OrderStatusDELIVERING,
	store.OrderStatusDELIVERING: store.OrderStatusDONE,
}

// Next returns the single status that may follow from, if any.
func Next(from store.OrderStatus) (store.OrderStatus, bool) {
	to, ok := forward[from]
	return to, ok
}

// CanTransition reports whether from -> to is a legal forward step.
// Cancellation is handled by CanBeCancelled.
func CanTransition(from, to store.OrderStatus) bool {
	next, ok := forward[from]
	return ok && next == to
}

// CanBeCancelled reports whether an order in status may still be cancelled.
func CanBeCancelled(status store.OrderStatus) bool {
	return status == store.OrderStatusPENDING || status == store.OrderStatusCONFIRMED
}

// Terminal reports whether no further transition is possible.
func Terminal(status store.OrderStatus) bool {
	return status == store.OrderStatusDONE || status == store.OrderStatusCANCELLED
}

// Check returns ErrInvalidTransition wrapped with both statuses when from -> to is illegal.
func Check(from, to store.OrderStatus) error {
	if to == store.OrderStatusCANCELLED {
		if !CanBeCancelled(from) {
			return fmt.Errorf("%w: %s", ErrNotCancellable, from)
		}
		return nil
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Valid reports whether s names a known order status.
func Valid(s store.OrderStatus) bool {
	switch s {
	case store.OrderStatusPENDING, store.OrderStatusCONFIRMED, store.OrderStatusDELIVERING,
		store.OrderStatusDONE, store.OrderStatusCANCELLED:
		return true
	}
	return false
}

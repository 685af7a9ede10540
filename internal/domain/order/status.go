package order

import (
	"fmt"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusNew        Status = "new"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCanceled   Status = "canceled"
	StatusReturned   Status = "returned"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusProcessing, StatusShipped, StatusDelivered, StatusCanceled, StatusReturned:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusDelivered, StatusCanceled, StatusReturned:
		return true
	}
	return false
}

// InvalidTransitionError indicates a status change outside the fulfilment
// state machine.
type InvalidTransitionError struct {
	From, To Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order status transition %s -> %s", e.From, e.To)
}

// transitions is the forward fulfilment path. Canceled and returned are
// reachable from any non-terminal state and are handled separately.
var transitions = map[Status]Status{
	StatusNew:        StatusProcessing,
	StatusProcessing: StatusShipped,
	StatusShipped:    StatusDelivered,
}

// CanTransition reports whether the fulfilment state machine permits
// from -> to.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	if from.Terminal() {
		return false
	}
	if to == StatusCanceled || to == StatusReturned {
		return true
	}
	return transitions[from] == to
}

// Transition validates and applies a status change. With force set, any
// change between distinct valid statuses is allowed; this preserves the
// manual override an operator occasionally needs (mis-clicked cancel,
// carrier-reported delivery rollback) while keeping the default path guarded.
//
// It returns whether the change should populate a notification email draft,
// which happens on the new -> processing transition only.
func Transition(from, to Status, force bool) (notifyDraft bool, err error) {
	if !to.Valid() {
		return false, &InvalidTransitionError{From: from, To: to}
	}
	if !force && !CanTransition(from, to) {
		return false, &InvalidTransitionError{From: from, To: to}
	}
	if force && from == to {
		return false, &InvalidTransitionError{From: from, To: to}
	}
	return from == StatusNew && to == StatusProcessing, nil
}

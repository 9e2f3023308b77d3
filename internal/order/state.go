package order

import (
	"errors"
	"fmt"

	errs "github.com/frahmantamala/settlement/internal"
	"github.com/frahmantamala/settlement/internal/core/datamodel/order"
)

type EventKind string

const (
	EventSucceeded EventKind = "payment_succeeded"
	EventCancelled EventKind = "payment_cancelled"
	EventRefunded  EventKind = "payment_refunded"
)

var EventKinds = []EventKind{EventSucceeded, EventCancelled, EventRefunded}

var Statuses = []order.Status{order.StatusPending, order.StatusPaid, order.StatusCancelled, order.StatusRefunded}

// ErrAlreadyApplied means the order already sits in the state the event leads to.
var ErrAlreadyApplied = errors.New("order already in target state")

var transitions = map[order.Status]map[EventKind]order.Status{
	order.StatusPending: {
		EventSucceeded: order.StatusPaid,
		EventCancelled: order.StatusCancelled,
	},
	order.StatusPaid: {
		EventRefunded: order.StatusRefunded,
	},
}

// Next returns the status an event moves the order to.
func Next(from order.Status, kind EventKind) (order.Status, error) {
	if to, ok := transitions[from][kind]; ok {
		return to, nil
	}
	if target(kind) == from {
		return from, ErrAlreadyApplied
	}
	return from, errs.ErrIllegalTransition.WithMessage(fmt.Sprintf("cannot apply %s to %s order", kind, from))
}

func target(kind EventKind) order.Status {
	switch kind {
	case EventSucceeded:
		return order.StatusPaid
	case EventCancelled:
		return order.StatusCancelled
	case EventRefunded:
		return order.StatusRefunded
	}
	return ""
}

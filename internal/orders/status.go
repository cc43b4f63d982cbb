package orders

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPreparing Status = "PREPARING"
	StatusReady     Status = "READY"
	StatusServed    Status = "SERVED"
	StatusPaid      Status = "PAID"
)

// Actor is who asks for a transition.
type Actor string

const (
	ActorStaff   Actor = "staff"
	ActorPayment Actor = "payment"
)

// Kitchen staff move orders freely among the service states, including
// stepping back after a mistake. Only payment moves an order to PAID, and
// only from SERVED. Nothing leaves PAID.
var staffNext = map[Status]map[Status]bool{
	StatusPending:   {StatusPreparing: true, StatusReady: true, StatusServed: true},
	StatusPreparing: {StatusPending: true, StatusReady: true, StatusServed: true},
	StatusReady:     {StatusPending: true, StatusPreparing: true, StatusServed: true},
	StatusServed:    {StatusPending: true, StatusPreparing: true, StatusReady: true},
	StatusPaid:      {},
}

var paymentNext = map[Status]map[Status]bool{
	StatusServed: {StatusPaid: true},
}

func CanTransition(from, to Status, actor Actor) bool {
	switch actor {
	case ActorStaff:
		return staffNext[from][to]
	case ActorPayment:
		return paymentNext[from][to]
	}
	return false
}

func (s Status) Terminal() bool { return s == StatusPaid }

func (s Status) Valid() bool {
	_, ok := staffNext[s]
	return ok
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidOrderState, s)
	}
	return st, nil
}

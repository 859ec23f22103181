package event

import (
	"fmt"
	"strings"
)

// EventStatus is the delivery outcome reported for an event. Statuses are
// ordered by severity and aggregation keeps the worst one: a single
// Errored copy makes the whole fan-out Errored.
type EventStatus uint8

const (
	// statusPending means no copy has reported yet.
	statusPending EventStatus = iota
	// Delivered: the event reached its destination.
	Delivered
	// Dropped: the event was intentionally discarded (filtered out,
	// shed under overflow, abandoned at shutdown).
	Dropped
	// Errored: delivery failed and may be retried by the source.
	Errored
	// Rejected: the destination refused the event; retrying will not help.
	Rejected
)

// String returns the lowercase status name.
func (s EventStatus) String() string {
	switch s {
	case statusPending:
		return "pending"
	case Delivered:
		return "delivered"
	case Dropped:
		return "dropped"
	case Errored:
		return "errored"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// ParseEventStatus parses a status name as produced by String.
func ParseEventStatus(s string) (EventStatus, error) {
	switch strings.ToLower(s) {
	case "delivered":
		return Delivered, nil
	case "dropped":
		return Dropped, nil
	case "errored":
		return Errored, nil
	case "rejected":
		return Rejected, nil
	default:
		return statusPending, fmt.Errorf("unknown event status %q", s)
	}
}

// Worse returns the more severe of s and o.
func (s EventStatus) Worse(o EventStatus) EventStatus {
	if o > s {
		return o
	}
	return s
}

// IsTerminal reports whether s is a reportable outcome.
func (s EventStatus) IsTerminal() bool {
	return s >= Delivered && s <= Rejected
}

package transfer

import (
	"fmt"
	"strings"

	"github.com/chainsafe/bridge-settlement/pkg/bridge"
)

// Status is the lifecycle state of a transfer.
type Status int

const (
	StatusUnknown Status = iota
	StatusPending
	StatusSigned
	StatusApproved
	StatusExecuting
	StatusCompleted
	StatusFailed
	StatusCancelled
)

var statusNames = map[Status]string{
	StatusPending:   "PENDING",
	StatusSigned:    "SIGNED",
	StatusApproved:  "APPROVED",
	StatusExecuting: "EXECUTING",
	StatusCompleted: "COMPLETED",
	StatusFailed:    "FAILED",
	StatusCancelled: "CANCELLED",
}

// AllStatuses lists every valid status in lifecycle order.
var AllStatuses = []Status{
	StatusPending, StatusSigned, StatusApproved, StatusExecuting,
	StatusCompleted, StatusFailed, StatusCancelled,
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseStatus parses a status name, case-insensitively.
func ParseStatus(s string) (Status, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for st, name := range statusNames {
		if name == upper {
			return st, nil
		}
	}
	return StatusUnknown, fmt.Errorf("unknown transfer status %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Terminal reports whether s is COMPLETED, FAILED or CANCELLED.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Event triggers a transition.
type Event int

const (
	EventQuorumReached Event = iota + 1
	EventApprove
	EventExecute
	EventComplete
	EventCancel
	EventFail
)

var eventNames = map[Event]string{
	EventQuorumReached: "sign",
	EventApprove:       "approve",
	EventExecute:       "execute",
	EventComplete:      "complete",
	EventCancel:        "cancel",
	EventFail:          "fail",
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return "unknown"
}

// transitions is the complete transition table. Anything absent is illegal.
var transitions = map[Status]map[Event]Status{
	StatusPending: {
		EventQuorumReached: StatusSigned,
		EventCancel:        StatusCancelled,
		EventFail:          StatusFailed,
	},
	StatusSigned: {
		EventApprove: StatusApproved,
		EventCancel:  StatusCancelled,
		EventFail:    StatusFailed,
	},
	StatusApproved: {
		EventExecute: StatusExecuting,
		EventFail:    StatusFailed,
	},
	StatusExecuting: {
		EventComplete: StatusCompleted,
		EventFail:     StatusFailed,
	},
}

// Next returns the state reached from `from` on ev, or an ErrInvalidTransition error.
func Next(from Status, ev Event) (Status, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return StatusUnknown, fmt.Errorf("%w: %s from %s", bridge.ErrInvalidTransition, ev, from)
}

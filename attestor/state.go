package attestor

import "fmt"

// State is the position of a run in the attestation cycle.
type State int

const (
	Idle State = iota
	FetchingStatus
	Waiting
	Scanning
	Committing
	AwaitingReceipt
	Done
)

var stateNames = map[State]string{
	Idle:            "idle",
	FetchingStatus:  "fetching_status",
	Waiting:         "waiting",
	Scanning:        "scanning",
	Committing:      "committing",
	AwaitingReceipt: "awaiting_receipt",
	Done:            "done",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Outcome is how a run that did not fail came to an end.
type Outcome int

const (
	// ReachedTip means the chain tip has not passed the next period.
	ReachedTip Outcome = iota
	// AlreadyRegistered means another submitter finalised the period first.
	AlreadyRegistered
	// AlreadyInFlight means an identical submission is still pending.
	AlreadyInFlight
)

func (o Outcome) String() string {
	switch o {
	case ReachedTip:
		return "reached_tip"
	case AlreadyRegistered:
		return "already_registered"
	case AlreadyInFlight:
		return "already_in_flight"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Report summarises a run.
type Report struct {
	Outcome   Outcome
	Submitted int    // periods registered, committed or revealed
	LastEpoch uint64 // index of the last period submitted
}

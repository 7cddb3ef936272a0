package verifier

// State is the position of one request in the submission flow.
type State int

const (
	StateReceived State = iota
	StateNonceFetched
	StateFeeEstimated
	StateSubmitted
	StateIncluded
	StateRejected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateNonceFetched:
		return "nonce_fetched"
	case StateFeeEstimated:
		return "fee_estimated"
	case StateSubmitted:
		return "submitted"
	case StateIncluded:
		return "included"
	case StateRejected:
		return "rejected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateIncluded || s == StateRejected || s == StateFailed
}

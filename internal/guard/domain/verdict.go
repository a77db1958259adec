package domain

import "fmt"

// BlockReason identifies why a request was blocked.
type BlockReason uint8

const (
	// ReasonNone means the request was allowed.
	ReasonNone BlockReason = iota
	// ReasonTrackerCNAME means the request host's canonical name pointed at
	// known tracker infrastructure.
	ReasonTrackerCNAME
	// ReasonPrivateProbe means a non-local origin requested a
	// private-network target (cross-origin LAN probe).
	ReasonPrivateProbe
)

// String returns a stable string representation of the reason.
func (r BlockReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonTrackerCNAME:
		return "tracker_cname"
	case ReasonPrivateProbe:
		return "private_probe"
	default:
		return fmt.Sprintf("BlockReason(%d)", r)
	}
}

// Verdict is the outcome of evaluating one request descriptor.
// Cancel true means the host environment must kill the request.
type Verdict struct {
	Cancel bool
	Reason BlockReason
}

// Allowed returns a pass verdict.
func Allowed() Verdict { return Verdict{} }

// Blocked returns a cancel verdict with the given reason.
func Blocked(reason BlockReason) Verdict { return Verdict{Cancel: true, Reason: reason} }

// IsBlocked is a convenience accessor.
func (v Verdict) IsBlocked() bool { return v.Cancel }

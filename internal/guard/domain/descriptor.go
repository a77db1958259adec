package domain

// NoTabID marks a request with no associated tab (background fetches).
// Such requests may still be blocked but produce no ledger effects.
const NoTabID = -1

// RequestDescriptor describes one intercepted outbound request.
// It is immutable input to the decision engine.
type RequestDescriptor struct {
	// OriginURL is the top-level document's URL. May be absent.
	OriginURL string
	// DocumentURL is the initiating document's URL; may differ from
	// OriginURL for subresources. Optional.
	DocumentURL string
	// RequestURL is the destination of the request.
	RequestURL string
	// ThirdParty reports whether the host environment classified the
	// request as third-party relative to the origin.
	ThirdParty bool
	// TabID identifies the tab the request belongs to, or NoTabID.
	TabID int
}

// HasTab reports whether the descriptor is attributable to a tab.
func (d RequestDescriptor) HasTab() bool { return d.TabID != NoTabID }

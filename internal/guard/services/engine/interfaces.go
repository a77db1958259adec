package engine

import (
	"context"

	"github.com/probegate/probegate/internal/guard/domain"
)

// Allowlist answers exact-host membership for origin exemptions.
type Allowlist interface {
	IsAllowed(host string) bool
}

// TrackerResolver classifies a request hostname as tracker-cloaked via its
// canonical name. Implementations fail open: errors answer false.
type TrackerResolver interface {
	IsTracker(ctx context.Context, hostname string) bool
}

// Ledger receives the per-tab side effects of block verdicts and the
// navigation events that reset them. Record methods take the top-level page
// URL the block occurred on and return the new badge count for the tab.
type Ledger interface {
	RecordBlockedHost(tabID int, host, pageURL string) int
	RecordBlockedPort(tabID int, host, port, pageURL string) int
	Navigated(tabID int, url string)
}

// BadgeSink consumes badge-increment events. The engine only decides that
// the event occurred; rendering is a host concern.
type BadgeSink interface {
	BadgeIncremented(event domain.BadgeEvent)
}

// noopSink discards badge events.
type noopSink struct{}

func (noopSink) BadgeIncremented(domain.BadgeEvent) {}

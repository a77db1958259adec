// Package engine contains the blocking decision engine: the ordered verdict
// protocol evaluated synchronously for every intercepted request, plus the
// ledger side effects a block triggers.
package engine

import (
	"context"

	"github.com/probegate/probegate/internal/guard/common/log"
	"github.com/probegate/probegate/internal/guard/domain"
)

// Engine orchestrates normalization, allowlist exemption, private-network
// classification, and tracker resolution into one allow/block verdict per
// request descriptor. All collaborators are injected via narrow interfaces.
type Engine struct {
	allowlist Allowlist
	tracker   TrackerResolver
	ledger    Ledger
	badges    BadgeSink
	logger    log.Logger
}

// Options configures an Engine. Badges may be nil; Logger falls back to the
// global instance.
type Options struct {
	Allowlist Allowlist
	Tracker   TrackerResolver
	Ledger    Ledger
	Badges    BadgeSink
	Logger    log.Logger
}

// New constructs an Engine bound to the supplied collaborators.
func New(opts Options) *Engine {
	if opts.Badges == nil {
		opts.Badges = noopSink{}
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	return &Engine{
		allowlist: opts.Allowlist,
		tracker:   opts.Tracker,
		ledger:    opts.Ledger,
		badges:    opts.Badges,
		logger:    opts.Logger,
	}
}

// Evaluate produces the verdict for one request descriptor. The caller must
// hold the request until the verdict returns; this is a blocking checkpoint.
//
// Order, short-circuiting at the first match:
//  1. unparseable origin or request URL -> allow, log (fail-open)
//  2. allowlisted origin host -> allow
//  3. public request -> tracker CNAME check; match -> block + blockedHosts
//  4. private request from public origin -> block + blockedPorts
//  5. private request from private origin -> allow (local-to-local)
//  6. otherwise -> allow
//
// Side effects apply only on block and only for requests with a tab.
func (e *Engine) Evaluate(ctx context.Context, req domain.RequestDescriptor) domain.Verdict {
	origin, err := domain.SplitHostPair(req.OriginURL)
	if err != nil {
		e.logger.Error(map[string]any{"origin_url": req.OriginURL, "error": err}, "Unparseable origin URL; allowing request")
		return domain.Allowed()
	}
	request, err := domain.SplitHostPair(req.RequestURL)
	if err != nil {
		e.logger.Error(map[string]any{"request_url": req.RequestURL, "error": err}, "Unparseable request URL; allowing request")
		return domain.Allowed()
	}
	e.warnOnOriginMismatch(req, origin)

	// Allowlist exemption is evaluated against the top-level document's
	// origin host, so an allowlisted page exempts all its own fetches.
	if e.allowlist.IsAllowed(origin.Host) {
		return domain.Allowed()
	}

	isLocal := domain.IsPrivateNetworkTarget(req.RequestURL)
	if !isLocal {
		// Cloaked trackers only matter for public-looking hostnames;
		// local targets are never CNAME-resolved.
		if e.tracker.IsTracker(ctx, request.Hostname) {
			e.recordTrackerBlock(req, request)
			return domain.Blocked(domain.ReasonTrackerCNAME)
		}
		return domain.Allowed()
	}

	if domain.IsPrivateNetworkTarget(req.OriginURL) {
		// Local-to-local traffic (a LAN admin page calling other LAN
		// devices) is not policed.
		e.logger.Debug(map[string]any{
			"origin":  origin.Host,
			"request": request.Host,
		}, "Local origin reaching local target; allowing")
		return domain.Allowed()
	}

	e.recordProbeBlock(req, request)
	return domain.Blocked(domain.ReasonPrivateProbe)
}

// Navigated forwards a tab-navigation-completed event to the ledger so the
// tab's counters and block maps reset on a new top-level URL.
func (e *Engine) Navigated(tabID int, url string) {
	e.ledger.Navigated(tabID, url)
}

// warnOnOriginMismatch logs when a subresource's initiating document differs
// from the top-level origin. Informational only; never changes the verdict.
func (e *Engine) warnOnOriginMismatch(req domain.RequestDescriptor, origin domain.NormalizedHost) {
	if req.DocumentURL == "" {
		return
	}
	doc, err := domain.SplitHostPair(req.DocumentURL)
	if err != nil {
		e.logger.Debug(map[string]any{"document_url": req.DocumentURL, "error": err}, "Unparseable document URL")
		return
	}
	if doc.Hostname != origin.Hostname {
		e.logger.Warn(map[string]any{
			"origin":   origin.Hostname,
			"document": doc.Hostname,
		}, "Subresource origin mismatch")
	}
}

// recordTrackerBlock applies tracker-block side effects: the request host
// joins the tab's blockedHosts and the badge increments with alerted
// semantics. Requests without a tab block silently.
func (e *Engine) recordTrackerBlock(req domain.RequestDescriptor, request domain.NormalizedHost) {
	e.logger.Info(map[string]any{
		"tab":    req.TabID,
		"host":   request.Hostname,
		"reason": domain.ReasonTrackerCNAME.String(),
	}, "Blocking tracker-cloaked request")
	if !req.HasTab() {
		return
	}
	count := e.ledger.RecordBlockedHost(req.TabID, request.Hostname, req.OriginURL)
	e.badges.BadgeIncremented(domain.BadgeEvent{TabID: req.TabID, Count: count, Alerted: true})
}

// recordProbeBlock applies port-scan side effects: the (hostname, port) pair
// joins the tab's blockedPorts and the badge increments.
func (e *Engine) recordProbeBlock(req domain.RequestDescriptor, request domain.NormalizedHost) {
	port := request.EffectivePort()
	e.logger.Info(map[string]any{
		"tab":    req.TabID,
		"host":   request.Hostname,
		"port":   port,
		"reason": domain.ReasonPrivateProbe.String(),
	}, "Blocking private-network probe")
	if !req.HasTab() {
		return
	}
	count := e.ledger.RecordBlockedPort(req.TabID, request.Hostname, port, req.OriginURL)
	e.badges.BadgeIncremented(domain.BadgeEvent{TabID: req.TabID, Count: count, Alerted: true})
}

// Package ledger keeps the per-tab bookkeeping the decision engine updates
// on every block: badge counters, blocked-host lists, and blocked-port maps.
// The external popup layer only ever reads the persisted snapshots.
package ledger

import (
	"strconv"
	"sync"

	"github.com/probegate/probegate/internal/guard/common/clock"
	"github.com/probegate/probegate/internal/guard/common/log"
	"github.com/probegate/probegate/internal/guard/repos/kvstore"
)

// Persisted snapshot keys read by the popup rendering layer.
const (
	keyBlockedHosts = "blocked_hosts"
	keyBlockedPorts = "blocked_ports"
	keyBadges       = "badges"
)

// Entry is a read-only copy of one tab's ledger state.
type Entry struct {
	Counter      int                 `json:"counter"`
	Alerted      bool                `json:"alerted"`
	LastURL      string              `json:"lastURL"`
	BlockedHosts []string            `json:"blockedHosts"`
	BlockedPorts map[string][]string `json:"blockedPorts"`
}

// badgeState is the persisted per-tab badge record.
type badgeState struct {
	Counter int    `json:"counter"`
	Alerted bool   `json:"alerted"`
	LastURL string `json:"lastURL"`
	Updated int64  `json:"updated"`
}

// tabState is the mutable per-tab record. blockedHosts is an ordered set;
// blockedPorts maps request hostname to an ordered set of port strings.
// The two are disjoint concerns: tracker blocks record hosts only,
// port-scan blocks record ports only.
type tabState struct {
	counter      int
	alerted      bool
	lastURL      string
	blockedHosts []string
	blockedPorts map[string][]string
}

// Registry owns the per-tab ledger map. It is an explicitly constructed,
// injectable store so tests can run independent instances.
type Registry struct {
	mu     sync.Mutex
	tabs   map[int]*tabState
	kv     kvstore.Store
	clock  clock.Clock
	logger log.Logger
}

// Options configures a Registry. KV may be nil to disable snapshot
// persistence (tests); Clock and Logger fall back to real/global instances.
type Options struct {
	KV     kvstore.Store
	Clock  clock.Clock
	Logger log.Logger
}

// NewRegistry constructs an empty Registry.
func NewRegistry(opts Options) *Registry {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	return &Registry{
		tabs:   make(map[int]*tabState),
		kv:     opts.KV,
		clock:  opts.Clock,
		logger: opts.Logger,
	}
}

// RecordBlockedHost notes a tracker-CNAME block for tabID, increments the
// badge counter with alerted semantics, and returns the new count. pageURL
// is the top-level URL the block happened on; it seeds the entry's lastURL
// so a navigation event completing that same page does not wipe the entry.
func (r *Registry) RecordBlockedHost(tabID int, host, pageURL string) int {
	r.mu.Lock()
	st := r.ensure(tabID, pageURL)
	st.counter++
	st.alerted = true
	if !containsString(st.blockedHosts, host) {
		st.blockedHosts = append(st.blockedHosts, host)
	}
	count := st.counter
	r.mu.Unlock()
	r.persist()
	return count
}

// RecordBlockedPort notes a local-port-scan block for tabID, keyed by the
// request hostname, and returns the new badge count. pageURL seeds lastURL
// as in RecordBlockedHost.
func (r *Registry) RecordBlockedPort(tabID int, host, port, pageURL string) int {
	r.mu.Lock()
	st := r.ensure(tabID, pageURL)
	st.counter++
	st.alerted = true
	if st.blockedPorts == nil {
		st.blockedPorts = make(map[string][]string)
	}
	if !containsString(st.blockedPorts[host], port) {
		st.blockedPorts[host] = append(st.blockedPorts[host], port)
	}
	count := st.counter
	r.mu.Unlock()
	r.persist()
	return count
}

// Navigated handles a tab-navigation-completed event. When the tab has an
// existing ledger and the top-level URL changed, the whole entry resets:
// counter and alerted zeroed, both block maps cleared, lastURL updated.
// No entry, or an unchanged URL, is a no-op. An entry whose lastURL was
// never seeded adopts the URL without clearing: its blocks belong to the
// page that is completing now.
func (r *Registry) Navigated(tabID int, url string) {
	r.mu.Lock()
	st, ok := r.tabs[tabID]
	if !ok || st.lastURL == url {
		r.mu.Unlock()
		return
	}
	if st.lastURL == "" {
		st.lastURL = url
		r.mu.Unlock()
		r.persist()
		return
	}
	st.counter = 0
	st.alerted = false
	st.lastURL = url
	st.blockedHosts = nil
	st.blockedPorts = nil
	r.mu.Unlock()
	r.persist()
	r.logger.Debug(map[string]any{"tab": tabID, "url": url}, "Tab ledger reset on navigation")
}

// Forget drops a tab's ledger entirely (tab closed).
func (r *Registry) Forget(tabID int) {
	r.mu.Lock()
	_, ok := r.tabs[tabID]
	delete(r.tabs, tabID)
	r.mu.Unlock()
	if ok {
		r.persist()
	}
}

// Snapshot returns a copy of the tab's ledger entry.
func (r *Registry) Snapshot(tabID int) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.tabs[tabID]
	if !ok {
		return Entry{}, false
	}
	return st.copyEntry(), true
}

// Badge returns the current badge counter and alerted flag for a tab.
func (r *Registry) Badge(tabID int) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.tabs[tabID]; ok {
		return st.counter, st.alerted
	}
	return 0, false
}

// ensure returns the tab's state, creating it lazily on first write and
// seeding lastURL when it has none yet. Caller must hold the mutex.
func (r *Registry) ensure(tabID int, pageURL string) *tabState {
	st, ok := r.tabs[tabID]
	if !ok {
		st = &tabState{}
		r.tabs[tabID] = st
	}
	if st.lastURL == "" {
		st.lastURL = pageURL
	}
	return st
}

// persist writes the three popup-facing snapshots. Persistence failures are
// logged and never surface into the verdict path.
func (r *Registry) persist() {
	if r.kv == nil {
		return
	}
	r.mu.Lock()
	hosts := make(map[string][]string, len(r.tabs))
	ports := make(map[string]map[string][]string, len(r.tabs))
	badges := make(map[string]badgeState, len(r.tabs))
	now := r.clock.Now().Unix()
	for id, st := range r.tabs {
		key := strconv.Itoa(id)
		hosts[key] = append([]string(nil), st.blockedHosts...)
		pm := make(map[string][]string, len(st.blockedPorts))
		for h, ps := range st.blockedPorts {
			pm[h] = append([]string(nil), ps...)
		}
		ports[key] = pm
		badges[key] = badgeState{Counter: st.counter, Alerted: st.alerted, LastURL: st.lastURL, Updated: now}
	}
	r.mu.Unlock()

	for key, v := range map[string]any{
		keyBlockedHosts: hosts,
		keyBlockedPorts: ports,
		keyBadges:       badges,
	} {
		if err := kvstore.SetJSON(r.kv, key, v); err != nil {
			r.logger.Warn(map[string]any{"key": key, "error": err}, "Ledger snapshot write failed")
		}
	}
}

func (st *tabState) copyEntry() Entry {
	e := Entry{
		Counter: st.counter,
		Alerted: st.alerted,
		LastURL: st.lastURL,
	}
	e.BlockedHosts = append([]string(nil), st.blockedHosts...)
	e.BlockedPorts = make(map[string][]string, len(st.blockedPorts))
	for h, ps := range st.blockedPorts {
		e.BlockedPorts[h] = append([]string(nil), ps...)
	}
	return e
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

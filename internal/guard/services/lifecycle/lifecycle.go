// Package lifecycle owns the ATTACHED/DETACHED state machine that controls
// whether the decision engine sits on the live request stream, and keeps the
// persisted blocking_enabled flag honest against it.
package lifecycle

import (
	"sync"

	"github.com/probegate/probegate/internal/guard/common/log"
	"github.com/probegate/probegate/internal/guard/domain"
	"github.com/probegate/probegate/internal/guard/repos/kvstore"
)

// keyBlockingEnabled is the persisted flag mirrored by the live attachment.
const keyBlockingEnabled = "blocking_enabled"

// Attacher is the host capability that wires the engine into (and out of)
// the live request stream.
type Attacher interface {
	Attach() error
	Detach() error
	Attached() bool
}

// Lifecycle transitions between ATTACHED and DETACHED. The flag persists
// only after the transition succeeds, so a failed attach never records an
// enabled state that is not live.
type Lifecycle struct {
	mu       sync.Mutex
	attacher Attacher
	kv       kvstore.Store
	logger   log.Logger
}

// New constructs a Lifecycle. Logger falls back to the global instance.
func New(attacher Attacher, kv kvstore.Store, logger log.Logger) *Lifecycle {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Lifecycle{attacher: attacher, kv: kv, logger: logger}
}

// Enable attaches the engine to the request stream and persists
// blocking_enabled=true only on confirmed attach success.
func (l *Lifecycle) Enable() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.attacher.Attach(); err != nil {
		l.logger.Error(map[string]any{"error": err}, "Attach failed; staying detached")
		return err
	}
	l.persist(true)
	l.logger.Info(nil, "Request blocking enabled")
	return nil
}

// Disable detaches the engine and persists blocking_enabled=false only on
// confirmed detach success.
func (l *Lifecycle) Disable() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.attacher.Detach(); err != nil {
		l.logger.Error(map[string]any{"error": err}, "Detach failed; staying attached")
		return err
	}
	l.persist(false)
	l.logger.Info(nil, "Request blocking disabled")
	return nil
}

// Toggle dispatches to Enable or Disable.
func (l *Lifecycle) Toggle(enabled bool) error {
	if enabled {
		return l.Enable()
	}
	return l.Disable()
}

// IsListening compares the persisted flag against the live attachment.
// On mismatch it logs a warning and returns the live state; reality wins
// over whatever the flag claims.
func (l *Lifecycle) IsListening() bool {
	live := l.attacher.Attached()
	persisted := kvstore.GetBool(l.kv, keyBlockingEnabled, true)
	if live != persisted {
		l.logger.Warn(map[string]any{
			"persisted": persisted,
			"live":      live,
			"error":     domain.ErrListenerStateMismatch,
		}, "Listener state mismatch; trusting live attachment")
	}
	return live
}

// Restore replays the persisted flag on startup: an enabled flag attaches
// the engine, a disabled one leaves it detached.
func (l *Lifecycle) Restore() error {
	if kvstore.GetBool(l.kv, keyBlockingEnabled, true) {
		return l.Enable()
	}
	return nil
}

// persist writes the flag; write failure is logged and the live state is
// kept as ground truth.
func (l *Lifecycle) persist(enabled bool) {
	if err := kvstore.SetBool(l.kv, keyBlockingEnabled, enabled); err != nil {
		l.logger.Warn(map[string]any{"enabled": enabled, "error": err}, "Failed to persist blocking_enabled")
	}
}

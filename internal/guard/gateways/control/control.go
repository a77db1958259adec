// Package control consumes messages from the UI layer. Every message's
// origin is validated against the extension's own packaged UI origin before
// anything acts on it.
package control

import (
	"fmt"

	"github.com/probegate/probegate/internal/guard/common/log"
	"github.com/probegate/probegate/internal/guard/domain"
	"github.com/probegate/probegate/internal/guard/repos/kvstore"
)

// keyNotificationsAllowed is the persisted notifications preference.
const keyNotificationsAllowed = "notificationsAllowed"

// Toggler is the lifecycle surface the dispatcher drives.
type Toggler interface {
	Toggle(enabled bool) error
	IsListening() bool
}

// Dispatcher routes validated control messages to the lifecycle and the
// settings store.
type Dispatcher struct {
	uiOrigin string
	toggler  Toggler
	kv       kvstore.Store
	logger   log.Logger
}

// New constructs a Dispatcher bound to the packaged UI origin.
func New(uiOrigin string, toggler Toggler, kv kvstore.Store, logger log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &Dispatcher{uiOrigin: uiOrigin, toggler: toggler, kv: kv, logger: logger}
}

// Dispatch handles one control message and returns the popup state the UI
// renders. Messages from any origin other than the packaged UI origin are
// rejected with ErrUnauthorizedOrigin and logged loudly.
func (d *Dispatcher) Dispatch(msg domain.ControlMessage) (domain.PopupState, error) {
	if msg.Origin != d.uiOrigin {
		d.logger.Error(map[string]any{
			"origin":   msg.Origin,
			"expected": d.uiOrigin,
			"kind":     msg.Kind.String(),
		}, "Control message from unauthorized origin rejected")
		return domain.PopupState{}, domain.ErrUnauthorizedOrigin
	}

	switch msg.Kind {
	case domain.ControlToggleEnabled:
		if err := d.toggler.Toggle(msg.Enabled); err != nil {
			return d.popupState(), err
		}
		return d.popupState(), nil
	case domain.ControlPopupInit:
		return d.popupState(), nil
	default:
		return domain.PopupState{}, fmt.Errorf("unsupported control kind: %s", msg.Kind)
	}
}

// SetNotificationsAllowed persists the notifications preference for the
// settings surface.
func (d *Dispatcher) SetNotificationsAllowed(origin string, allowed bool) error {
	if origin != d.uiOrigin {
		d.logger.Error(map[string]any{"origin": origin}, "Settings write from unauthorized origin rejected")
		return domain.ErrUnauthorizedOrigin
	}
	return kvstore.SetBool(d.kv, keyNotificationsAllowed, allowed)
}

func (d *Dispatcher) popupState() domain.PopupState {
	return domain.PopupState{
		IsListening:          d.toggler.IsListening(),
		NotificationsAllowed: kvstore.GetBool(d.kv, keyNotificationsAllowed, true),
	}
}

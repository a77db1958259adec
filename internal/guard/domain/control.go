package domain

import "fmt"

// ControlKind enumerates control messages accepted from the UI layer.
type ControlKind uint8

const (
	// ControlToggleEnabled enables or disables the listener.
	ControlToggleEnabled ControlKind = iota
	// ControlPopupInit asks for the state the popup renders on open.
	ControlPopupInit
)

// String returns a stable string representation of the control kind.
func (k ControlKind) String() string {
	switch k {
	case ControlToggleEnabled:
		return "toggleEnabled"
	case ControlPopupInit:
		return "popupInit"
	default:
		return fmt.Sprintf("ControlKind(%d)", k)
	}
}

// ControlMessage is one message from the UI layer. Origin is validated
// against the packaged UI origin before the message is acted on.
type ControlMessage struct {
	Origin  string
	Kind    ControlKind
	Enabled bool // payload for ControlToggleEnabled
}

// PopupState is the reply to a ControlPopupInit query.
type PopupState struct {
	IsListening          bool `json:"isListening"`
	NotificationsAllowed bool `json:"notificationsAllowed"`
}

package domain

// BadgeEvent signals that a tab's badge counter was incremented by a block.
// Consumed by an external badge-rendering collaborator; the engine only
// decides that the event occurred.
type BadgeEvent struct {
	TabID   int
	Count   int
	Alerted bool
}

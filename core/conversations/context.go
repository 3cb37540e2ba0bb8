package conversations

// ActiveContextV0 exposes a read-only view of a live chat session.
type ActiveContextV0 interface {
	// History sent with the next query. Ordering: oldest -> newest.
	History() History

	// ResponseLog is what is rendered to the user, including transient
	// system notices. Ordering: oldest -> newest.
	ResponseLog() []Message

	// Persona the session is talking to.
	Persona() string

	// IsLoading reports whether an exchange is in flight.
	IsLoading() bool
}

package notify

import "context"

// Event is one notification: a short summary of the issues needing
// attention plus a deep link to the dashboard.
type Event struct {
	Title string
	Body  string
	URL   string
	// PRCount and FlagCount break the summary down for structured sinks.
	PRCount   int
	FlagCount int
}

// Channel is implemented by each notification provider. Delivery is
// fire-and-forget; a failed Send is logged by the dispatcher and never
// blocks dashboard publication.
type Channel interface {
	Name() string
	IsConfigured() bool
	Send(ctx context.Context, evt Event) error
}

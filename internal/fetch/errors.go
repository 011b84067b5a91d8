package fetch

import "errors"

// Failure classes for a fetch attempt. Callers branch on these with
// errors.Is; the concrete error carries the detail.
var (
	// ErrTransient marks failures that are expected to clear on their own:
	// timeouts, connection resets, 5xx responses.
	ErrTransient = errors.New("transient fetch failure")

	// ErrBlocked marks failures that indicate the source is refusing this
	// client: 403, 429, captcha interstitials. Retrying the same strategy
	// is pointless; the selector falls through to the next one.
	ErrBlocked = errors.New("source blocked request")

	// ErrParse marks a response that arrived but could not be understood.
	ErrParse = errors.New("unparseable listing")
)

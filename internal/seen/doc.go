// Package seen persists the set of courses the monitor has already
// observed and tracks which of them have been included in a delivered
// digest. Dedup and notification state are separate flags so a failed
// digest can be retried without re-discovering its items.
package seen

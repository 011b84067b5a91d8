// Package health derives the daemon's health state from cycle outcomes:
// consecutive failures degrade it, a deeper streak triggers a retrieval
// restart, and fatal failures are terminal.
package health

// Package daemon runs the supervised polling loop: fetch the catalog
// listing, diff it against the seen store, deliver a digest of anything
// new, and fold every outcome into the health monitor.
package daemon

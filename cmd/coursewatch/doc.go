// Command coursewatch is the CLI for the coursewatch daemon: it launches
// and controls the background poller over its Unix socket and provides
// maintenance utilities for the seen-course database and configuration.
package main

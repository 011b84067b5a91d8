// Package ipc implements JSON-RPC daemon control over a Unix domain
// socket: the server side embedded in the daemon process and the client
// used by the CLI.
package ipc

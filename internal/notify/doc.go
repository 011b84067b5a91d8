// Package notify delivers digest and lifecycle emails over SMTP, with a
// noop fallback when email is not configured.
package notify

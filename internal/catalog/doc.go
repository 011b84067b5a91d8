// Package catalog defines the course item model and the parsers that turn
// raw listing payloads (HTML pages or API JSON) into items.
package catalog

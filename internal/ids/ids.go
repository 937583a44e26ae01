// Package ids generates the opaque identifiers furukawad hands out for
// containers, networks, and volumes.
package ids

import "github.com/gofrs/uuid"

// New returns a lowercase hex-with-hyphens 128-bit identifier.
func New() string {
	return uuid.Must(uuid.NewV4()).String()
}

// Short returns the first n characters of id, for log lines and CLI output.
func Short(id string, n int) string {
	if len(id) <= n {
		return id
	}
	return id[:n]
}

// Package idgen mints the opaque, URL-safe, 128-bit-entropy identifiers
// spec §6 requires for match and player ids, backed by github.com/google/uuid
// (grounded on ghostdraft and tibfox-okinoko-in_a_row, both of which pull in
// google/uuid for the same purpose).
package idgen

import "github.com/google/uuid"

// New returns a fresh random UUIDv4 in its canonical hyphenated form: 128
// bits of entropy, opaque, and safe to drop into a URL path segment
// unescaped. Kept in this form (rather than a denser base64 encoding) so it
// round-trips directly through the UUID columns the Postgres repository
// uses for match and player ids.
func New() string {
	return uuid.New().String()
}

// Package idgen generates and validates the client-generatable,
// time-ordered row identifiers this engine uses for every syncable
// entity. Grounded on google/uuid, already a dependency of sibling
// example repos desertthunder-ytx and marcus-td (both generate v4 UUIDs
// for local rows) and present as an indirect dependency of the teacher
// itself; this engine calls the same package's NewV7 instead of New,
// per spec.md §9's "UUIDv7 everywhere" design note.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
)

// New generates a new UUIDv7 string: time-ordered, client-generatable,
// globally unique without coordination.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the OS entropy source is broken; a
		// process in that state cannot safely generate any ID, so a
		// v4 fallback would just hide the real problem.
		panic(fmt.Sprintf("idgen: failed to generate UUIDv7: %v", err))
	}
	return id.String()
}

// Valid reports whether s parses as a UUID and carries the version-7 tag
// bits. Incoming IDs (e.g. from a pull payload or a push request) are
// validated with this before being trusted as primary keys.
func Valid(s string) bool {
	id, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return id.Version() == 7
}

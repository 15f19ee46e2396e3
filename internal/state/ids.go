package state

import (
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewShapeID returns an id for a locally authored shape or progress gesture.
// ULIDs are time-ordered and carry 80 bits of randomness, which is ample for
// one relay's lifetime; the relay does not check uniqueness.
func NewShapeID() string {
	return "d" + strings.ToLower(ulid.Make().String())
}

// NewSessionID returns an id for a relay session.
func NewSessionID() string {
	return uuid.NewString()
}

package chat

import "github.com/google/uuid"

// NewID returns a time-ordered UUIDv7. Ids generated by one process are
// strictly increasing.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

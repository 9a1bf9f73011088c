package crypto

import "github.com/google/uuid"

// NewUUIDv7 generates a time-ordered UUID. The SQLite store uses it for
// producer and task ids so their text form sorts in creation order, matching
// the Postgres identity columns.
func NewUUIDv7() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

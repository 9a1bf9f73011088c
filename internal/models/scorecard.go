package models

import (
	"encoding/json"
	"time"
)

// Scorecard is a producer's scoring record. The record body is opaque to the
// server: it is stored and served byte-for-byte.
type Scorecard struct {
	Sender    string          `json:"sender"`
	Record    json.RawMessage `json:"record"`
	UpdatedAt time.Time       `json:"updated_at"`
}

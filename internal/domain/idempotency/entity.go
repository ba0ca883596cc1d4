package idempotency

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Status of an idempotency key.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Record is one row of idempotency_keys.
type Record struct {
	Key         string       `db:"key"`
	Scope       string       `db:"scope"`
	RequestHash string       `db:"request_hash"`
	Status      Status       `db:"status"`
	Outcome     []byte       `db:"outcome"`
	LockedAt    time.Time    `db:"locked_at"`
	CompletedAt sql.NullTime `db:"completed_at"`
	CreatedAt   time.Time    `db:"created_at"`
}

// Reservation is what CheckAndReserve hands back to the caller.
//
// When Replayed is set the operation already completed and Outcome holds the
// stored result; the caller must not execute again. Otherwise the caller owns
// the key and must Complete or Release it.
type Reservation struct {
	Key       string
	Replayed  bool
	Reclaimed bool
	Outcome   json.RawMessage
}

// Decode unmarshals a replayed outcome into v.
func (r *Reservation) Decode(v interface{}) error {
	if len(r.Outcome) == 0 {
		return nil
	}
	return json.Unmarshal(r.Outcome, v)
}

// Hash fingerprints the parameters of a request. Reusing a key with a
// different fingerprint is a conflict.
func Hash(parts ...interface{}) string {
	raw, err := json.Marshal(parts)
	if err != nil {
		// json.Marshal only fails for unsupported values such as channels;
		// callers pass plain ids and amounts.
		panic("idempotency: unhashable request: " + err.Error())
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

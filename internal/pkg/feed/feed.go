// Package feed is the best-effort notification and transaction-feed side
// channel. Nothing here may fail a money movement: every error is logged and
// dropped.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	subjectPrefix = "ledger.events."
	emitTimeout   = 2 * time.Second
)

// Event is one committed ledger entry as shown in a user's feed.
type Event struct {
	ID          uuid.UUID `json:"id"`
	OperationID uuid.UUID `json:"operation_id"`
	UserID      uuid.UUID `json:"user_id"`
	Currency    string    `json:"currency"`
	Amount      int64     `json:"amount"`
	Reason      string    `json:"reason"`
	Reference   string    `json:"reference,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Publisher is the subset of *nats.Conn the emitter uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Emitter fans events out to the Redis feed cache and the NATS bus. Either
// sink may be nil.
type Emitter struct {
	redis    *redis.Client
	bus      Publisher
	maxItems int64
}

func NewEmitter(rdb *redis.Client, nc *nats.Conn, maxItems int) *Emitter {
	e := &Emitter{redis: rdb, maxItems: int64(maxItems)}
	if nc != nil {
		e.bus = nc
	}
	if e.maxItems <= 0 {
		e.maxItems = 100
	}
	return e
}

// NewEmitterWithPublisher is NewEmitter with an arbitrary bus publisher.
func NewEmitterWithPublisher(rdb *redis.Client, bus Publisher, maxItems int) *Emitter {
	e := NewEmitter(rdb, nil, maxItems)
	e.bus = bus
	return e
}

func feedKey(userID uuid.UUID) string {
	return "feed:" + userID.String()
}

// Emit publishes events. It never returns an error and never blocks longer
// than a short timeout per sink.
func (e *Emitter) Emit(ctx context.Context, events ...Event) {
	if e == nil || len(events) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
	defer cancel()

	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			log.Warn().Err(err).Str("entry_id", ev.ID.String()).Msg("Feed event encode failed")
			continue
		}

		if e.redis != nil {
			key := feedKey(ev.UserID)
			_, err := e.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.LPush(ctx, key, payload)
				p.LTrim(ctx, key, 0, e.maxItems-1)
				return nil
			})
			if err != nil {
				log.Warn().Err(err).Str("user_id", ev.UserID.String()).Msg("Feed cache write failed")
			}
		}

		if e.bus != nil {
			if err := e.bus.Publish(subjectPrefix+ev.Reason, payload); err != nil {
				log.Warn().Err(err).Str("entry_id", ev.ID.String()).Msg("Ledger event publish failed")
			}
		}
	}
}

// Recent returns the latest cached feed items for a user, newest first.
func (e *Emitter) Recent(ctx context.Context, userID uuid.UUID, limit int) ([]Event, error) {
	if e == nil || e.redis == nil {
		return []Event{}, nil
	}
	if limit <= 0 || int64(limit) > e.maxItems {
		limit = int(e.maxItems)
	}

	raw, err := e.redis.LRange(ctx, feedKey(userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}

	events := make([]Event, 0, len(raw))
	for _, item := range raw {
		var ev Event
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			log.Warn().Err(err).Str("user_id", userID.String()).Msg("Skipping malformed feed item")
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

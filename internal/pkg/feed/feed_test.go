package feed

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

type recordingBus struct {
	subjects []string
	err      error
}

func (b *recordingBus) Publish(subject string, data []byte) error {
	b.subjects = append(b.subjects, subject)
	return b.err
}

func TestEmitPublishesPerReason(t *testing.T) {
	bus := &recordingBus{}
	e := NewEmitterWithPublisher(nil, bus, 10)

	e.Emit(context.Background(),
		Event{ID: uuid.New(), UserID: uuid.New(), Reason: "daily_claim", Amount: 50},
		Event{ID: uuid.New(), UserID: uuid.New(), Reason: "referral_bonus", Amount: 1000},
	)

	assert.Equal(t, []string{"ledger.events.daily_claim", "ledger.events.referral_bonus"}, bus.subjects)
}

func TestEmitSwallowsSinkFailures(t *testing.T) {
	bus := &recordingBus{err: errors.New("nats down")}
	// Nothing listens on this port; the Redis write fails fast.
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer rdb.Close()

	e := NewEmitterWithPublisher(rdb, bus, 10)

	assert.NotPanics(t, func() {
		e.Emit(context.Background(), Event{ID: uuid.New(), UserID: uuid.New(), Reason: "withdrawal", Amount: -500})
	})
	assert.Len(t, bus.subjects, 1)
}

func TestRecentWithoutRedis(t *testing.T) {
	var e *Emitter
	events, err := e.Recent(context.Background(), uuid.New(), 5)
	assert.NoError(t, err)
	assert.Empty(t, events)
}

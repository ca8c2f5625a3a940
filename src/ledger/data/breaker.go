package data

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerStore trips after repeated backend failures so a dead database does
// not stall every checkpoint. ErrNoSnapshot is not counted as a failure.
type BreakerStore struct {
	next SnapshotStore
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerStore(name string, next SnapshotStore, lg *zap.Logger) *BreakerStore {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			lg.Warn("snapshot store breaker changed state",
				zap.String("store", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoSnapshot)
		},
	})
	return &BreakerStore{next: next, cb: cb}
}

func (b *BreakerStore) Save(ctx context.Context, blob []byte) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Save(ctx, blob)
	})
	return err
}

func (b *BreakerStore) Load(ctx context.Context) ([]byte, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Load(ctx)
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

// Quarantine forwards to the wrapped store when it supports it.
func (b *BreakerStore) Quarantine(ctx context.Context) (string, error) {
	q, ok := b.next.(Quarantiner)
	if !ok {
		return "", ErrNoQuarantine
	}
	out, err := b.cb.Execute(func() (interface{}, error) {
		return q.Quarantine(ctx)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

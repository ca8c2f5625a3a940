package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stake-plus/govledger/src/ledger/data"
	"github.com/stake-plus/govledger/src/ledger/snapshot"
)

// OnStartup restores the last saved snapshot. A missing or undecodable
// snapshot leaves the ledger empty; only a failing backend is an error.
func (l *Ledger) OnStartup(ctx context.Context) error {
	blob, err := l.snapshots.Load(ctx)
	if errors.Is(err, data.ErrNoSnapshot) {
		l.m.SnapshotOps.WithLabelValues("load", "missing").Inc()
		l.lg.Info("no snapshot found, starting with empty ledger")
		return nil
	}
	if err != nil {
		l.m.SnapshotOps.WithLabelValues("load", "error").Inc()
		return fmt.Errorf("load snapshot: %w", err)
	}

	snap, err := snapshot.Decode(blob)
	if err == nil {
		err = l.store.Restore(snap)
	}
	if err != nil {
		l.m.SnapshotOps.WithLabelValues("load", "corrupt").Inc()
		l.lg.Error("snapshot unusable, starting with empty ledger",
			zap.Int("bytes", len(blob)), zap.Error(err))
		if q, ok := l.snapshots.(data.Quarantiner); ok {
			if moved, qerr := q.Quarantine(ctx); qerr != nil {
				l.lg.Warn("could not quarantine snapshot", zap.Error(qerr))
			} else {
				l.lg.Warn("corrupt snapshot moved aside", zap.String("path", moved))
			}
		}
		return nil
	}

	l.saveMu.Lock()
	l.savedRev = l.store.Revision()
	l.saveMu.Unlock()

	l.m.SnapshotOps.WithLabelValues("load", "ok").Inc()
	l.m.SnapshotBytes.Set(float64(len(blob)))
	l.lg.Info("snapshot restored",
		zap.Int("proposals", len(snap.Proposals)),
		zap.Int("profiles", len(snap.UserProfiles)),
		zap.Int("bytes", len(blob)))
	return nil
}

// OnShutdown writes a final snapshot.
func (l *Ledger) OnShutdown(ctx context.Context) error {
	if err := l.Checkpoint(ctx); err != nil {
		return err
	}
	l.lg.Info("ledger snapshot written on shutdown")
	return nil
}

// Checkpoint encodes and saves the current state unconditionally.
func (l *Ledger) Checkpoint(ctx context.Context) error {
	l.saveMu.Lock()
	defer l.saveMu.Unlock()
	return l.save(ctx)
}

// Dirty reports whether the state changed since the last successful save.
func (l *Ledger) Dirty() bool {
	l.saveMu.Lock()
	defer l.saveMu.Unlock()
	return l.store.Revision() != l.savedRev
}

// RunCheckpoints saves every interval while there are unsaved changes and
// returns when ctx is done.
func (l *Ledger) RunCheckpoints(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.saveMu.Lock()
			if l.store.Revision() != l.savedRev {
				if err := l.save(ctx); err != nil {
					l.lg.Warn("periodic checkpoint failed", zap.Error(err))
				}
			}
			l.saveMu.Unlock()
		}
	}
}

// save must be called with saveMu held. The revision is read before the
// export so a concurrent write is picked up by the next checkpoint.
func (l *Ledger) save(ctx context.Context) error {
	rev := l.store.Revision()
	blob, err := snapshot.Encode(l.store.Export(), l.now())
	if err != nil {
		l.m.SnapshotOps.WithLabelValues("save", "error").Inc()
		return err
	}
	if err := l.snapshots.Save(ctx, blob); err != nil {
		l.m.SnapshotOps.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("save snapshot: %w", err)
	}
	l.savedRev = rev
	l.m.SnapshotOps.WithLabelValues("save", "ok").Inc()
	l.m.SnapshotBytes.Set(float64(len(blob)))
	l.lg.Debug("snapshot saved", zap.Uint64("revision", rev), zap.Int("bytes", len(blob)))
	return nil
}

// Restore replaces the ledger with a decoded snapshot blob, used by the
// admin import route.
func (l *Ledger) Restore(blob []byte) error {
	snap, err := snapshot.Decode(blob)
	if err != nil {
		return err
	}
	if err := l.store.Restore(snap); err != nil {
		return fmt.Errorf("%w: %v", ErrCodec, err)
	}
	l.lg.Info("ledger replaced from import", zap.Int("proposals", len(snap.Proposals)))
	return nil
}

// Export encodes the current state.
func (l *Ledger) Export() ([]byte, error) {
	return snapshot.Encode(l.store.Export(), l.now())
}

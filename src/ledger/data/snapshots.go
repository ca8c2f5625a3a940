package data

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/stake-plus/govledger/src/ledger/types"
)

var (
	ErrNoSnapshot   = errors.New("no snapshot stored")
	ErrNoQuarantine = errors.New("snapshot store cannot quarantine")
)

// SnapshotStore persists the latest encoded ledger snapshot.
type SnapshotStore interface {
	Save(ctx context.Context, blob []byte) error
	// Load returns ErrNoSnapshot when nothing has been saved yet.
	Load(ctx context.Context) ([]byte, error)
}

// Quarantiner is implemented by stores that can move an unreadable snapshot
// out of the way so the next Save does not replace it. The returned string
// names where it went.
type Quarantiner interface {
	Quarantine(ctx context.Context) (string, error)
}

// FileStore keeps the snapshot in a single file, replaced atomically.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Save(_ context.Context, blob []byte) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Quarantine moves an unreadable snapshot aside so the next Save does not
// overwrite it.
func (f *FileStore) Quarantine(_ context.Context) (string, error) {
	dst := fmt.Sprintf("%s.corrupt-%d", f.path, time.Now().Unix())
	if err := os.Rename(f.path, dst); err != nil {
		return "", fmt.Errorf("quarantine snapshot: %w", err)
	}
	return dst, nil
}

func (f *FileStore) Load(_ context.Context) ([]byte, error) {
	blob, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return blob, nil
}

// MySQLStore appends snapshots to the snapshot_records table and prunes all
// but the newest keep rows for its name.
type MySQLStore struct {
	db   *gorm.DB
	name string
	keep int
}

func NewMySQLStore(db *gorm.DB, name string, keep int) (*MySQLStore, error) {
	if keep < 1 {
		keep = 1
	}
	if err := db.AutoMigrate(&types.SnapshotRecord{}); err != nil {
		return nil, fmt.Errorf("migrate snapshot table: %w", err)
	}
	return &MySQLStore{db: db, name: name, keep: keep}, nil
}

func (m *MySQLStore) Save(ctx context.Context, blob []byte) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := types.SnapshotRecord{Name: m.name, Payload: blob, SizeBytes: len(blob)}
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}

		var cutoff types.SnapshotRecord
		err := tx.Select("id").
			Where("name = ?", m.name).
			Order("id desc").
			Offset(m.keep - 1).
			Limit(1).
			Take(&cutoff).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("find snapshot cutoff: %w", err)
		}
		if err := tx.Where("name = ? AND id < ?", m.name, cutoff.ID).Delete(&types.SnapshotRecord{}).Error; err != nil {
			return fmt.Errorf("prune snapshots: %w", err)
		}
		return nil
	})
}

func (m *MySQLStore) Load(ctx context.Context) ([]byte, error) {
	var rec types.SnapshotRecord
	err := m.db.WithContext(ctx).Where("name = ?", m.name).Order("id desc").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return rec.Payload, nil
}

// Quarantine renames the latest record so Load and pruning skip it.
func (m *MySQLStore) Quarantine(ctx context.Context) (string, error) {
	var rec types.SnapshotRecord
	err := m.db.WithContext(ctx).Where("name = ?", m.name).Order("id desc").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNoSnapshot
	}
	if err != nil {
		return "", fmt.Errorf("quarantine snapshot: %w", err)
	}
	moved := fmt.Sprintf("%s.corrupt-%d", m.name, time.Now().Unix())
	if err := m.db.WithContext(ctx).Model(&rec).Update("name", moved).Error; err != nil {
		return "", fmt.Errorf("quarantine snapshot: %w", err)
	}
	return fmt.Sprintf("row %d as %s", rec.ID, moved), nil
}

// RedisStore keeps the snapshot under a single key without expiry.
type RedisStore struct {
	rdb *redis.Client
	key string
}

func NewRedisStore(rdb *redis.Client, key string) *RedisStore {
	return &RedisStore{rdb: rdb, key: key}
}

func (r *RedisStore) Save(ctx context.Context, blob []byte) error {
	if err := r.rdb.Set(ctx, r.key, blob, 0).Err(); err != nil {
		return fmt.Errorf("redis save snapshot: %w", err)
	}
	return nil
}

func (r *RedisStore) Load(ctx context.Context) ([]byte, error) {
	blob, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("redis load snapshot: %w", err)
	}
	return blob, nil
}

// Quarantine renames the key; the copy keeps no expiry.
func (r *RedisStore) Quarantine(ctx context.Context) (string, error) {
	moved := fmt.Sprintf("%s:corrupt-%d", r.key, time.Now().Unix())
	err := r.rdb.Rename(ctx, r.key, moved).Err()
	if err != nil && err.Error() == "ERR no such key" {
		return "", ErrNoSnapshot
	}
	if err != nil {
		return "", fmt.Errorf("quarantine snapshot: %w", err)
	}
	return moved, nil
}

package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-appstate/core"
)

// KVStore is the bun-backed durable key-value store. Writes replace the
// whole value for a key in one statement; there is no partial update
// surface, matching the atomic-composite-write contract of the session
// state.
type KVStore struct {
	db   *bun.DB
	repo repository.Repository[*kvRecord]
	now  func() time.Time
}

type KVStoreOption func(*KVStore)

func WithClock(now func() time.Time) KVStoreOption {
	return func(s *KVStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewKVStore(db *bun.DB, options ...KVStoreOption) (*KVStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*kvRecord](db, kvHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid kv repository wiring: %w", err)
		}
	}
	store := &KVStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(store)
	}
	return store, nil
}

func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: kv store is not configured")
	}
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}

	record := &kvRecord{}
	err = s.db.NewSelect().
		Model(record).
		Where("?TableAlias.key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.ErrKeyNotFound
		}
		return nil, err
	}
	value := make([]byte, len(record.Value))
	copy(value, record.Value)
	return value, nil
}

func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: kv store is not configured")
	}
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	now := s.now()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findKVRecordTx(ctx, tx, key)
		if err != nil {
			return err
		}
		if record == nil {
			record = &kvRecord{
				ID:        uuid.NewString(),
				Key:       key,
				Value:     stored,
				CreatedAt: now,
				UpdatedAt: now,
			}
			_, insertErr := tx.NewInsert().Model(record).Exec(ctx)
			return insertErr
		}
		record.Value = stored
		record.UpdatedAt = now
		_, updateErr := tx.NewUpdate().
			Model(record).
			Column("value", "updated_at").
			WherePK().
			Exec(ctx)
		return updateErr
	})
}

func (s *KVStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: kv store is not configured")
	}
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	_, err = s.db.NewDelete().
		Model((*kvRecord)(nil)).
		Where("?TableAlias.key = ?", key).
		Exec(ctx)
	return err
}

func findKVRecordTx(ctx context.Context, tx bun.Tx, key string) (*kvRecord, error) {
	record := &kvRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("sqlstore: key is required")
	}
	return key, nil
}

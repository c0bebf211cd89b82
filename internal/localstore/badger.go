package localstore

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"qistsync/internal/models"
	"qistsync/pkg/logger"
)

// BadgerStore persists snapshots in an embedded Badger database so local
// data survives process restarts.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the store at path. Returns an error only
// when the medium exists but cannot be opened; callers are expected to
// fall back to Noop in that case.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Read(ctx context.Context, userID string) []models.Installment {
	var snapshot []models.Installment
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snapshot)
		})
	})
	if err != nil {
		// Unreadable local data is treated as absent, never fatal.
		logger.Error(ctx, "Local store read failed", "error", err, "user_id", userID)
		return nil
	}
	return snapshot
}

func (s *BadgerStore) Write(ctx context.Context, userID string, snapshot []models.Installment) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		logger.Error(ctx, "Local store marshal failed", "error", err, "user_id", userID)
		return
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(userID), data)
	}); err != nil {
		logger.Error(ctx, "Local store write failed", "error", err, "user_id", userID)
	}
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

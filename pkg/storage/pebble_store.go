package storage

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/matchcore/pkg/projection"
)

// PebbleStore keeps projection entries in a pebble database. The read-model
// is rebuilt from scratch every run, so Open clears any previous entries.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	if err := db.DeleteRange(orderPrefix, keyUpperBound(orderPrefix), pebble.Sync); err != nil {
		db.Close()
		return nil, fmt.Errorf("reset projection: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

func (s *PebbleStore) Load(orderID uint64) (projection.OrderEntry, bool, error) {
	val, closer, err := s.db.Get(orderKey(orderID))
	if errors.Is(err, pebble.ErrNotFound) {
		return projection.OrderEntry{}, false, nil
	}
	if err != nil {
		return projection.OrderEntry{}, false, fmt.Errorf("failed to get order: %w", err)
	}
	defer closer.Close()

	var e projection.OrderEntry
	if err := decodeJSON(val, &e); err != nil {
		return projection.OrderEntry{}, false, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	return e, true, nil
}

func (s *PebbleStore) Save(e projection.OrderEntry) error {
	data, err := encodeJSON(e)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}
	if err := s.db.Set(orderKey(e.OrderID), data, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// Count walks the order keyspace. Intended for diagnostics and tests.
func (s *PebbleStore) Count() (int, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: orderPrefix,
		UpperBound: keyUpperBound(orderPrefix),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	n := 0
	for iter.First(); iter.Valid(); iter.Next() {
		n++
	}
	return n, iter.Error()
}

var _ projection.Store = (*PebbleStore)(nil)

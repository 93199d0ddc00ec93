// Package bolt provides on-device entity and settings stores backed by
// a single BoltDB file.
package bolt

import (
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/custodia-labs/storesync/internal/core/domain"
)

// Layout: one top-level bucket per kind holding one nested bucket per
// site, records keyed by big-endian id so cursor order is id order.
// Settings live in their own bucket, one nested bucket per site.
var kindBuckets = map[domain.EntityKind][]byte{
	domain.EntityKindProduct: []byte("products"),
	domain.EntityKindOrder:   []byte("orders"),
	domain.EntityKindRefund:  []byte("refunds"),
}

var settingsBucket = []byte("settings")

// DB wraps the BoltDB handle shared by the entity and settings stores
type DB struct {
	*bbolt.DB
}

// Open opens or creates the database file at path and its buckets
func Open(path string) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: storage path is required", domain.ErrInvalidInput)
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range kindBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		if _, err := tx.CreateBucketIfNotExists(settingsBucket); err != nil {
			return fmt.Errorf("create bucket %s: %w", settingsBucket, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{DB: db}, nil
}

// Ping reports whether the file is still open
func (db *DB) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return db.View(func(*bbolt.Tx) error { return nil })
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}

func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

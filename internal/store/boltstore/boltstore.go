// Package boltstore is a ledger.Store backed by an embedded bbolt database.
//
// The document and its revision live in a single bucket. PutIfMatch reads,
// compares and writes inside one read-write transaction, which bbolt
// serialises across the process.
package boltstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.etcd.io/bbolt"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

var (
	bucketLedger = []byte("ledger")
	keyDocument  = []byte("document")
	keyVersion   = []byte("version")
)

// Store wraps a bbolt database holding one ledger document.
type Store struct {
	db *bbolt.DB
}

// Compile-time interface check.
var _ ledger.Store = (*Store)(nil)

// Open opens or creates the bbolt database at dbPath.
// The parent directory is created if it does not exist. If another process
// holds the database lock, Open gives up after lockTimeout.
func Open(dbPath string, lockTimeout time.Duration) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("boltstore: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: lockTimeout})
	if err != nil {
		return nil, fmt.Errorf("boltstore: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketLedger)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("boltstore: create bucket %q: %w", bucketLedger, err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// GetLatest returns the stored document and its revision.
func (s *Store) GetLatest(ctx context.Context) (*ledger.Ledger, ledger.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	var (
		data    []byte
		version ledger.Version
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketLedger)
		// Values are only valid inside the transaction.
		data = append([]byte(nil), b.Get(keyDocument)...)
		var err error
		version, err = readVersion(b)
		return err
	})
	if err != nil {
		return nil, "", err
	}

	l, err := ledger.Decode(data)
	if err != nil {
		return nil, "", err
	}
	return l, version, nil
}

// PutIfMatch replaces the document if the stored revision equals expected.
func (s *Store) PutIfMatch(ctx context.Context, l *ledger.Ledger, expected ledger.Version) (ledger.Version, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := ledger.Encode(l)
	if err != nil {
		return "", err
	}

	var next ledger.Version
	err = s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketLedger)
		current, err := readVersion(b)
		if err != nil {
			return err
		}
		if current != expected {
			return &ledger.ConflictError{Expected: expected, Current: current}
		}

		next, err = ledger.NextVersion(current)
		if err != nil {
			return err
		}
		if err := b.Put(keyDocument, data); err != nil {
			return fmt.Errorf("boltstore: put document: %w", err)
		}
		if err := b.Put(keyVersion, []byte(next)); err != nil {
			return fmt.Errorf("boltstore: put version: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return next, nil
}

func readVersion(b *bbolt.Bucket) (ledger.Version, error) {
	raw := b.Get(keyVersion)
	if raw == nil {
		return ledger.NoVersion, nil
	}
	if _, err := strconv.ParseUint(string(raw), 10, 64); err != nil {
		return "", fmt.Errorf("boltstore: invalid version %q: %w", raw, err)
	}
	return ledger.Version(raw), nil
}

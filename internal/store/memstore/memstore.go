// Package memstore is an in-process ledger.Store used by tests and dry runs.
package memstore

import (
	"context"
	"strconv"
	"sync"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

// Store keeps the encoded document in memory behind a mutex.
// Documents are stored encoded so callers never share pointers with it.
type Store struct {
	mu      sync.Mutex
	data    []byte
	version uint64
	writes  int
}

var _ ledger.Store = (*Store)(nil)

// New returns an empty store at ledger.NoVersion.
func New() *Store {
	return &Store{}
}

// Seed returns a store already holding l at version "1".
func Seed(l *ledger.Ledger) (*Store, error) {
	data, err := ledger.Encode(l)
	if err != nil {
		return nil, err
	}
	return &Store{data: data, version: 1}, nil
}

func (s *Store) GetLatest(ctx context.Context) (*ledger.Ledger, ledger.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	s.mu.Lock()
	data, version := s.data, s.version
	s.mu.Unlock()

	l, err := ledger.Decode(data)
	if err != nil {
		return nil, "", err
	}
	return l, ledger.Version(strconv.FormatUint(version, 10)), nil
}

func (s *Store) PutIfMatch(ctx context.Context, l *ledger.Ledger, expected ledger.Version) (ledger.Version, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := ledger.Encode(l)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := ledger.Version(strconv.FormatUint(s.version, 10))
	if current != expected {
		return "", &ledger.ConflictError{Expected: expected, Current: current}
	}

	s.data = data
	s.version++
	s.writes++
	return ledger.Version(strconv.FormatUint(s.version, 10)), nil
}

// Writes returns the number of committed PutIfMatch calls.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

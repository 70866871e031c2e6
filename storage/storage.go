// storage package keeps the blocks of the exchange in the database and is
// also the queue they wait in until they are processed. The storage package
// includes a prefixed key-value store with the following prefixes:
//   - 'b/' for pending blocks (queued)
//   - 'br/' for reservations of pending blocks
//   - 'p/' for processed block records, keyed by block number
//   - 'm/' for counters
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

var (
	// Prefixes for the keys in the database.
	pendingBlockPrefix     = []byte("b/")
	blockReservationPrefix = []byte("br/")
	processedBlockPrefix   = []byte("p/")
	metaPrefix             = []byte("m/")

	queueSequenceKey = []byte("queueSequence")
)

var (
	// ErrNotFound is returned when an artifact is not in the storage.
	ErrNotFound = errors.New("not found")
	// ErrNoMoreElements is returned when a queue has no unreserved element.
	ErrNoMoreElements = errors.New("no more elements")
)

// Storage is the interface that wraps the basic methods to interact with the
// storage.
type Storage struct {
	db         db.Database
	globalLock sync.Mutex
}

// New creates a new Storage instance.
func New(db db.Database) *Storage {
	return &Storage{db: db}
}

// Close closes the storage.
func (s *Storage) Close() {
	s.db.Close()
}

// setArtifact encodes and stores an artifact under key.
func (s *Storage) setArtifact(prefix, key []byte, artifact any) error {
	val, err := encodeArtifact(artifact)
	if err != nil {
		return err
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	if err := wTx.Set(key, val); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}

// getArtifact decodes the artifact stored under key into out. It returns
// ErrNotFound if there is none.
func (s *Storage) getArtifact(prefix, key []byte, out any) error {
	data, err := prefixeddb.NewPrefixedReader(s.db, prefix).Get(key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return decodeArtifact(data, out)
}

func (s *Storage) deleteArtifact(prefix, key []byte) error {
	if _, err := prefixeddb.NewPrefixedReader(s.db, prefix).Get(key); err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	if err := wTx.Delete(key); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}

// listArtifacts returns the keys stored under prefix, in key order.
func (s *Storage) listArtifacts(prefix []byte) ([][]byte, error) {
	var keys [][]byte
	if err := prefixeddb.NewPrefixedReader(s.db, prefix).Iterate(nil, func(k, _ []byte) bool {
		// make a copy of the key, the iterator reuses it
		key := make([]byte, len(k))
		copy(key, k)
		keys = append(keys, key)
		return true
	}); err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}
	return keys, nil
}

func (s *Storage) isReserved(prefix, key []byte) bool {
	_, err := prefixeddb.NewPrefixedReader(s.db, prefix).Get(key)
	return err == nil
}

func (s *Storage) setReservation(prefix, key []byte) error {
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	if err := wTx.Set(key, []byte{1}); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}

// nextSequence increments and returns a counter stored in the database.
func (s *Storage) nextSequence(key []byte) (uint64, error) {
	var seq uint64
	data, err := prefixeddb.NewPrefixedReader(s.db, metaPrefix).Get(key)
	switch {
	case err == nil:
		seq = binary.BigEndian.Uint64(data)
	case !errors.Is(err, db.ErrKeyNotFound):
		return 0, err
	}
	seq++
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), metaPrefix)
	if err := wTx.Set(key, uint64Key(seq)); err != nil {
		wTx.Discard()
		return 0, err
	}
	return seq, wTx.Commit()
}

// uint64Key encodes n big endian so keys iterate in numeric order.
func uint64Key(n uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, n)
}

package docstore

import (
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/roach88/peersync/internal/wire"
)

var (
	answersBucket = []byte("answers")
	metaBucket    = []byte("meta")
	lockedKey     = []byte("locked")
)

// BoltStore persists the document in a bbolt database, one key per answer.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (creating if needed) the document database at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open document db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{answersBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init document db: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close releases the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Snapshot reads the whole document.
func (s *BoltStore) Snapshot() (wire.Document, error) {
	doc := wire.Document{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(answersBucket).ForEach(func(k, v []byte) error {
			doc[string(k)] = string(v)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return doc, nil
}

// ApplyRemote merges doc, or replaces the document when fullReplace is set,
// in one transaction.
func (s *BoltStore) ApplyRemote(doc wire.Document, fullReplace bool) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if fullReplace {
			if err := tx.DeleteBucket(answersBucket); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return err
			}
			if _, err := tx.CreateBucket(answersBucket); err != nil {
				return err
			}
		}
		b := tx.Bucket(answersBucket)
		for k, v := range doc {
			if err := b.Put([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply remote: %w", err)
	}
	return nil
}

// Set writes one local answer.
func (s *BoltStore) Set(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(answersBucket).Put([]byte(key), []byte(value))
	})
}

// SetLocked persists the host's lock directive.
func (s *BoltStore) SetLocked(locked bool) error {
	v := []byte{0}
	if locked {
		v[0] = 1
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(metaBucket).Put(lockedKey, v)
	})
}

// Locked reads the persisted lock directive.
func (s *BoltStore) Locked() (bool, error) {
	var locked bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(metaBucket).Get(lockedKey)
		locked = len(v) == 1 && v[0] == 1
		return nil
	})
	return locked, err
}

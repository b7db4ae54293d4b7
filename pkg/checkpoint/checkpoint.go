// Package checkpoint is a pebble-backed store for the log positions and
// epoch identity the election core ranks candidates by. Election state
// itself is never persisted here: a restarted node always rejoins by
// calling StartElections fresh.
package checkpoint

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/matsnd/eventstore/pkg/elections"
)

var (
	keyEpoch            = []byte("epoch")
	keyWriterCheckpoint = []byte("checkpoint:writer")
	keyChaserCheckpoint = []byte("checkpoint:chaser")
	keyLastCommit       = []byte("checkpoint:commit")
)

// Store persists the writer/chaser checkpoints, last commit position, and
// current epoch on disk, and caches them in memory so the synchronous
// EpochSource/CheckpointSource ports never touch disk on the hot path.
type Store struct {
	db *pebble.DB

	mu       sync.RWMutex
	epoch    elections.Epoch
	hasEpoch bool
	writer   int64
	chaser   int64
	commit   int64
}

// Open opens (creating if absent) the pebble database at path and loads
// the last persisted checkpoint/epoch values into memory.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("checkpoint: opening store at %q: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) load() error {
	if v, ok, err := s.getInt64(keyWriterCheckpoint); err != nil {
		return err
	} else if ok {
		s.writer = v
	} else {
		s.writer = -1
	}
	if v, ok, err := s.getInt64(keyChaserCheckpoint); err != nil {
		return err
	} else if ok {
		s.chaser = v
	} else {
		s.chaser = -1
	}
	if v, ok, err := s.getInt64(keyLastCommit); err != nil {
		return err
	} else if ok {
		s.commit = v
	} else {
		s.commit = -1
	}

	val, closer, err := s.db.Get(keyEpoch)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("checkpoint: loading epoch: %w", err)
	}
	defer closer.Close()
	var e elections.Epoch
	if err := gob.NewDecoder(bytes.NewReader(val)).Decode(&e); err != nil {
		return fmt.Errorf("checkpoint: decoding epoch: %w", err)
	}
	s.epoch = e
	s.hasEpoch = true
	return nil
}

func (s *Store) getInt64(key []byte) (int64, bool, error) {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("checkpoint: reading %s: %w", key, err)
	}
	defer closer.Close()
	return int64(binary.BigEndian.Uint64(val)), true, nil
}

func putInt64(db *pebble.DB, key []byte, v int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return db.Set(key, buf[:], pebble.Sync)
}

// LastEpoch implements elections.EpochSource.
func (s *Store) LastEpoch() (elections.Epoch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch, s.hasEpoch
}

// WriterCheckpoint implements elections.CheckpointSource.
func (s *Store) WriterCheckpoint() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writer
}

// ChaserCheckpoint implements elections.CheckpointSource.
func (s *Store) ChaserCheckpoint() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chaser
}

// LastCommitPosition implements elections.CheckpointSource.
func (s *Store) LastCommitPosition() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commit
}

// SetEpoch persists a newly observed epoch and updates the in-memory copy
// served by LastEpoch.
func (s *Store) SetEpoch(e elections.Epoch) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return fmt.Errorf("checkpoint: encoding epoch: %w", err)
	}
	if err := s.db.Set(keyEpoch, buf.Bytes(), pebble.Sync); err != nil {
		return fmt.Errorf("checkpoint: persisting epoch: %w", err)
	}
	s.mu.Lock()
	s.epoch, s.hasEpoch = e, true
	s.mu.Unlock()
	return nil
}

// SetCheckpoints persists the writer/chaser/commit positions together.
func (s *Store) SetCheckpoints(writer, chaser, commit int64) error {
	if err := putInt64(s.db, keyWriterCheckpoint, writer); err != nil {
		return fmt.Errorf("checkpoint: persisting writer checkpoint: %w", err)
	}
	if err := putInt64(s.db, keyChaserCheckpoint, chaser); err != nil {
		return fmt.Errorf("checkpoint: persisting chaser checkpoint: %w", err)
	}
	if err := putInt64(s.db, keyLastCommit, commit); err != nil {
		return fmt.Errorf("checkpoint: persisting commit position: %w", err)
	}
	s.mu.Lock()
	s.writer, s.chaser, s.commit = writer, chaser, commit
	s.mu.Unlock()
	return nil
}

var (
	_ elections.EpochSource      = (*Store)(nil)
	_ elections.CheckpointSource = (*Store)(nil)
)

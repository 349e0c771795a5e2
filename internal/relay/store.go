package relay

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble/v2"
	"github.com/omochice/wschat/pkg/protocol"
)

// History keeps relayed envelopes for replay to newly authenticated clients.
type History interface {
	Append(msg protocol.Message) error
	Recent(limit int) ([]protocol.Message, error)
}

// Store is a History in a Pebble database. Keys are 8-byte big-endian
// sequence numbers.
type Store struct {
	db *pebble.DB

	mu   sync.Mutex
	next uint64
}

// OpenStore opens or creates the database in dir.
func OpenStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}

	s := &Store{db: db}
	it, err := db.NewIter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to scan history: %w", err)
	}
	if it.Last() && len(it.Key()) == 8 {
		s.next = binary.BigEndian.Uint64(it.Key()) + 1
	}
	if err := it.Close(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to scan history: %w", err)
	}
	return s, nil
}

// Append stores msg after every message already stored.
func (s *Store) Append(msg protocol.Message) error {
	val, err := msg.Encode()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, s.next)
	if err := s.db.Set(key, val, pebble.Sync); err != nil {
		return fmt.Errorf("failed to store message: %w", err)
	}
	s.next++
	return nil
}

// Recent returns up to limit of the newest messages, oldest first. Entries
// that no longer decode are skipped.
func (s *Store) Recent(limit int) ([]protocol.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	it, err := s.db.NewIter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	defer it.Close()

	out := make([]protocol.Message, 0, limit)
	for valid := it.Last(); valid && len(out) < limit; valid = it.Prev() {
		var msg protocol.Message
		if err := json.Unmarshal(it.Value(), &msg); err != nil {
			continue
		}
		out = append(out, msg)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

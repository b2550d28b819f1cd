// Package auditlog provides a tamper-evident, hash-chained trail of
// recommendation decisions. Each entry carries the hash of its predecessor,
// so any edit or deletion inside the trail breaks the chain and is caught by
// Verify.
package auditlog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Store persists raw trail entries in order. Implementations must preserve
// append order; the chain check depends on it.
type Store interface {
	// Append adds one serialized entry to the end of the store
	Append(data []byte) error

	// ReadAll returns every entry in append order
	ReadAll() ([][]byte, error)
}

// Entry is one recorded recommendation decision. Hash covers every other
// field including PrevHash, which links the entry to its predecessor.
type Entry struct {
	Sequence             int64     `json:"sequence"`
	Timestamp            time.Time `json:"timestamp"`
	SnapshotVersion      string    `json:"snapshot_version"`
	RequestedPermissions []string  `json:"requested_permissions"`
	Outcome              string    `json:"outcome"`
	BestRoles            []string  `json:"best_roles,omitempty"`
	BestMonthlyCost      float64   `json:"best_monthly_cost,omitempty"`
	PrevHash             string    `json:"prev_hash"`
	Hash                 string    `json:"hash"`
}

func (e Entry) computeHash() (string, error) {
	unsealed := e
	unsealed.Hash = ""
	data, err := json.Marshal(unsealed)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Trail is the hash-chained audit trail. Record seals each entry against the
// previous one; concurrent recorders are serialized so the chain stays
// linear.
type Trail struct {
	store    Store
	mu       sync.Mutex
	lastHash string
	lastSeq  int64
}

// NewTrail opens a trail over a store, resuming the chain from the last
// stored entry. An unreadable tail is an error: recording onto a broken
// chain would hide the break.
func NewTrail(store Store) (*Trail, error) {
	entries, err := store.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read trail: %w", err)
	}

	t := &Trail{store: store}
	if len(entries) > 0 {
		var last Entry
		if err := json.Unmarshal(entries[len(entries)-1], &last); err != nil {
			return nil, fmt.Errorf("parse last trail entry: %w", err)
		}
		t.lastHash = last.Hash
		t.lastSeq = last.Sequence
	}
	return t, nil
}

// Record appends one decision to the trail. Sequence, timestamp, and the
// chain fields are assigned here; callers supply only the decision itself.
func (t *Trail) Record(snapshotVersion string, permissions []string, outcome string, bestRoles []string, bestCost float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := Entry{
		Sequence:             t.lastSeq + 1,
		Timestamp:            time.Now().UTC(),
		SnapshotVersion:      snapshotVersion,
		RequestedPermissions: permissions,
		Outcome:              outcome,
		BestRoles:            bestRoles,
		BestMonthlyCost:      bestCost,
		PrevHash:             t.lastHash,
	}

	hash, err := entry.computeHash()
	if err != nil {
		return fmt.Errorf("hash entry: %w", err)
	}
	entry.Hash = hash

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	if err := t.store.Append(data); err != nil {
		return fmt.Errorf("append entry: %w", err)
	}

	t.lastHash = entry.Hash
	t.lastSeq = entry.Sequence
	return nil
}

// Verify walks the whole chain and returns the number of valid entries. A
// non-nil error names the first entry whose hash or back-link does not hold.
func (t *Trail) Verify() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	raw, err := t.store.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("read trail: %w", err)
	}

	prevHash := ""
	for i, data := range raw {
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			return i, fmt.Errorf("entry %d: unparseable: %w", i, err)
		}
		if entry.PrevHash != prevHash {
			return i, fmt.Errorf("entry %d: chain broken, prev_hash %q does not match %q", i, entry.PrevHash, prevHash)
		}
		want, err := entry.computeHash()
		if err != nil {
			return i, fmt.Errorf("entry %d: hash: %w", i, err)
		}
		if entry.Hash != want {
			return i, fmt.Errorf("entry %d: content hash mismatch", i)
		}
		prevHash = entry.Hash
	}
	return len(raw), nil
}

// Entries returns every decoded entry in append order
func (t *Trail) Entries() ([]Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	raw, err := t.store.ReadAll()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(raw))
	for i, data := range raw {
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, entry)
	}
	return out, nil
}

// FileStore keeps the trail as one JSON line per entry. Writes append and
// fsync; the file is never rewritten in place.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore opens or creates the trail file, creating parent directories
// as needed
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create trail directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trail file: %w", err)
	}
	f.Close()
	return &FileStore{path: path}, nil
}

// Append writes one entry line and syncs it to disk
func (s *FileStore) Append(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open trail file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	return f.Sync()
}

// ReadAll returns every non-empty line of the trail file
func (s *FileStore) ReadAll() ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read trail file: %w", err)
	}

	var out [][]byte
	start := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			if i > start {
				out = append(out, data[start:i])
			}
			start = i + 1
		}
	}
	return out, nil
}

// MemoryStore is an in-memory Store for tests and ephemeral deployments
type MemoryStore struct {
	mu      sync.RWMutex
	entries [][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append copies data onto the in-memory log
func (s *MemoryStore) Append(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, append([]byte(nil), data...))
	return nil
}

// ReadAll returns copies of every entry
func (s *MemoryStore) ReadAll() ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([][]byte, len(s.entries))
	for i, e := range s.entries {
		out[i] = append([]byte(nil), e...)
	}
	return out, nil
}

// Tamper overwrites a stored entry in place. Only tests use this, to prove
// Verify catches modification.
func (s *MemoryStore) Tamper(i int, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[i] = append([]byte(nil), data...)
}

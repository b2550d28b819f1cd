package auditlog

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

func record(t *testing.T, trail *Trail, version, outcome string) {
	t.Helper()
	if err := trail.Record(version, []string{"MenuX", "MenuY"}, outcome, []string{"RoleA"}, 195); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
}

func TestTrail_RecordAndVerify(t *testing.T) {
	trail, err := NewTrail(NewMemoryStore())
	if err != nil {
		t.Fatalf("NewTrail failed: %v", err)
	}

	record(t, trail, "v1", "full_coverage")
	record(t, trail, "v1", "partial_coverage")
	record(t, trail, "v2", "uncoverable")

	n, err := trail.Verify()
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if n != 3 {
		t.Errorf("verified %d entries, want 3", n)
	}

	entries, err := trail.Entries()
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	for i, e := range entries {
		if e.Sequence != int64(i+1) {
			t.Errorf("entry %d sequence = %d, want %d", i, e.Sequence, i+1)
		}
	}
	if entries[0].PrevHash != "" {
		t.Error("first entry must have empty prev_hash")
	}
	if entries[1].PrevHash != entries[0].Hash {
		t.Error("chain link broken between entries 0 and 1")
	}
}

func TestTrail_VerifyDetectsTampering(t *testing.T) {
	store := NewMemoryStore()
	trail, err := NewTrail(store)
	if err != nil {
		t.Fatalf("NewTrail failed: %v", err)
	}
	record(t, trail, "v1", "full_coverage")
	record(t, trail, "v1", "full_coverage")

	raw, _ := store.ReadAll()
	var entry Entry
	if err := json.Unmarshal(raw[0], &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	entry.Outcome = "uncoverable" // rewrite history
	forged, _ := json.Marshal(entry)
	store.Tamper(0, forged)

	if _, err := trail.Verify(); err == nil {
		t.Fatal("Verify must fail after an entry is rewritten")
	}
}

func TestTrail_ResumesChainAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "trail.jsonl")

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	trail, err := NewTrail(store)
	if err != nil {
		t.Fatalf("NewTrail failed: %v", err)
	}
	record(t, trail, "v1", "full_coverage")
	record(t, trail, "v1", "full_coverage")

	// Reopen the same file; the chain must continue, not restart
	store2, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	trail2, err := NewTrail(store2)
	if err != nil {
		t.Fatalf("NewTrail on reopen failed: %v", err)
	}
	record(t, trail2, "v2", "partial_coverage")

	n, err := trail2.Verify()
	if err != nil {
		t.Fatalf("Verify failed after reopen: %v", err)
	}
	if n != 3 {
		t.Errorf("verified %d entries, want 3", n)
	}

	entries, err := trail2.Entries()
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if entries[2].Sequence != 3 {
		t.Errorf("resumed sequence = %d, want 3", entries[2].Sequence)
	}
	if entries[2].PrevHash != entries[1].Hash {
		t.Error("reopened trail did not link to the existing tail")
	}
}

func TestFileStore_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trail.jsonl")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	entries, err := store.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("fresh store has %d entries, want 0", len(entries))
	}
}

package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenCreatesFreshManifest(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if m.NextFileID != 1 {
		t.Fatalf("expected fresh NextFileID=1, got %d", m.NextFileID)
	}
}

func TestManifestSaveReload(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	id1 := m.AllocFileID()
	id2 := m.AllocFileID()
	m.ApplyCompaction(0, nil, []uint64{id1, id2})
	m.RecoverySeq = 42
	m.Quarantine(id1)

	if err := m.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reloaded.NextFileID != m.NextFileID {
		t.Fatalf("NextFileID mismatch: got %d want %d", reloaded.NextFileID, m.NextFileID)
	}
	if reloaded.RecoverySeq != 42 {
		t.Fatalf("RecoverySeq not persisted: got %d", reloaded.RecoverySeq)
	}
	if !reloaded.LiveFiles[0].Contains(uint32(id1)) || !reloaded.LiveFiles[0].Contains(uint32(id2)) {
		t.Fatalf("live file set not persisted")
	}
	if !reloaded.IsQuarantined(id1) {
		t.Fatalf("quarantine set not persisted")
	}
	if reloaded.LevelFileCounts[0] != 2 {
		t.Fatalf("expected level 0 file count 2, got %d", reloaded.LevelFileCounts[0])
	}
}

func TestManifestAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	tmp := filepath.Join(dir, "MANIFEST.tmp")
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Fatalf("temp file should have been renamed away, stat err=%v", err)
	}
}

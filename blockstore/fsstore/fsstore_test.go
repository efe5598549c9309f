package fsstore

import (
	"os"
	"testing"

	"github.com/digitloom/digitloom/blockid"
	"github.com/digitloom/digitloom/blockstore"
	"github.com/digitloom/digitloom/blockstore/testkit"
)

func TestFSStore_Conformance(t *testing.T) {
	testkit.RunStoreConformance(t, func(t *testing.T) blockstore.Store {
		t.Helper()
		dir := t.TempDir()
		s, err := New(dir)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		return s
	})
}

func TestFSStore_RejectMutationByOverwrite(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	orig := []byte("original")
	id, err := s.Put(orig)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Corrupt the stored block out-of-band.
	path := s.pathFor(id)
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("corrupted"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	// Get must detect hash mismatch.
	_, err = s.Get(id)
	if err != blockstore.ErrCIDMismatch {
		t.Fatalf("Get mismatch: got %v want %v", err, blockstore.ErrCIDMismatch)
	}

	// Put must not "repair" or overwrite the corrupted block.
	_, err = s.Put(orig)
	if err != blockstore.ErrImmutable {
		t.Fatalf("Put after corruption: got %v want %v", err, blockstore.ErrImmutable)
	}

	// Sanity: the CID is still the CID of the original bytes.
	wantID, err := blockid.For(orig)
	if err != nil {
		t.Fatalf("blockid.For failed: %v", err)
	}
	if id != wantID {
		t.Fatalf("unexpected CID: got %s want %s", id, wantID)
	}
}

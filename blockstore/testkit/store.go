package testkit

import (
	"bytes"
	"testing"

	"github.com/ipfs/go-cid"

	"github.com/digitloom/digitloom/blockid"
	"github.com/digitloom/digitloom/blockstore"
)

// NewStore constructs a fresh, empty Store instance for a test.
// The returned Store MUST be isolated from other tests.
type NewStore func(t *testing.T) blockstore.Store

func RunStoreConformance(t *testing.T, newStore NewStore) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		store := newStore(t)
		want := []byte("314159265358979323846")

		id, err := store.Put(want)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		wantID, err := blockid.For(want)
		if err != nil {
			t.Fatalf("blockid.For failed: %v", err)
		}
		if id != wantID {
			t.Fatalf("Put CID mismatch: got %s want %s", id, wantID)
		}

		got, err := store.Get(id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("Get bytes mismatch")
		}

		gotID, err := blockid.For(got)
		if err != nil {
			t.Fatalf("blockid.For(got) failed: %v", err)
		}
		if gotID != id {
			t.Fatalf("Get returned bytes not matching requested CID")
		}
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		store := newStore(t)
		b := []byte("same bytes")

		id1, err := store.Put(b)
		if err != nil {
			t.Fatalf("Put(1) failed: %v", err)
		}
		id2, err := store.Put(b)
		if err != nil {
			t.Fatalf("Put(2) failed: %v", err)
		}
		if id1 != id2 {
			t.Fatalf("Put not idempotent: %s vs %s", id1, id2)
		}
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		store := newStore(t)
		b := []byte("missing")
		id, err := blockid.For(b)
		if err != nil {
			t.Fatalf("blockid.For failed: %v", err)
		}

		if store.Has(id) {
			t.Fatalf("Has returned true for missing CID")
		}
		_, err = store.Get(id)
		if !blockstore.IsNotFound(err) {
			t.Fatalf("Get missing: got err=%v want ErrNotFound", err)
		}

		_, err = store.Put(b)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if !store.Has(id) {
			t.Fatalf("Has returned false after Put")
		}
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		store := newStore(t)
		var undef cid.Cid
		if store.Has(undef) {
			t.Fatalf("Has should be false for undefined CID")
		}
		if _, err := store.Get(undef); err == nil {
			t.Fatalf("Get should fail for undefined CID")
		}
	})
}

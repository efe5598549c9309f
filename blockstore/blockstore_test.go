package blockstore

import (
	"errors"
	"testing"

	"github.com/ipfs/go-cid"

	"github.com/digitloom/digitloom/blockid"
)

// memStore is a minimal in-process store for composite-store tests.
type memStore struct {
	blocks map[cid.Cid][]byte
	puts   int
}

func newMemStore() *memStore {
	return &memStore{blocks: map[cid.Cid][]byte{}}
}

func (m *memStore) Put(b []byte) (cid.Cid, error) {
	id, err := blockid.For(b)
	if err != nil {
		return cid.Undef, err
	}
	m.puts++
	m.blocks[id] = append([]byte(nil), b...)
	return id, nil
}

func (m *memStore) Get(id cid.Cid) ([]byte, error) {
	b, ok := m.blocks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

func (m *memStore) Has(id cid.Cid) bool {
	_, ok := m.blocks[id]
	return ok
}

// badStore returns a wrong CID from Put.
type badStore struct{ memStore }

func (b *badStore) Put(data []byte) (cid.Cid, error) {
	b.memStore.Put(data)
	return blockid.For([]byte("not the data"))
}

func TestMultiStoreFallback(t *testing.T) {
	primary, secondary := newMemStore(), newMemStore()
	m := MultiStore{Stores: []Store{primary, secondary}}

	// A block present only in the secondary is still readable.
	id, err := secondary.Put([]byte("fallback block"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := m.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "fallback block" {
		t.Errorf("Get = %q", got)
	}
	if !m.Has(id) {
		t.Error("Has missed secondary block")
	}

	// Put writes only to the first store.
	id2, err := m.Put([]byte("new block"))
	if err != nil {
		t.Fatal(err)
	}
	if !primary.Has(id2) || secondary.Has(id2) {
		t.Error("Put should reach only the first store")
	}
}

func TestMultiStoreNotFound(t *testing.T) {
	m := MultiStore{Stores: []Store{newMemStore()}}
	id, _ := blockid.For([]byte("missing"))
	if _, err := m.Get(id); !IsNotFound(err) {
		t.Errorf("err = %v", err)
	}

	empty := MultiStore{}
	if _, err := empty.Put([]byte("x")); err == nil {
		t.Error("empty MultiStore Put should fail")
	}
}

func TestReplicatingStorePutAll(t *testing.T) {
	a, b := newMemStore(), newMemStore()
	r := ReplicatingStore{Backends: []NamedStore{
		{Name: "a", Store: a},
		{Name: "b", Store: b},
	}}

	data := []byte("replicated digits")
	id, perBackend, err := r.PutAll(data)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := blockid.For(data)
	if !id.Equals(want) {
		t.Errorf("canonical CID = %s", id)
	}
	for name, got := range perBackend {
		if !got.Equals(want) {
			t.Errorf("backend %s CID = %s", name, got)
		}
	}
	if !a.Has(id) || !b.Has(id) {
		t.Error("block missing from a backend")
	}
}

func TestReplicatingStoreDetectsDivergence(t *testing.T) {
	r := ReplicatingStore{Backends: []NamedStore{
		{Name: "good", Store: newMemStore()},
		{Name: "bad", Store: &badStore{memStore{blocks: map[cid.Cid][]byte{}}}},
	}}
	if _, _, err := r.PutAll([]byte("x")); !errors.Is(err, ErrCIDMismatch) {
		t.Errorf("err = %v", err)
	}
}

func TestReplicatingStoreReadFallback(t *testing.T) {
	a, b := newMemStore(), newMemStore()
	r := ReplicatingStore{Backends: []NamedStore{
		{Name: "a", Store: a},
		{Name: "b", Store: b},
	}}
	id, _ := b.Put([]byte("only in b"))
	got, err := r.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "only in b" {
		t.Errorf("Get = %q", got)
	}
	if !r.Has(id) {
		t.Error("Has missed backend block")
	}
}

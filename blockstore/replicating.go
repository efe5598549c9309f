package blockstore

import (
	"fmt"

	"github.com/ipfs/go-cid"

	"github.com/digitloom/digitloom/blockid"
)

// NamedStore associates a Store with a stable backend name.
//
// This is used for multi-backend orchestration where callers need to retain
// per-backend metadata (e.g., for reporting or auditing).
type NamedStore struct {
	Name  string
	Store Store
}

// ReplicatingStore writes to all configured backends.
//
// Reads fall back in order. Writes go to all backends and require all returned
// CIDs to match (otherwise ErrCIDMismatch is returned).
//
// Use PutAll when you need the per-backend CID mapping.
type ReplicatingStore struct {
	Backends []NamedStore
}

var _ Store = (*ReplicatingStore)(nil)

// PutAll writes the same bytes to all backends.
//
// It returns:
// - the canonical CID (computed from bytes)
// - a map of backend name -> returned CID
//
// If any backend returns a different CID, ErrCIDMismatch is returned.
func (r ReplicatingStore) PutAll(bytes []byte) (cid.Cid, map[string]cid.Cid, error) {
	want, err := blockid.For(bytes)
	if err != nil {
		return cid.Undef, nil, err
	}
	if !want.Defined() {
		return cid.Undef, nil, ErrInvalidCID
	}
	if len(r.Backends) == 0 {
		return cid.Undef, nil, fmt.Errorf("blockstore: ReplicatingStore has no backends")
	}

	out := make(map[string]cid.Cid, len(r.Backends))
	for _, b := range r.Backends {
		if b.Store == nil {
			return cid.Undef, nil, fmt.Errorf("blockstore: nil store for backend %q", b.Name)
		}
		got, err := b.Store.Put(bytes)
		if err != nil {
			return cid.Undef, nil, err
		}
		out[b.Name] = got
		if got != want {
			return cid.Undef, out, ErrCIDMismatch
		}
	}
	return want, out, nil
}

func (r ReplicatingStore) Put(bytes []byte) (cid.Cid, error) {
	id, _, err := r.PutAll(bytes)
	return id, err
}

func (r ReplicatingStore) Get(id cid.Cid) ([]byte, error) {
	for _, b := range r.Backends {
		if b.Store == nil {
			continue
		}
		out, err := b.Store.Get(id)
		if err == nil {
			return out, nil
		}
		if IsNotFound(err) {
			continue
		}
		return nil, err
	}
	return nil, ErrNotFound
}

func (r ReplicatingStore) Has(id cid.Cid) bool {
	for _, b := range r.Backends {
		if b.Store != nil && b.Store.Has(id) {
			return true
		}
	}
	return false
}

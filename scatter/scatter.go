// Package scatter persists a digit container into a content-addressable
// block store and reassembles it byte-for-byte.
//
// The container is split into its natural segments: the prefix (magic,
// header, finalization block), one block per chunk record, and the
// trailing chunk directory. Each segment is stored under its CID and a
// deterministic CBOR manifest ties them together. Gathering the
// manifest reproduces the exact original container bytes, so chunk
// hashes, AEAD tags, and signatures all remain valid.
package scatter

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"

	"github.com/digitloom/digitloom/blockid"
	"github.com/digitloom/digitloom/blockstore"
	"github.com/digitloom/digitloom/dloom"
)

// ManifestVersion is the current manifest schema version.
const ManifestVersion = 1

// ChunkRef references one stored chunk record block.
type ChunkRef struct {
	CID       string `cbor:"cid"`
	StoredLen uint32 `cbor:"stored_len"`
	RawLen    uint32 `cbor:"raw_len"`
}

// Manifest describes a scattered container. It is encoded with
// deterministic CBOR so the same container always yields the same
// manifest CID.
type Manifest struct {
	Version     int        `cbor:"version"`
	Spec        string     `cbor:"spec"`
	Base        int        `cbor:"base"`
	ChunkSize   int        `cbor:"chunk_size"`
	TotalDigits uint64     `cbor:"total_digits"`
	Complete    bool       `cbor:"complete"`
	Prefix      string     `cbor:"prefix"`
	Chunks      []ChunkRef `cbor:"chunks"`
	Trailer     string     `cbor:"trailer,omitempty"`
}

var encMode cbor.EncMode
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Scatter stores every segment of the container behind r as a block and
// returns the CID of the stored manifest.
func Scatter(store blockstore.Store, r *dloom.Reader) (cid.Cid, *Manifest, error) {
	if store == nil {
		return cid.Undef, nil, fmt.Errorf("scatter: nil store")
	}

	header := r.Header()
	m := &Manifest{
		Version:     ManifestVersion,
		Spec:        header.Spec,
		Base:        header.Base,
		ChunkSize:   header.ChunkSize,
		TotalDigits: r.TotalDigits(),
		Complete:    r.Complete(),
	}

	prefix, err := r.RawPrefix()
	if err != nil {
		return cid.Undef, nil, err
	}
	prefixID, err := store.Put(prefix)
	if err != nil {
		return cid.Undef, nil, fmt.Errorf("scatter: storing prefix: %w", err)
	}
	m.Prefix = prefixID.String()

	m.Chunks = make([]ChunkRef, r.ChunkCount())
	for i := range m.Chunks {
		record, err := r.RawChunk(i)
		if err != nil {
			return cid.Undef, nil, err
		}
		id, err := store.Put(record)
		if err != nil {
			return cid.Undef, nil, fmt.Errorf("scatter: storing chunk %d: %w", i, err)
		}
		info, err := r.ChunkInfo(i)
		if err != nil {
			return cid.Undef, nil, err
		}
		m.Chunks[i] = ChunkRef{CID: id.String(), StoredLen: info.StoredLen, RawLen: info.RawLen}
	}

	trailer, err := r.RawTrailer()
	if err != nil {
		return cid.Undef, nil, err
	}
	if len(trailer) > 0 {
		trailerID, err := store.Put(trailer)
		if err != nil {
			return cid.Undef, nil, fmt.Errorf("scatter: storing trailer: %w", err)
		}
		m.Trailer = trailerID.String()
	}

	encoded, err := encMode.Marshal(m)
	if err != nil {
		return cid.Undef, nil, fmt.Errorf("scatter: encoding manifest: %w", err)
	}
	manifestID, err := store.Put(encoded)
	if err != nil {
		return cid.Undef, nil, fmt.Errorf("scatter: storing manifest: %w", err)
	}
	return manifestID, m, nil
}

// LoadManifest fetches and decodes a manifest block.
func LoadManifest(store blockstore.Store, id cid.Cid) (*Manifest, error) {
	if store == nil {
		return nil, fmt.Errorf("scatter: nil store")
	}
	b, err := store.Get(id)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := decMode.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("scatter: decoding manifest %s: %w", id, err)
	}
	if m.Version != ManifestVersion {
		return nil, fmt.Errorf("scatter: unsupported manifest version %d", m.Version)
	}
	return &m, nil
}

// Gather reassembles the container described by the manifest at id,
// writing the exact original bytes to dst. Every fetched block is
// validated against its CID by the store.
func Gather(store blockstore.Store, id cid.Cid, dst io.Writer) (*Manifest, error) {
	m, err := LoadManifest(store, id)
	if err != nil {
		return nil, err
	}

	if err := copyBlock(store, m.Prefix, dst); err != nil {
		return nil, fmt.Errorf("scatter: gathering prefix: %w", err)
	}
	for i, ref := range m.Chunks {
		if err := copyBlock(store, ref.CID, dst); err != nil {
			return nil, fmt.Errorf("scatter: gathering chunk %d: %w", i, err)
		}
	}
	if m.Trailer != "" {
		if err := copyBlock(store, m.Trailer, dst); err != nil {
			return nil, fmt.Errorf("scatter: gathering trailer: %w", err)
		}
	}
	return m, nil
}

// BlockCIDs returns every block CID the manifest references, in
// container order. Useful for bundle export.
func (m *Manifest) BlockCIDs() ([]cid.Cid, error) {
	out := make([]cid.Cid, 0, len(m.Chunks)+2)
	add := func(s string) error {
		id, err := cid.Decode(s)
		if err != nil || !id.Defined() {
			return blockstore.ErrInvalidCID
		}
		out = append(out, id)
		return nil
	}
	if err := add(m.Prefix); err != nil {
		return nil, err
	}
	for _, ref := range m.Chunks {
		if err := add(ref.CID); err != nil {
			return nil, err
		}
	}
	if m.Trailer != "" {
		if err := add(m.Trailer); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func copyBlock(store blockstore.Store, cidStr string, dst io.Writer) error {
	id, err := cid.Decode(cidStr)
	if err != nil || !id.Defined() {
		return blockstore.ErrInvalidCID
	}
	b, err := store.Get(id)
	if err != nil {
		return err
	}
	got, err := blockid.For(b)
	if err != nil {
		return err
	}
	if got != id {
		return blockstore.ErrCIDMismatch
	}
	_, err = dst.Write(b)
	return err
}

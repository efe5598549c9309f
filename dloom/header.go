// Package dloom implements the chunked digit container codec: an
// ordered list of independently hashed, optionally compressed and
// encrypted chunks behind a self-describing header. Chunk payloads are
// hashed before compression and encryption; a chunk read back is valid
// iff its decrypted, decompressed bytes match the stored digest.
package dloom

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Magic identifies a digitloom chunked container.
var Magic = [8]byte{'D', 'L', 'O', 'O', 'M', 'C', 'H', '2'}

// Version is the container format version written by this package.
const Version = 1

// UnboundedDigits marks a container created for a stream with no
// predeclared digit count.
const UnboundedDigits = -1

// maxHeaderLen bounds the encoded header; a larger length indicates a
// corrupt or hostile prefix.
const maxHeaderLen = 1 << 20

// Header is the container's immutable self-description, written once
// at creation and CBOR-encoded with deterministic encoding. Totals
// finalized at close (digit count, chunk count, directory offset,
// completeness) live in the fixed-size finalization block that follows
// the header on disk, not here.
type Header struct {
	// Format is the container format version.
	Format int `cbor:"format"`
	// Spec is the canonical constant or expression descriptor.
	Spec string `cbor:"spec"`
	// Base is the digit base of the payload characters.
	Base int `cbor:"base"`
	// ChunkSize is the fixed number of digits per chunk (the final
	// chunk may be shorter). Fixed per container so a digit offset
	// maps to a chunk index in O(1).
	ChunkSize int `cbor:"chunk_size"`
	// Requested is the digit count the container was created for, or
	// UnboundedDigits for an open-ended stream.
	Requested int64 `cbor:"requested"`

	Hash        HashID        `cbor:"hash"`
	Compression CompressionID `cbor:"compression"`
	Encryption  EncryptionID  `cbor:"encryption"`

	// KDF is present iff Encryption != EncryptionNone.
	KDF *KDFParams `cbor:"kdf,omitempty"`
	// KeyCheck rejects a wrong password at open time.
	KeyCheck []byte `cbor:"key_check,omitempty"`
}

func (h *Header) validate() error {
	if h.Format != Version {
		return newError(KindUnsupported, fmt.Sprintf("dloom: unsupported format version %d", h.Format))
	}
	if h.Base < 2 || h.Base > 36 {
		return newError(KindFormat, fmt.Sprintf("dloom: base %d out of range", h.Base))
	}
	if h.ChunkSize <= 0 {
		return newError(KindFormat, fmt.Sprintf("dloom: chunk size must be positive, got %d", h.ChunkSize))
	}
	if h.Requested < UnboundedDigits {
		return newError(KindFormat, fmt.Sprintf("dloom: bad requested digit count %d", h.Requested))
	}
	if !h.Hash.valid() {
		return newError(KindUnsupported, fmt.Sprintf("dloom: unknown hash id %d", h.Hash))
	}
	if !h.Compression.valid() {
		return newError(KindUnsupported, fmt.Sprintf("dloom: unknown compression id %d", h.Compression))
	}
	if !h.Encryption.valid() {
		return newError(KindUnsupported, fmt.Sprintf("dloom: unknown encryption id %d", h.Encryption))
	}
	if h.Encryption != EncryptionNone && h.KDF == nil {
		return newError(KindFormat, "dloom: encryption enabled but no KDF parameters")
	}
	return nil
}

// Deterministic CBOR: the header hash is computed over these bytes and
// authenticated into every chunk's AAD, so the encoding must be
// byte-stable for identical logical headers.
var headerEncMode cbor.EncMode
var headerDecMode cbor.DecMode

func init() {
	var err error
	headerEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("dloom: CBOR encoder initialization failed: " + err.Error())
	}
	headerDecMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("dloom: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodeHeader(h *Header) ([]byte, error) {
	return headerEncMode.Marshal(h)
}

func decodeHeader(data []byte) (*Header, error) {
	var h Header
	if err := headerDecMode.Unmarshal(data, &h); err != nil {
		return nil, wrapError(KindFormat, "dloom: malformed header", err)
	}
	return &h, nil
}

func hashHeader(encoded []byte) [HashSize]byte {
	return sha256.Sum256(encoded)
}

// Finalization block: fixed-size totals rewritten when the stream
// closes. A zero block (all fields zero, complete=0) marks a container
// whose writer never finalized.
//
//	[total digits u64][chunk count u64][directory offset u64][complete u8]
const finalBlockSize = 8 + 8 + 8 + 1

type finalBlock struct {
	totalDigits uint64
	chunkCount  uint64
	dirOffset   uint64
	complete    bool
}

func (f finalBlock) encode() [finalBlockSize]byte {
	var b [finalBlockSize]byte
	binary.BigEndian.PutUint64(b[0:], f.totalDigits)
	binary.BigEndian.PutUint64(b[8:], f.chunkCount)
	binary.BigEndian.PutUint64(b[16:], f.dirOffset)
	if f.complete {
		b[24] = 1
	}
	return b
}

func decodeFinalBlock(b []byte) finalBlock {
	return finalBlock{
		totalDigits: binary.BigEndian.Uint64(b[0:]),
		chunkCount:  binary.BigEndian.Uint64(b[8:]),
		dirOffset:   binary.BigEndian.Uint64(b[16:]),
		complete:    b[24] == 1,
	}
}

// Directory entry: per-chunk stored offset and lengths, appended after
// the last chunk at finalization and located through the finalization
// block. Random-access reads seek straight to any chunk.
//
//	[stored offset u64][stored length u32][raw length u32]
const dirEntrySize = 8 + 4 + 4

type dirEntry struct {
	offset    uint64
	storedLen uint32
	rawLen    uint32
}

func (d dirEntry) encode() [dirEntrySize]byte {
	var b [dirEntrySize]byte
	binary.BigEndian.PutUint64(b[0:], d.offset)
	binary.BigEndian.PutUint32(b[8:], d.storedLen)
	binary.BigEndian.PutUint32(b[12:], d.rawLen)
	return b
}

func decodeDirEntry(b []byte) dirEntry {
	return dirEntry{
		offset:    binary.BigEndian.Uint64(b[0:]),
		storedLen: binary.BigEndian.Uint32(b[8:]),
		rawLen:    binary.BigEndian.Uint32(b[12:]),
	}
}

// Chunk record layout (at each directory offset):
//
//	[plaintext hash 32][raw length u32][stored length u32]
//	[compression u8][encryption u8][nonce 12 if encrypted]
//	[stored payload]
//
// The AEAD authentication tag rides at the tail of the stored payload.
const chunkFixedSize = HashSize + 4 + 4 + 1 + 1

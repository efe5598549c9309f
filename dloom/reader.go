package dloom

import (
	"bytes"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Reader provides sequential and random-access reads over a finalized
// (or interrupted) container. Chunks are immutable and independently
// verifiable, so a Reader is safe for concurrent Chunk and ReadDigits
// calls.
type Reader struct {
	src        io.ReaderAt
	size       int64
	header     *Header
	headerHash [HashSize]byte
	key        []byte
	fin        finalBlock
	dir        []dirEntry
	dataStart  int64
	closer     io.Closer
}

// ReaderOptions configures container opening.
type ReaderOptions struct {
	// Password decrypts an encrypted container. Required iff the
	// container's header enables encryption; checked at open time.
	Password string
}

// OpenFile opens a container file.
func OpenFile(path string, opts ReaderOptions) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	r, err := Open(f, st.Size(), opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// Open parses and validates a container from a random-access byte
// source. The header is decoded and checked (version, algorithm ids),
// the password is verified against the stored key check, and the chunk
// directory is loaded. A container whose writer never finalized (zero
// finalization block) is recovered by scanning the chunk records
// sequentially; it always reports Complete() == false.
func Open(src io.ReaderAt, size int64, opts ReaderOptions) (*Reader, error) {
	prefix := make([]byte, len(Magic)+1+4)
	if _, err := src.ReadAt(prefix, 0); err != nil {
		return nil, wrapError(KindFormat, "dloom: container too short", err)
	}
	if !bytes.Equal(prefix[:len(Magic)], Magic[:]) {
		return nil, newError(KindFormat, "dloom: bad magic")
	}
	if prefix[len(Magic)] != Version {
		return nil, newError(KindUnsupported, fmt.Sprintf("dloom: unsupported container version %d", prefix[len(Magic)]))
	}
	headerLen := binary.BigEndian.Uint32(prefix[len(Magic)+1:])
	if headerLen == 0 || headerLen > maxHeaderLen {
		return nil, newError(KindFormat, fmt.Sprintf("dloom: implausible header length %d", headerLen))
	}
	encoded := make([]byte, headerLen)
	headerPos := int64(len(prefix))
	if _, err := src.ReadAt(encoded, headerPos); err != nil {
		return nil, wrapError(KindFormat, "dloom: truncated header", err)
	}
	header, err := decodeHeader(encoded)
	if err != nil {
		return nil, err
	}
	if err := header.validate(); err != nil {
		return nil, err
	}

	r := &Reader{src: src, size: size, header: header, headerHash: hashHeader(encoded)}

	if header.Encryption != EncryptionNone {
		if opts.Password == "" {
			return nil, newError(KindAuthentication, "dloom: password required for encrypted container")
		}
		key, err := header.KDF.DeriveKey(opts.Password)
		if err != nil {
			return nil, err
		}
		if len(header.KeyCheck) == keyCheckSize &&
			subtle.ConstantTimeCompare(keyCheck(key), header.KeyCheck) != 1 {
			return nil, newError(KindAuthentication, "dloom: wrong password")
		}
		r.key = key
	}

	finPos := headerPos + int64(headerLen)
	finBytes := make([]byte, finalBlockSize)
	if _, err := src.ReadAt(finBytes, finPos); err != nil {
		return nil, wrapError(KindFormat, "dloom: truncated finalization block", err)
	}
	r.fin = decodeFinalBlock(finBytes)

	chunksStart := finPos + finalBlockSize
	r.dataStart = chunksStart
	if r.fin.dirOffset != 0 {
		if err := r.loadDirectory(); err != nil {
			return nil, err
		}
	} else if err := r.scanChunks(chunksStart); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) loadDirectory() error {
	count := r.fin.chunkCount
	need := int64(count) * dirEntrySize
	if int64(r.fin.dirOffset)+need > r.size {
		return newError(KindFormat, "dloom: chunk directory extends past end of container")
	}
	raw := make([]byte, need)
	if _, err := r.src.ReadAt(raw, int64(r.fin.dirOffset)); err != nil {
		return wrapError(KindFormat, "dloom: reading chunk directory", err)
	}
	r.dir = make([]dirEntry, count)
	for i := range r.dir {
		r.dir[i] = decodeDirEntry(raw[i*dirEntrySize:])
	}
	return nil
}

// scanChunks rebuilds the directory of an unfinalized container by
// walking the self-delimiting chunk records. Totals are recovered from
// the records themselves; the container is reported incomplete.
func (r *Reader) scanChunks(start int64) error {
	pos := start
	var digits uint64
	head := make([]byte, chunkFixedSize)
	for pos+int64(chunkFixedSize) <= r.size {
		if _, err := r.src.ReadAt(head, pos); err != nil {
			break
		}
		rawLen := binary.BigEndian.Uint32(head[HashSize:])
		storedLen := binary.BigEndian.Uint32(head[HashSize+4:])
		enc := EncryptionID(head[HashSize+9])
		recordLen := int64(chunkFixedSize) + int64(storedLen)
		if enc != EncryptionNone {
			recordLen += nonceSize
		}
		if pos+recordLen > r.size {
			break // trailing partial record from an interrupted write
		}
		r.dir = append(r.dir, dirEntry{offset: uint64(pos), storedLen: storedLen, rawLen: rawLen})
		digits += uint64(rawLen)
		pos += recordLen
	}
	r.fin = finalBlock{totalDigits: digits, chunkCount: uint64(len(r.dir)), complete: false}
	return nil
}

// Header returns the container's self-description.
func (r *Reader) Header() Header { return *r.header }

// TotalDigits returns the number of digit characters the container
// holds.
func (r *Reader) TotalDigits() uint64 { return r.fin.totalDigits }

// ChunkCount returns the number of chunks.
func (r *Reader) ChunkCount() int { return len(r.dir) }

// Complete reports whether the stream was finalized as complete. A
// cancelled or crashed stream reads back with Complete() == false and
// must never be presented as the full requested output.
func (r *Reader) Complete() bool { return r.fin.complete }

// Chunk fetches, decrypts, decompresses, and hash-verifies chunk i.
// An authentication or digest failure is fatal for this chunk only:
// the error identifies the chunk and other chunks remain readable.
func (r *Reader) Chunk(i int) ([]byte, error) {
	if i < 0 || i >= len(r.dir) {
		return nil, newError(KindState, fmt.Sprintf("dloom: chunk index %d out of range [0,%d)", i, len(r.dir)))
	}
	e := r.dir[i]
	recordLen := int64(chunkFixedSize) + int64(e.storedLen)
	hasNonce := r.header.Encryption != EncryptionNone
	if hasNonce {
		recordLen += nonceSize
	}
	record := make([]byte, recordLen)
	if _, err := r.src.ReadAt(record, int64(e.offset)); err != nil {
		return nil, newChunkError(KindFormat, i, fmt.Sprintf("dloom: chunk %d: short read", i), err)
	}

	var digest [HashSize]byte
	copy(digest[:], record[:HashSize])
	rawLen := binary.BigEndian.Uint32(record[HashSize:])
	storedLen := binary.BigEndian.Uint32(record[HashSize+4:])
	comp := CompressionID(record[HashSize+8])
	enc := EncryptionID(record[HashSize+9])
	if rawLen != e.rawLen || storedLen != e.storedLen {
		return nil, newChunkError(KindFormat, i, fmt.Sprintf("dloom: chunk %d: record disagrees with directory", i), nil)
	}
	if enc != r.header.Encryption || comp != r.header.Compression {
		return nil, newChunkError(KindFormat, i, fmt.Sprintf("dloom: chunk %d: algorithm flags disagree with header", i), nil)
	}

	body := record[chunkFixedSize:]
	var nonce []byte
	if hasNonce {
		nonce = body[:nonceSize]
		body = body[nonceSize:]
	}

	payload := body
	if enc != EncryptionNone {
		aead, err := enc.aead(r.key)
		if err != nil {
			return nil, err
		}
		aad := chunkAAD(r.headerHash, uint64(i))
		payload, err = aead.Open(nil, nonce, payload, aad)
		if err != nil {
			return nil, newChunkError(KindChunkIntegrity, i,
				fmt.Sprintf("dloom: chunk %d: authentication failed", i), err)
		}
	}

	raw, err := comp.decompress(payload, int(rawLen))
	if err != nil {
		return nil, newChunkError(KindChunkIntegrity, i,
			fmt.Sprintf("dloom: chunk %d: decompression failed", i), err)
	}

	if got := r.header.Hash.digest(raw); got != digest {
		return nil, newChunkError(KindChunkIntegrity, i,
			fmt.Sprintf("dloom: chunk %d: digest mismatch: got %x, stored %x", i, got[:8], digest[:8]), nil)
	}
	return raw, nil
}

// ReadDigits returns digit characters [offset, offset+count) using
// O(1) offset-to-chunk arithmetic over the fixed chunk size.
func (r *Reader) ReadDigits(offset, count uint64) ([]byte, error) {
	if offset+count > r.fin.totalDigits {
		return nil, newError(KindState, fmt.Sprintf(
			"dloom: digit range [%d,%d) exceeds container total %d", offset, offset+count, r.fin.totalDigits))
	}
	out := make([]byte, 0, count)
	chunkSize := uint64(r.header.ChunkSize)
	for count > 0 {
		idx := int(offset / chunkSize)
		within := offset % chunkSize
		raw, err := r.Chunk(idx)
		if err != nil {
			return nil, err
		}
		take := uint64(len(raw)) - within
		if take > count {
			take = count
		}
		out = append(out, raw[within:within+take]...)
		offset += take
		count -= take
	}
	return out, nil
}

// ChunkInfo describes a chunk's position and sizes inside the container.
type ChunkInfo struct {
	Offset    uint64
	StoredLen uint32
	RawLen    uint32
}

// ChunkInfo returns size and placement metadata for chunk i without
// reading its payload.
func (r *Reader) ChunkInfo(i int) (ChunkInfo, error) {
	if i < 0 || i >= len(r.dir) {
		return ChunkInfo{}, newError(KindState, fmt.Sprintf("dloom: chunk index %d out of range [0,%d)", i, len(r.dir)))
	}
	e := r.dir[i]
	return ChunkInfo{Offset: e.offset, StoredLen: e.storedLen, RawLen: e.rawLen}, nil
}

// RawPrefix returns the container bytes before the first chunk record:
// magic, version, header length, header, and finalization block.
func (r *Reader) RawPrefix() ([]byte, error) {
	b := make([]byte, r.dataStart)
	if _, err := r.src.ReadAt(b, 0); err != nil {
		return nil, wrapError(KindFormat, "dloom: reading container prefix", err)
	}
	return b, nil
}

// RawChunk returns the complete record bytes of chunk i, still in their
// stored (possibly compressed and encrypted) form.
func (r *Reader) RawChunk(i int) ([]byte, error) {
	if i < 0 || i >= len(r.dir) {
		return nil, newError(KindState, fmt.Sprintf("dloom: chunk index %d out of range [0,%d)", i, len(r.dir)))
	}
	e := r.dir[i]
	recordLen := int64(chunkFixedSize) + int64(e.storedLen)
	if r.header.Encryption != EncryptionNone {
		recordLen += nonceSize
	}
	b := make([]byte, recordLen)
	if _, err := r.src.ReadAt(b, int64(e.offset)); err != nil {
		return nil, newChunkError(KindFormat, i, fmt.Sprintf("dloom: chunk %d: short read", i), err)
	}
	return b, nil
}

// RawTrailer returns the bytes after the last chunk record (the chunk
// directory). It is empty for an unfinalized container.
func (r *Reader) RawTrailer() ([]byte, error) {
	if r.fin.dirOffset == 0 {
		return nil, nil
	}
	b := make([]byte, r.size-int64(r.fin.dirOffset))
	if _, err := r.src.ReadAt(b, int64(r.fin.dirOffset)); err != nil {
		return nil, wrapError(KindFormat, "dloom: reading container trailer", err)
	}
	return b, nil
}

// Close releases the underlying file when the Reader owns one.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

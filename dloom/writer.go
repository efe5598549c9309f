package dloom

import (
	"encoding/binary"
	"fmt"
	"io"
)

type writerState int

const (
	stateOpened writerState = iota
	stateWriting
	stateClosed
)

// Writer serializes a digit stream into a chunked container. Digits
// are buffered until a full chunk accumulates; each chunk is hashed,
// transformed, and appended as one write, so a partially written chunk
// can never reach the backing store. A Writer is single-producer: one
// goroutine feeds it until Close.
type Writer struct {
	dst        io.WriteSeeker
	header     *Header
	encoded    []byte
	headerHash [HashSize]byte
	key        []byte

	state      writerState
	buf        []byte
	dir        []dirEntry
	offset     uint64
	digits     uint64
	incomplete bool
}

// WriterOptions configures container creation.
type WriterOptions struct {
	// Password is the encryption password. Required iff the header
	// enables encryption.
	Password string
}

// NewWriter stages a container on dst. The header is validated and
// staged immediately but the prefix bytes are not flushed until the
// first digit write (or Close, for an empty container). If the header
// enables encryption and carries no KDF parameters, default scrypt
// parameters with a fresh salt are filled in.
func NewWriter(dst io.WriteSeeker, header Header, opts WriterOptions) (*Writer, error) {
	h := header
	if h.Format == 0 {
		h.Format = Version
	}
	if h.Hash == 0 {
		h.Hash = HashSHA256
	}
	if h.Encryption != EncryptionNone && h.KDF == nil {
		kdf, err := DefaultScryptParams()
		if err != nil {
			return nil, err
		}
		h.KDF = kdf
	}
	if err := h.validate(); err != nil {
		return nil, err
	}

	w := &Writer{dst: dst, header: &h, state: stateOpened}
	if h.Encryption != EncryptionNone {
		if opts.Password == "" {
			return nil, newError(KindAuthentication, "dloom: password required for encrypted container")
		}
		key, err := h.KDF.DeriveKey(opts.Password)
		if err != nil {
			return nil, err
		}
		w.key = key
		h.KeyCheck = keyCheck(key)
	} else if opts.Password != "" {
		return nil, newError(KindState, "dloom: password given but encryption disabled")
	}

	encoded, err := encodeHeader(&h)
	if err != nil {
		return nil, wrapError(KindFormat, "dloom: encoding header", err)
	}
	if len(encoded) > maxHeaderLen {
		return nil, newError(KindFormat, "dloom: header too large")
	}
	w.encoded = encoded
	w.headerHash = hashHeader(encoded)
	return w, nil
}

// Header returns the staged header.
func (w *Writer) Header() Header { return *w.header }

// DigitsWritten returns the number of digit bytes accepted so far.
func (w *Writer) DigitsWritten() uint64 { return w.digits }

// flushPrefix writes magic, version, header, and a zero finalization
// block. Called once, on the first write or at Close.
func (w *Writer) flushPrefix() error {
	if w.state != stateOpened {
		return nil
	}
	var head []byte
	head = append(head, Magic[:]...)
	head = append(head, Version)
	head = binary.BigEndian.AppendUint32(head, uint32(len(w.encoded)))
	head = append(head, w.encoded...)
	var zero [finalBlockSize]byte
	head = append(head, zero[:]...)
	if _, err := w.dst.Write(head); err != nil {
		return fmt.Errorf("dloom: writing container prefix: %w", err)
	}
	w.offset = uint64(len(head))
	w.state = stateWriting
	return nil
}

// WriteDigits appends digit characters to the stream, slicing them
// into fixed-size chunks as they accumulate.
func (w *Writer) WriteDigits(p []byte) error {
	switch w.state {
	case stateClosed:
		return newError(KindState, "dloom: write after close")
	case stateOpened:
		if err := w.flushPrefix(); err != nil {
			return err
		}
	}
	w.buf = append(w.buf, p...)
	w.digits += uint64(len(p))
	for len(w.buf) >= w.header.ChunkSize {
		if err := w.writeChunk(w.buf[:w.header.ChunkSize]); err != nil {
			return err
		}
		w.buf = w.buf[w.header.ChunkSize:]
	}
	return nil
}

// writeChunk hashes, compresses, encrypts, and appends one chunk. The
// chunk is assembled fully in memory and written with a single Write
// call.
func (w *Writer) writeChunk(raw []byte) error {
	digest := w.header.Hash.digest(raw)

	payload, err := w.header.Compression.compress(raw)
	if err != nil {
		return fmt.Errorf("dloom: compressing chunk %d: %w", len(w.dir), err)
	}

	var nonce []byte
	if w.header.Encryption != EncryptionNone {
		nonce, err = randomNonce()
		if err != nil {
			return err
		}
		aead, err := w.header.Encryption.aead(w.key)
		if err != nil {
			return err
		}
		aad := chunkAAD(w.headerHash, uint64(len(w.dir)))
		payload = aead.Seal(nil, nonce, payload, aad)
	}

	record := make([]byte, 0, chunkFixedSize+len(nonce)+len(payload))
	record = append(record, digest[:]...)
	record = binary.BigEndian.AppendUint32(record, uint32(len(raw)))
	record = binary.BigEndian.AppendUint32(record, uint32(len(payload)))
	record = append(record, byte(w.header.Compression), byte(w.header.Encryption))
	record = append(record, nonce...)
	record = append(record, payload...)

	if _, err := w.dst.Write(record); err != nil {
		return fmt.Errorf("dloom: writing chunk %d: %w", len(w.dir), err)
	}
	w.dir = append(w.dir, dirEntry{
		offset:    w.offset,
		storedLen: uint32(len(payload)),
		rawLen:    uint32(len(raw)),
	})
	w.offset += uint64(len(record))
	return nil
}

// MarkIncomplete records that the stream was cut short (cancellation
// or upstream failure). The finalized container stays readable and
// reports Complete=false with exactly the digits written.
func (w *Writer) MarkIncomplete() { w.incomplete = true }

// Close flushes any partial final chunk, appends the chunk directory,
// and rewrites the finalization block with the totals. After Close the
// writer accepts no further writes.
func (w *Writer) Close() error {
	if w.state == stateClosed {
		return nil
	}
	if err := w.flushPrefix(); err != nil {
		return err
	}
	if len(w.buf) > 0 {
		if err := w.writeChunk(w.buf); err != nil {
			return err
		}
		w.buf = nil
	}

	dirOffset := w.offset
	dir := make([]byte, 0, len(w.dir)*dirEntrySize)
	for _, e := range w.dir {
		b := e.encode()
		dir = append(dir, b[:]...)
	}
	if _, err := w.dst.Write(dir); err != nil {
		return fmt.Errorf("dloom: writing chunk directory: %w", err)
	}

	complete := !w.incomplete
	if w.header.Requested >= 0 && w.digits != uint64(w.header.Requested) {
		complete = false
	}
	fin := finalBlock{
		totalDigits: w.digits,
		chunkCount:  uint64(len(w.dir)),
		dirOffset:   dirOffset,
		complete:    complete,
	}
	finPos := int64(len(Magic) + 1 + 4 + len(w.encoded))
	if _, err := w.dst.Seek(finPos, io.SeekStart); err != nil {
		return fmt.Errorf("dloom: seeking to finalization block: %w", err)
	}
	fb := fin.encode()
	if _, err := w.dst.Write(fb[:]); err != nil {
		return fmt.Errorf("dloom: finalizing container: %w", err)
	}
	if _, err := w.dst.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("dloom: restoring write position: %w", err)
	}
	w.state = stateClosed
	return nil
}

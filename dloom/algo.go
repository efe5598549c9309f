package dloom

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"
)

// HashID identifies the plaintext chunk hash algorithm. Stored in the
// container header; protocol constants.
type HashID uint8

const (
	HashSHA256 HashID = 1
	HashBLAKE3 HashID = 2
)

// HashSize is the digest length of both supported hash algorithms.
const HashSize = 32

func (h HashID) String() string {
	switch h {
	case HashSHA256:
		return "sha256"
	case HashBLAKE3:
		return "blake3"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(h))
	}
}

// ParseHashID resolves a hash algorithm by name.
func ParseHashID(name string) (HashID, error) {
	switch name {
	case "", "sha256":
		return HashSHA256, nil
	case "blake3":
		return HashBLAKE3, nil
	}
	return 0, newError(KindUnsupported, fmt.Sprintf("dloom: unknown hash algorithm %q", name))
}

func (h HashID) valid() bool { return h == HashSHA256 || h == HashBLAKE3 }

// digest hashes a plaintext chunk payload.
func (h HashID) digest(data []byte) [HashSize]byte {
	switch h {
	case HashBLAKE3:
		return blake3.Sum256(data)
	default:
		return sha256.Sum256(data)
	}
}

// CompressionID identifies the per-chunk compression algorithm.
// Stored as one byte in every chunk record; protocol constants.
type CompressionID uint8

const (
	CompressionNone CompressionID = 0
	CompressionGzip CompressionID = 1
	CompressionZstd CompressionID = 2
	CompressionLZ4  CompressionID = 3
)

func (c CompressionID) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompressionID resolves a compression algorithm by name.
func ParseCompressionID(name string) (CompressionID, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "gzip", "gz":
		return CompressionGzip, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	}
	return 0, newError(KindUnsupported, fmt.Sprintf("dloom: unknown compression algorithm %q", name))
}

func (c CompressionID) valid() bool { return c <= CompressionLZ4 }

var zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
var zstdDecoder, _ = zstd.NewReader(nil)

// compress transforms a plaintext payload. CompressionNone returns the
// input unchanged without copying.
func (c CompressionID) compress(data []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionGzip:
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		return zstdEncoder.EncodeAll(data, nil), nil
	case CompressionLZ4:
		var buf bytes.Buffer
		lw := lz4.NewWriter(&buf)
		if _, err := lw.Write(data); err != nil {
			return nil, err
		}
		if err := lw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, newError(KindUnsupported, fmt.Sprintf("dloom: unsupported compression id %d", c))
}

// decompress reverses compress. rawLen is the expected plaintext
// length and is enforced exactly.
func (c CompressionID) decompress(data []byte, rawLen int) ([]byte, error) {
	var out []byte
	switch c {
	case CompressionNone:
		out = data
	case CompressionGzip:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		out, err = io.ReadAll(io.LimitReader(zr, int64(rawLen)+1))
		if err != nil {
			return nil, err
		}
	case CompressionZstd:
		var err error
		out, err = zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, err
		}
	case CompressionLZ4:
		lr := lz4.NewReader(bytes.NewReader(data))
		var err error
		out, err = io.ReadAll(io.LimitReader(lr, int64(rawLen)+1))
		if err != nil {
			return nil, err
		}
	default:
		return nil, newError(KindUnsupported, fmt.Sprintf("dloom: unsupported compression id %d", c))
	}
	if len(out) != rawLen {
		return nil, fmt.Errorf("dloom: decompressed length %d, expected %d", len(out), rawLen)
	}
	return out, nil
}

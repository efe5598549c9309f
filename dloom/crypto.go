package dloom

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// EncryptionID identifies the chunk AEAD algorithm. Protocol
// constants.
type EncryptionID uint8

const (
	EncryptionNone             EncryptionID = 0
	EncryptionAES256GCM        EncryptionID = 1
	EncryptionChaCha20Poly1305 EncryptionID = 2
)

// keySize is the symmetric key length for both AEADs.
const keySize = 32

// nonceSize is the per-chunk nonce length for both AEADs.
const nonceSize = 12

// keyCheckSize is the length of the stored key-check value used to
// reject a wrong password at open time instead of at first chunk.
const keyCheckSize = 8

// keyCheckDomain separates the key-check derivation from any other use
// of the chunk key.
var keyCheckDomain = []byte("digitloom.dloom.kcv.v1")

func (e EncryptionID) String() string {
	switch e {
	case EncryptionNone:
		return "none"
	case EncryptionAES256GCM:
		return "aes-256-gcm"
	case EncryptionChaCha20Poly1305:
		return "chacha20-poly1305"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(e))
	}
}

// ParseEncryptionID resolves an encryption algorithm by name.
func ParseEncryptionID(name string) (EncryptionID, error) {
	switch name {
	case "", "none":
		return EncryptionNone, nil
	case "aes-256-gcm", "aes256gcm", "aes":
		return EncryptionAES256GCM, nil
	case "chacha20-poly1305", "chacha20poly1305", "chacha20":
		return EncryptionChaCha20Poly1305, nil
	}
	return 0, newError(KindUnsupported, fmt.Sprintf("dloom: unknown encryption algorithm %q", name))
}

func (e EncryptionID) valid() bool { return e <= EncryptionChaCha20Poly1305 }

func (e EncryptionID) aead(key []byte) (cipher.AEAD, error) {
	switch e {
	case EncryptionAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case EncryptionChaCha20Poly1305:
		return chacha20poly1305.New(key)
	}
	return nil, newError(KindUnsupported, fmt.Sprintf("dloom: unsupported encryption id %d", e))
}

// KDFParams are the key-derivation parameters stored in the container
// header when encryption is enabled. Name selects the algorithm
// ("scrypt" or "argon2id"); the work-factor fields used depend on it.
type KDFParams struct {
	Name string `cbor:"name"`
	Salt []byte `cbor:"salt"`

	// scrypt work factors.
	N int `cbor:"n,omitempty"`
	R int `cbor:"r,omitempty"`
	P int `cbor:"p,omitempty"`

	// argon2id work factors.
	Time      uint32 `cbor:"time,omitempty"`
	MemoryKiB uint32 `cbor:"memory_kib,omitempty"`
	Threads   uint8  `cbor:"threads,omitempty"`
}

// DefaultScryptParams returns the default scrypt parameters with a
// fresh random salt.
func DefaultScryptParams() (*KDFParams, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	return &KDFParams{Name: "scrypt", Salt: salt, N: 1 << 14, R: 8, P: 1}, nil
}

// DefaultArgon2Params returns the default argon2id parameters with a
// fresh random salt.
func DefaultArgon2Params() (*KDFParams, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	return &KDFParams{Name: "argon2id", Salt: salt, Time: 1, MemoryKiB: 64 * 1024, Threads: 4}, nil
}

// DeriveKey derives the 32-byte chunk key from a password.
func (p *KDFParams) DeriveKey(password string) ([]byte, error) {
	if p == nil {
		return nil, newError(KindFormat, "dloom: encryption enabled but no KDF parameters")
	}
	if len(p.Salt) == 0 {
		return nil, newError(KindFormat, "dloom: empty KDF salt")
	}
	switch p.Name {
	case "scrypt":
		return scrypt.Key([]byte(password), p.Salt, p.N, p.R, p.P, keySize)
	case "argon2id":
		return argon2.IDKey([]byte(password), p.Salt, p.Time, p.MemoryKiB, p.Threads, keySize), nil
	}
	return nil, newError(KindUnsupported, fmt.Sprintf("dloom: unknown KDF %q", p.Name))
}

// keyCheck derives the stored key-check value for a chunk key.
func keyCheck(key []byte) []byte {
	h := sha256.New()
	h.Write(keyCheckDomain)
	h.Write(key)
	return h.Sum(nil)[:keyCheckSize]
}

// chunkAAD binds a chunk ciphertext to its container and position:
// additional authenticated data is the header hash followed by the
// big-endian chunk index, so a chunk cannot be transplanted between
// containers or reordered within one without failing authentication.
func chunkAAD(headerHash [HashSize]byte, index uint64) []byte {
	aad := make([]byte, HashSize+8)
	copy(aad, headerHash[:])
	binary.BigEndian.PutUint64(aad[HashSize:], index)
	return aad
}

func randomNonce() ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return nonce, nil
}

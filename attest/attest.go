// Package attest produces and verifies signed attestations over digit
// containers.
//
// An attestation binds a container's exact bytes (sha256), its stream
// metadata, and a signer key. Both classical Ed25519 and post-quantum
// Dilithium3 signatures are supported; the signed message is the
// deterministic CBOR encoding of the statement, hashed with the
// declared hash algorithm.
package attest

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/sha3"

	"github.com/digitloom/digitloom/dloom"
)

// StatementVersion is the current statement schema version.
const StatementVersion = 1

// Statement is the signed claim: this exact container holds these
// digits.
type Statement struct {
	Version         int    `cbor:"version"`
	Spec            string `cbor:"spec"`
	Base            int    `cbor:"base"`
	TotalDigits     uint64 `cbor:"total_digits"`
	ChunkCount      uint64 `cbor:"chunk_count"`
	Complete        bool   `cbor:"complete"`
	ContainerSHA256 []byte `cbor:"container_sha256"`
}

// Attestation is a statement plus its signature envelope.
type Attestation struct {
	Statement    Statement `cbor:"statement"`
	SignatureAlg string    `cbor:"signature_alg"`
	HashAlg      string    `cbor:"hash_alg"`
	SignerKey    string    `cbor:"signer_key"`
	Signature    []byte    `cbor:"signature"`
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

// StatementForFile builds a statement for the container at path. The
// password is needed only when the container is encrypted; the
// statement covers the stored bytes either way.
func StatementForFile(path, password string) (Statement, error) {
	r, err := dloom.OpenFile(path, dloom.ReaderOptions{Password: password})
	if err != nil {
		return Statement{}, err
	}
	defer r.Close()

	f, err := os.Open(path)
	if err != nil {
		return Statement{}, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return Statement{}, err
	}

	header := r.Header()
	return Statement{
		Version:         StatementVersion,
		Spec:            header.Spec,
		Base:            header.Base,
		TotalDigits:     r.TotalDigits(),
		ChunkCount:      uint64(r.ChunkCount()),
		Complete:        r.Complete(),
		ContainerSHA256: h.Sum(nil),
	}, nil
}

func digestFor(hashAlg string, message []byte) ([]byte, error) {
	switch hashAlg {
	case "sha256":
		s := sha256.Sum256(message)
		return s[:], nil
	case "sha512":
		s := sha512.Sum512(message)
		return s[:], nil
	case "sha3-256":
		s := sha3.Sum256(message)
		return s[:], nil
	default:
		return nil, fmt.Errorf("attest: unsupported hash algorithm %q", hashAlg)
	}
}

func statementDigest(st Statement, hashAlg string) ([]byte, error) {
	msg, err := encMode.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("attest: encoding statement: %w", err)
	}
	return digestFor(hashAlg, msg)
}

// SignEd25519 signs the statement with an Ed25519 private key. The
// hash algorithm is fixed to sha256 for this scheme.
func SignEd25519(st Statement, priv ed25519.PrivateKey) (*Attestation, error) {
	digest, err := statementDigest(st, "sha256")
	if err != nil {
		return nil, err
	}
	pub := priv.Public().(ed25519.PublicKey)
	return &Attestation{
		Statement:    st,
		SignatureAlg: "ed25519",
		HashAlg:      "sha256",
		SignerKey:    "ed25519:" + base64.StdEncoding.EncodeToString(pub),
		Signature:    ed25519.Sign(priv, digest),
	}, nil
}

// SignDilithium3 signs the statement with a Dilithium3 private key.
// hashAlg must be one of: sha256, sha512, sha3-256.
func SignDilithium3(st Statement, hashAlg string, priv *mode3.PrivateKey) (*Attestation, error) {
	if priv == nil {
		return nil, errors.New("attest: missing private key")
	}
	digest, err := statementDigest(st, hashAlg)
	if err != nil {
		return nil, err
	}
	pub := priv.Public().(*mode3.PublicKey)
	pubBytes, err := pub.MarshalBinary()
	if err != nil {
		return nil, err
	}
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(priv, digest, sig)
	return &Attestation{
		Statement:    st,
		SignatureAlg: "dilithium3",
		HashAlg:      hashAlg,
		SignerKey:    "dilithium3:" + base64.StdEncoding.EncodeToString(pubBytes),
		Signature:    sig,
	}, nil
}

// Verify checks the attestation signature against its embedded signer
// key.
func (a *Attestation) Verify() error {
	if a == nil {
		return errors.New("attest: nil attestation")
	}
	alg, enc, ok := strings.Cut(a.SignerKey, ":")
	if !ok {
		return errors.New("attest: invalid signer key encoding")
	}
	if alg != a.SignatureAlg {
		return errors.New("attest: signer key alg does not match signature alg")
	}
	pub, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return fmt.Errorf("attest: invalid signer key base64: %w", err)
	}
	digest, err := statementDigest(a.Statement, a.HashAlg)
	if err != nil {
		return err
	}

	switch a.SignatureAlg {
	case "ed25519":
		if len(pub) != ed25519.PublicKeySize {
			return errors.New("attest: invalid ed25519 public key length")
		}
		if len(a.Signature) != ed25519.SignatureSize {
			return errors.New("attest: invalid ed25519 signature length")
		}
		if !ed25519.Verify(ed25519.PublicKey(pub), digest, a.Signature) {
			return errors.New("attest: signature invalid")
		}
		return nil
	case "dilithium3":
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return fmt.Errorf("attest: invalid dilithium3 public key: %w", err)
		}
		if len(a.Signature) != mode3.SignatureSize {
			return errors.New("attest: invalid dilithium3 signature length")
		}
		if !mode3.Verify(&pk, digest, a.Signature) {
			return errors.New("attest: signature invalid")
		}
		return nil
	default:
		return fmt.Errorf("attest: unsupported signature algorithm %q", a.SignatureAlg)
	}
}

// VerifyAgainstFile verifies the signature and then checks that the
// container at path still matches the signed statement.
func (a *Attestation) VerifyAgainstFile(path, password string) error {
	if err := a.Verify(); err != nil {
		return err
	}
	st, err := StatementForFile(path, password)
	if err != nil {
		return err
	}
	if !bytes.Equal(st.ContainerSHA256, a.Statement.ContainerSHA256) {
		return errors.New("attest: container bytes do not match attested digest")
	}
	if !statementsEqual(st, a.Statement) {
		return errors.New("attest: container metadata does not match statement")
	}
	return nil
}

func statementsEqual(a, b Statement) bool {
	return a.Version == b.Version &&
		a.Spec == b.Spec &&
		a.Base == b.Base &&
		a.TotalDigits == b.TotalDigits &&
		a.ChunkCount == b.ChunkCount &&
		a.Complete == b.Complete &&
		bytes.Equal(a.ContainerSHA256, b.ContainerSHA256)
}

// Encode serializes the attestation with deterministic CBOR.
func (a *Attestation) Encode() ([]byte, error) {
	return encMode.Marshal(a)
}

// Decode parses a CBOR attestation.
func Decode(data []byte) (*Attestation, error) {
	var a Attestation
	if err := decMode.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("attest: decoding attestation: %w", err)
	}
	return &a, nil
}

// GenerateDilithium3Keypair returns a new Dilithium3 keypair.
func GenerateDilithium3Keypair(rand io.Reader) (*mode3.PublicKey, *mode3.PrivateKey, error) {
	return mode3.GenerateKey(rand)
}

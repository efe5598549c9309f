package attest

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/digitloom/digitloom/dloom"
)

func makeContainer(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pi.dloom")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w, err := dloom.NewWriter(f, dloom.Header{
		Spec:      "pi",
		Base:      10,
		ChunkSize: 10,
		Requested: 30,
	}, dloom.WriterOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteDigits([]byte("141592653589793238462643383279")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEd25519SignVerifyRoundTrip(t *testing.T) {
	path := makeContainer(t)
	st, err := StatementForFile(path, "")
	if err != nil {
		t.Fatalf("StatementForFile: %v", err)
	}
	if st.TotalDigits != 30 || !st.Complete {
		t.Fatalf("unexpected statement: %+v", st)
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	att, err := SignEd25519(st, priv)
	if err != nil {
		t.Fatalf("SignEd25519: %v", err)
	}
	if err := att.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := att.VerifyAgainstFile(path, ""); err != nil {
		t.Fatalf("VerifyAgainstFile: %v", err)
	}
}

func TestDilithium3SignVerifyRoundTrip(t *testing.T) {
	path := makeContainer(t)
	st, err := StatementForFile(path, "")
	if err != nil {
		t.Fatal(err)
	}

	_, priv, err := GenerateDilithium3Keypair(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	for _, hashAlg := range []string{"sha256", "sha512", "sha3-256"} {
		att, err := SignDilithium3(st, hashAlg, priv)
		if err != nil {
			t.Fatalf("SignDilithium3(%s): %v", hashAlg, err)
		}
		if err := att.Verify(); err != nil {
			t.Fatalf("Verify(%s): %v", hashAlg, err)
		}
	}
}

func TestVerifyRejectsTamperedStatement(t *testing.T) {
	path := makeContainer(t)
	st, err := StatementForFile(path, "")
	if err != nil {
		t.Fatal(err)
	}
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	att, err := SignEd25519(st, priv)
	if err != nil {
		t.Fatal(err)
	}

	att.Statement.TotalDigits++
	if err := att.Verify(); err == nil {
		t.Fatal("expected verification failure for tampered statement")
	}
}

func TestVerifyAgainstFileDetectsModifiedContainer(t *testing.T) {
	path := makeContainer(t)
	st, err := StatementForFile(path, "")
	if err != nil {
		t.Fatal(err)
	}
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	att, err := SignEd25519(st, priv)
	if err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	raw[len(raw)-1] ^= 0x01
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := att.VerifyAgainstFile(path, ""); err == nil {
		t.Fatal("expected failure for modified container")
	}
}

func TestAttestationEncodeDecode(t *testing.T) {
	path := makeContainer(t)
	st, err := StatementForFile(path, "")
	if err != nil {
		t.Fatal(err)
	}
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	att, err := SignEd25519(st, priv)
	if err != nil {
		t.Fatal(err)
	}

	encoded, err := att.Encode()
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if err := decoded.Verify(); err != nil {
		t.Fatalf("decoded attestation failed verification: %v", err)
	}

	// Deterministic CBOR: re-encoding yields identical bytes.
	again, err := decoded.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != string(encoded) {
		t.Fatal("attestation encoding not deterministic")
	}
}

func TestDeriveRoleSeedDeterministic(t *testing.T) {
	root := make([]byte, ed25519.SeedSize)
	for i := range root {
		root[i] = byte(i)
	}

	a, err := DeriveRoleSeed(root, "publisher")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	b, err := DeriveRoleSeed(root, "publisher")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("expected deterministic derivation")
	}

	c, err := DeriveRoleSeed(root, "mirror")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	if string(a) == string(c) {
		t.Fatalf("expected different roles to derive different seeds")
	}
}

func TestSignerKeyFromSeedFormat(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = 0x42
	}
	signerKey := SignerKeyFromSeed(seed)
	if !strings.HasPrefix(signerKey, "ed25519:") {
		t.Fatalf("expected ed25519 prefix, got %q", signerKey)
	}
	b64 := strings.TrimPrefix(signerKey, "ed25519:")
	pubBytes, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatalf("expected valid base64: %v", err)
	}
	if len(pubBytes) != ed25519.PublicKeySize {
		t.Fatalf("expected %d pubkey bytes, got %d", ed25519.PublicKeySize, len(pubBytes))
	}
}

func TestKeyStoreRoundTrip(t *testing.T) {
	ks, err := CreateKeyStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i * 3)
	}

	rootKey, rootPath, err := ks.InitializeRootKey("ci", seed, false)
	if err != nil {
		t.Fatalf("InitializeRootKey: %v", err)
	}
	info, err := os.Stat(rootPath)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("root key perm = %o, want 600", perm)
	}

	// Re-init without overwrite must fail.
	if _, _, err := ks.InitializeRootKey("ci", seed, false); err == nil {
		t.Fatal("expected error for existing root key")
	}

	roleKey, _, err := ks.DeriveKeyFromRole("ci", "publisher", false)
	if err != nil {
		t.Fatalf("DeriveKeyFromRole: %v", err)
	}
	if roleKey == rootKey {
		t.Fatal("role key should differ from root key")
	}

	exported, err := ks.ExportKey("ci", "publisher")
	if err != nil {
		t.Fatal(err)
	}
	if exported != roleKey {
		t.Fatalf("exported key mismatch: %q vs %q", exported, roleKey)
	}

	list, err := ks.ListKeys()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Identifier != "ci" || len(list[0].Roles) != 1 || list[0].Roles[0] != "publisher" {
		t.Fatalf("unexpected key listing: %+v", list)
	}
}

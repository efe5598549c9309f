package scatter_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/digitloom/digitloom/blockstore/fsstore"
	"github.com/digitloom/digitloom/dloom"
	"github.com/digitloom/digitloom/scatter"
)

const digits = "1415926535897932384626433832795028841971693993751"

func buildContainer(t *testing.T, encryptPassword string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "digits.dloom")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	header := dloom.Header{
		Spec:      "pi",
		Base:      10,
		ChunkSize: 10,
		Requested: dloom.UnboundedDigits,
	}
	if encryptPassword != "" {
		header.Encryption = dloom.EncryptionChaCha20Poly1305
	}
	w, err := dloom.NewWriter(f, header, dloom.WriterOptions{Password: encryptPassword})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteDigits([]byte(digits)); err != nil {
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

func TestScatterGatherRoundTrip(t *testing.T) {
	path := buildContainer(t, "")
	want, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	r, err := dloom.OpenFile(path, dloom.ReaderOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	store, err := fsstore.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	manifestID, m, err := scatter.Scatter(store, r)
	if err != nil {
		t.Fatalf("Scatter: %v", err)
	}
	if len(m.Chunks) != r.ChunkCount() {
		t.Fatalf("manifest chunk count = %d, want %d", len(m.Chunks), r.ChunkCount())
	}
	if m.TotalDigits != uint64(len(digits)) {
		t.Errorf("manifest total digits = %d, want %d", m.TotalDigits, len(digits))
	}

	var out bytes.Buffer
	if _, err := scatter.Gather(store, manifestID, &out); err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if !bytes.Equal(out.Bytes(), want) {
		t.Fatalf("gathered container differs from original: %d vs %d bytes", out.Len(), len(want))
	}

	// Gathered bytes must open as a valid container.
	r2, err := dloom.Open(bytes.NewReader(out.Bytes()), int64(out.Len()), dloom.ReaderOptions{})
	if err != nil {
		t.Fatalf("Open(gathered): %v", err)
	}
	got, err := r2.ReadDigits(0, uint64(len(digits)))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != digits {
		t.Errorf("digits after round trip = %q", got)
	}
}

func TestScatterEncryptedContainerStaysOpaque(t *testing.T) {
	path := buildContainer(t, "hunter2")
	want, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	r, err := dloom.OpenFile(path, dloom.ReaderOptions{Password: "hunter2"})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	store, err := fsstore.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	manifestID, m, err := scatter.Scatter(store, r)
	if err != nil {
		t.Fatal(err)
	}

	// No stored block may contain the plaintext digits.
	ids, err := m.BlockCIDs()
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range ids {
		b, err := store.Get(id)
		if err != nil {
			t.Fatal(err)
		}
		if bytes.Contains(b, []byte(digits[:10])) {
			t.Fatalf("block %s leaks plaintext digits", id)
		}
	}

	var out bytes.Buffer
	if _, err := scatter.Gather(store, manifestID, &out); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.Bytes(), want) {
		t.Fatal("gathered encrypted container differs from original")
	}

	r2, err := dloom.Open(bytes.NewReader(out.Bytes()), int64(out.Len()), dloom.ReaderOptions{Password: "hunter2"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := r2.ReadDigits(0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != digits[:10] {
		t.Errorf("decrypted digits = %q", got)
	}
}

func TestScatterIsDeterministic(t *testing.T) {
	path := buildContainer(t, "")
	r, err := dloom.OpenFile(path, dloom.ReaderOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	storeA, err := fsstore.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	storeB, err := fsstore.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	idA, _, err := scatter.Scatter(storeA, r)
	if err != nil {
		t.Fatal(err)
	}
	idB, _, err := scatter.Scatter(storeB, r)
	if err != nil {
		t.Fatal(err)
	}
	if idA != idB {
		t.Fatalf("manifest CIDs differ: %s vs %s", idA, idB)
	}
}

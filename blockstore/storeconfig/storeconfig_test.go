package storeconfig

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/digitloom/digitloom/blockstore"
	"github.com/digitloom/digitloom/blockstore/registry"

	_ "github.com/digitloom/digitloom/blockstore/fsstore"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stores.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func openDir(t *testing.T, dir string) blockstore.Store {
	t.Helper()
	s, _, err := registry.OpenWithConfig("fs", registry.UsageCLI, map[string]string{"fs-dir": dir})
	if err != nil {
		t.Fatalf("open fs backend: %v", err)
	}
	return s
}

func TestOpenReplicatesWithWritePolicyAll(t *testing.T) {
	dir1, dir2 := t.TempDir(), t.TempDir()
	path := writeConfig(t, `{
		"write_policy": "all",
		"backends": [
			{"name":"fs", "id":"primary", "config":{"fs-dir":"`+dir1+`"}},
			{"name":"fs", "id":"mirror", "config":{"fs-dir":"`+dir2+`"}}
		]
	}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	store, closeFn, err := cfg.Open(registry.UsageCLI, "")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer closeFn()

	id, err := store.Put([]byte("replicated block"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	for i, dir := range []string{dir1, dir2} {
		if !openDir(t, dir).Has(id) {
			t.Errorf("backend %d is missing block %s", i, id)
		}
	}
}

func TestOpenWritePolicyFirstReadsFallBack(t *testing.T) {
	dir1, dir2 := t.TempDir(), t.TempDir()
	path := writeConfig(t, `{
		"backends": [
			{"name":"fs", "id":"primary", "config":{"fs-dir":"`+dir1+`"}},
			{"name":"fs", "id":"mirror", "config":{"fs-dir":"`+dir2+`"}}
		]
	}`)

	// Seed the second backend directly; the composed store must still
	// find the block on read.
	seeded, err := openDir(t, dir2).Put([]byte("mirror-only block"))
	if err != nil {
		t.Fatalf("seed Put failed: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	store, closeFn, err := cfg.Open(registry.UsageCLI, "")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer closeFn()

	if _, err := store.Get(seeded); err != nil {
		t.Errorf("Get(seeded) failed: %v", err)
	}

	id, err := store.Put([]byte("primary-only block"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !openDir(t, dir1).Has(id) {
		t.Error("write did not land in the first backend")
	}
	if openDir(t, dir2).Has(id) {
		t.Error("write_policy first replicated to the second backend")
	}
}

func TestOpenPreferredBackendWritesFirst(t *testing.T) {
	dir1, dir2 := t.TempDir(), t.TempDir()
	path := writeConfig(t, `{
		"backends": [
			{"name":"fs", "id":"primary", "config":{"fs-dir":"`+dir1+`"}},
			{"name":"fs", "id":"mirror", "config":{"fs-dir":"`+dir2+`"}}
		]
	}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	store, closeFn, err := cfg.Open(registry.UsageCLI, "mirror")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer closeFn()

	id, err := store.Put([]byte("preferred write"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !openDir(t, dir2).Has(id) {
		t.Error("write did not land in the preferred backend")
	}

	if _, _, err := cfg.Open(registry.UsageCLI, "nope"); err == nil {
		t.Error("unknown preferred backend was accepted")
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"no backends", Config{}},
		{"missing name", Config{Backends: []BackendConfig{{}}}},
		{"duplicate id", Config{Backends: []BackendConfig{
			{Name: "fs"}, {Name: "fs"},
		}}},
		{"bad policy", Config{WritePolicy: "quorum", Backends: []BackendConfig{{Name: "fs"}}}},
	}
	for _, tc := range cases {
		if err := tc.cfg.Validate(); err == nil {
			t.Errorf("%s: Validate accepted the config", tc.name)
		}
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(""); err == nil {
		t.Error("empty path was accepted")
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: got %v, want ErrNotExist", err)
	}
	path := writeConfig(t, `{"backends": [`)
	if _, err := LoadFile(path); err == nil {
		t.Error("malformed JSON was accepted")
	}
}

package attest

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// KeyStore is a simple local-first Ed25519 seed store for attestation
// signing keys.
//
// Features:
// - Supports Ed25519 seeds only
// - Stores seeds on the local filesystem with 0600 permissions
// - Generates deterministic subkeys based on roles
//
// This is a local convenience surface, not a protocol contract.
type KeyStore struct {
	Directory string
}

type KeyEntry struct {
	Identifier string
	Roles      []string
}

func GetDefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".digitloom", "keys"), nil
}

func CreateKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = GetDefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

// SignerKeyFromSeed returns the signer key string for an Ed25519 seed:
// "ed25519:" + base64(pubkey).
func SignerKeyFromSeed(seed []byte) string {
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return "ed25519:" + base64.StdEncoding.EncodeToString(pub)
}

// DeriveRoleSeed deterministically derives a role-specific Ed25519 seed
// from a root seed.
func DeriveRoleSeed(rootSeed []byte, role string) ([]byte, error) {
	if len(rootSeed) != ed25519.SeedSize {
		return nil, fmt.Errorf("root seed must be %d bytes", ed25519.SeedSize)
	}
	if err := CheckRole(role); err != nil {
		return nil, err
	}

	h := sha256.New()
	_, _ = h.Write(rootSeed)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("digitloom-attest-kms-v1"))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("role:"))
	_, _ = h.Write([]byte(role))
	sum := h.Sum(nil)
	if len(sum) < ed25519.SeedSize {
		return nil, errors.New("kdf output too short")
	}
	out := make([]byte, ed25519.SeedSize)
	copy(out, sum[:ed25519.SeedSize])
	return out, nil
}

func (ks *KeyStore) rootKeyPath(identifier string) string {
	return filepath.Join(ks.Directory, identifier, "root.key")
}

func (ks *KeyStore) roleKeyPath(identifier, role string) string {
	return filepath.Join(ks.Directory, identifier, "roles", role+".key")
}

func CheckKeyName(identifier string) error {
	if identifier == "" {
		return errors.New("identifier cannot be empty")
	}
	for _, char := range identifier {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in identifier", char)
	}
	return nil
}

func CheckRole(role string) error {
	if role == "" {
		return errors.New("role cannot be empty")
	}
	for _, char := range role {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in role", char)
	}
	return nil
}

func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimSpace(seedHex)
	seedHex = strings.TrimPrefix(seedHex, "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(data) != ed25519.SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", ed25519.SeedSize, len(data))
	}
	return data, nil
}

func (ks *KeyStore) saveSeedToFile(filePath string, seed []byte, overwrite bool) error {
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("expected seed length of %d bytes", ed25519.SeedSize)
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(filePath, flags, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		return err
	}
	return file.Close()
}

func (ks *KeyStore) loadSeedFromFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(strings.TrimSpace(string(data)))
}

func (ks *KeyStore) InitializeRootKey(identifier string, seed []byte, overwrite bool) (signerKey string, filePath string, err error) {
	if err := CheckKeyName(identifier); err != nil {
		return "", "", err
	}
	filePath = ks.rootKeyPath(identifier)
	if err := ks.saveSeedToFile(filePath, seed, overwrite); err != nil {
		return "", "", err
	}
	return SignerKeyFromSeed(seed), filePath, nil
}

func (ks *KeyStore) DeriveKeyFromRole(from, role string, overwrite bool) (signerKey string, filePath string, err error) {
	if err := CheckKeyName(from); err != nil {
		return "", "", err
	}
	if err := CheckRole(role); err != nil {
		return "", "", err
	}
	rootSeed, err := ks.loadSeedFromFile(ks.rootKeyPath(from))
	if err != nil {
		return "", "", err
	}
	roleSeed, err := DeriveRoleSeed(rootSeed, role)
	if err != nil {
		return "", "", err
	}
	filePath = ks.roleKeyPath(from, role)
	if err := ks.saveSeedToFile(filePath, roleSeed, overwrite); err != nil {
		return "", "", err
	}
	return SignerKeyFromSeed(roleSeed), filePath, nil
}

func (ks *KeyStore) ExportKey(identifier string, role string) (string, error) {
	if err := CheckKeyName(identifier); err != nil {
		return "", err
	}
	var seed []byte
	var err error
	if role == "" {
		seed, err = ks.loadSeedFromFile(ks.rootKeyPath(identifier))
	} else {
		if err := CheckRole(role); err != nil {
			return "", err
		}
		seed, err = ks.loadSeedFromFile(ks.roleKeyPath(identifier, role))
	}
	if err != nil {
		return "", err
	}
	return SignerKeyFromSeed(seed), nil
}

// LoadSeed resolves a signing seed from the first configured source:
// an inline hex seed, an explicit key file, or a named store entry.
func (ks *KeyStore) LoadSeed(seedHex, signerName, signerRole, keyFile string) ([]byte, error) {
	if seedHex != "" {
		return ParseSeedHex(seedHex)
	}
	if keyFile != "" {
		return ks.loadSeedFromFile(keyFile)
	}
	if signerName != "" {
		if err := CheckKeyName(signerName); err != nil {
			return nil, err
		}
		if signerRole == "" {
			return ks.loadSeedFromFile(ks.rootKeyPath(signerName))
		}
		if err := CheckRole(signerRole); err != nil {
			return nil, err
		}
		return ks.loadSeedFromFile(ks.roleKeyPath(signerName, signerRole))
	}
	return nil, errors.New("no signer provided")
}

func (ks *KeyStore) ListKeys() ([]KeyEntry, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var identifiers []string
	for _, entry := range entries {
		if entry.IsDir() {
			identifiers = append(identifiers, entry.Name())
		}
	}
	sort.Strings(identifiers)

	var result []KeyEntry
	for _, identifier := range identifiers {
		rolesDir := filepath.Join(ks.Directory, identifier, "roles")
		roleEntries, rerr := os.ReadDir(rolesDir)
		var roles []string
		if rerr == nil {
			for _, roleEntry := range roleEntries {
				if roleEntry.IsDir() {
					continue
				}
				if strings.HasSuffix(roleEntry.Name(), ".key") {
					roles = append(roles, strings.TrimSuffix(roleEntry.Name(), ".key"))
				}
			}
			sort.Strings(roles)
		}
		result = append(result, KeyEntry{Identifier: identifier, Roles: roles})
	}
	return result, nil
}

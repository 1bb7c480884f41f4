package keys

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// ErrNoKey is returned (wrapped) when a requested key file does not exist.
var ErrNoKey = errors.New("keys: no such key")

// KeyStore keeps secrets under Directory.
type KeyStore struct {
	Directory string
}

// Entry lists one named key and the roles derived from it.
type Entry struct {
	Name  string
	Roles []string
}

// DefaultDirectory is ~/.covenants/keys.
func DefaultDirectory() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".covenants", "keys"), nil
}

// Open returns a store rooted at dir, or at DefaultDirectory when dir is empty.
func Open(dir string) (*KeyStore, error) {
	if dir == "" {
		var err error
		if dir, err = DefaultDirectory(); err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: dir}, nil
}

func (ks *KeyStore) rootPath(name string) string {
	return filepath.Join(ks.Directory, name, "root.key")
}

func (ks *KeyStore) rolePath(name, role string) string {
	return filepath.Join(ks.Directory, name, "roles", role+".key")
}

// CheckName validates a key name for use as a directory.
func CheckName(name string) error { return checkIdent("name", name) }

// CheckRole validates a role name for use as a file name.
func CheckRole(role string) error { return checkIdent("role", role) }

func checkIdent(what, s string) error {
	if s == "" {
		return fmt.Errorf("keys: %s cannot be empty", what)
	}
	for _, c := range s {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_' {
			continue
		}
		return fmt.Errorf("keys: invalid character %q in %s", c, what)
	}
	return nil
}

// ParseSecretHex decodes a 32-byte hex secret, with or without 0x.
func ParseSecretHex(s string) (*btcec.PrivateKey, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("keys: secret is not hex: %w", err)
	}
	if len(b) != SecretSize {
		return nil, fmt.Errorf("keys: secret must be %d bytes, got %d", SecretSize, len(b))
	}
	k, ok := privateKey(b)
	if !ok {
		return nil, errors.New("keys: secret is not a valid secp256k1 scalar")
	}
	return k, nil
}

// Generate creates a random root key for name.
func (ks *KeyStore) Generate(name string, overwrite bool) (*btcec.PrivateKey, string, error) {
	k, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, "", err
	}
	path, err := ks.Init(name, k, overwrite)
	if err != nil {
		return nil, "", err
	}
	return k, path, nil
}

// Init stores k as the root key of name and returns the file written.
func (ks *KeyStore) Init(name string, k *btcec.PrivateKey, overwrite bool) (string, error) {
	if err := CheckName(name); err != nil {
		return "", err
	}
	path := ks.rootPath(name)
	return path, writeSecret(path, k, overwrite)
}

// ImportWIF stores a wallet-import-format key as the root key of name. The
// key must be encoded for net.
func (ks *KeyStore) ImportWIF(name, wif string, net *chaincfg.Params, overwrite bool) (*btcec.PrivateKey, string, error) {
	w, err := btcutil.DecodeWIF(strings.TrimSpace(wif))
	if err != nil {
		return nil, "", fmt.Errorf("keys: %w", err)
	}
	if !w.IsForNet(net) {
		return nil, "", fmt.Errorf("keys: WIF is not for %s", net.Name)
	}
	path, err := ks.Init(name, w.PrivKey, overwrite)
	if err != nil {
		return nil, "", err
	}
	return w.PrivKey, path, nil
}

// Derive derives the role key of name and stores it.
func (ks *KeyStore) Derive(name, role string, overwrite bool) (*btcec.PrivateKey, string, error) {
	if err := CheckRole(role); err != nil {
		return nil, "", err
	}
	root, err := ks.Load(name, "")
	if err != nil {
		return nil, "", err
	}
	k, err := DeriveRoleKey(root, role)
	if err != nil {
		return nil, "", err
	}
	path := ks.rolePath(name, role)
	if err := writeSecret(path, k, overwrite); err != nil {
		return nil, "", err
	}
	return k, path, nil
}

// Load reads the root key of name, or its role key when role is set.
func (ks *KeyStore) Load(name, role string) (*btcec.PrivateKey, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	path := ks.rootPath(name)
	if role != "" {
		if err := CheckRole(role); err != nil {
			return nil, err
		}
		path = ks.rolePath(name, role)
	}
	return readSecret(path)
}

// LoadFile reads a secret from an arbitrary key file.
func LoadFile(path string) (*btcec.PrivateKey, error) { return readSecret(path) }

// Export describes the public half of a stored key.
func (ks *KeyStore) Export(name, role string, net *chaincfg.Params) (Info, error) {
	k, err := ks.Load(name, role)
	if err != nil {
		return Info{}, err
	}
	return Describe(name, role, k, net)
}

// List returns the stored names and their roles, sorted.
func (ks *KeyStore) List() ([]Entry, error) {
	dirs, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []Entry
	for _, d := range dirs {
		if !d.IsDir() || CheckName(d.Name()) != nil {
			continue
		}
		e := Entry{Name: d.Name()}
		files, err := os.ReadDir(filepath.Join(ks.Directory, d.Name(), "roles"))
		if err == nil {
			for _, f := range files {
				if !f.IsDir() && strings.HasSuffix(f.Name(), ".key") {
					e.Roles = append(e.Roles, strings.TrimSuffix(f.Name(), ".key"))
				}
			}
			sort.Strings(e.Roles)
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func writeSecret(path string, k *btcec.PrivateKey, overwrite bool) error {
	if k == nil {
		return errors.New("keys: missing key")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("keys: %s already exists", path)
		}
		return err
	}
	defer f.Close()
	if _, err := f.WriteString(hex.EncodeToString(k.Serialize()) + "\n"); err != nil {
		return err
	}
	return f.Close()
}

func readSecret(path string) (*btcec.PrivateKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoKey, path)
		}
		return nil, err
	}
	return ParseSecretHex(string(b))
}

// Package localfs is a CAS kept in a directory tree, one file per object.
package localfs

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ipfs/go-cid"

	"xdao.co/covenants/cidutil"
	"xdao.co/covenants/storage"
)

const (
	dirPerm  = 0o700
	filePerm = 0o400
)

// CAS stores each object at <root>/<shard>/<cid>, where shard is the last two
// characters of the CID string. Files are written once and made read-only.
type CAS struct {
	root string
}

var _ storage.CAS = (*CAS)(nil)

// New opens (creating if needed) a store rooted at root.
func New(root string) (*CAS, error) {
	if root == "" {
		return nil, errors.New("localfs: root directory is required")
	}
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("localfs: %w", err)
	}
	return &CAS{root: root}, nil
}

// Root returns the directory the store lives in.
func (c *CAS) Root() string { return c.root }

func (c *CAS) Put(data []byte) (cid.Cid, error) {
	id, err := cidutil.Of(data)
	if err != nil {
		return cid.Undef, err
	}
	path := c.pathFor(id)

	if existing, err := os.ReadFile(path); err == nil {
		if !bytes.Equal(existing, data) {
			return cid.Undef, storage.ErrImmutable
		}
		return id, nil
	} else if !os.IsNotExist(err) {
		return cid.Undef, fmt.Errorf("localfs: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return cid.Undef, fmt.Errorf("localfs: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return cid.Undef, fmt.Errorf("localfs: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return cid.Undef, fmt.Errorf("localfs: write %s: %w", id, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return cid.Undef, fmt.Errorf("localfs: sync %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		return cid.Undef, fmt.Errorf("localfs: %w", err)
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		return cid.Undef, fmt.Errorf("localfs: %w", err)
	}
	// Rename is atomic within a directory, so readers never see a partial object.
	if err := os.Rename(tmpName, path); err != nil {
		return cid.Undef, fmt.Errorf("localfs: %w", err)
	}
	return id, nil
}

func (c *CAS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	b, err := os.ReadFile(c.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("localfs: %w", err)
	}
	if !cidutil.Matches(id, b) {
		return nil, storage.ErrCIDMismatch
	}
	return b, nil
}

func (c *CAS) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := os.Stat(c.pathFor(id))
	return err == nil
}

func (c *CAS) pathFor(id cid.Cid) string {
	s := id.String()
	if len(s) < 2 {
		return filepath.Join(c.root, s)
	}
	return filepath.Join(c.root, s[len(s)-2:], s)
}

// Package ipfs mirrors objects into a local Kubo repository through the
// "ipfs" command-line tool. Objects are written as raw blocks so their IPFS
// CIDs equal the record store's CIDs.
package ipfs

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ipfs/go-cid"

	"xdao.co/covenants/cidutil"
	"xdao.co/covenants/storage"
)

// CAS drives a Kubo repository offline; no daemon is needed.
type CAS struct {
	bin string
	env []string
}

var _ storage.CAS = (*CAS)(nil)

type Options struct {
	// Bin is the ipfs executable; "ipfs" when empty.
	Bin string
	// Repo sets IPFS_PATH for every invocation when non-empty.
	Repo string
	// Env replaces the inherited environment when non-nil.
	Env []string
}

func New(opts Options) *CAS {
	bin := opts.Bin
	if bin == "" {
		bin = "ipfs"
	}
	env := opts.Env
	if opts.Repo != "" {
		if env == nil {
			env = os.Environ()
		}
		env = append(append([]string(nil), env...), "IPFS_PATH="+opts.Repo)
	}
	return &CAS{bin: bin, env: env}
}

func (c *CAS) Put(data []byte) (cid.Cid, error) {
	id, err := cidutil.Of(data)
	if err != nil {
		return cid.Undef, err
	}
	out, err := c.run(data,
		"block", "put",
		"--quiet",
		"--format=raw",
		"--mhtype=sha2-256",
		"--mhlen=32",
		"--cid-version=1",
		"/dev/stdin",
	)
	if err != nil {
		return cid.Undef, err
	}
	got, err := cid.Decode(strings.TrimSpace(string(out)))
	if err != nil {
		return cid.Undef, fmt.Errorf("ipfs: unexpected block put output %q: %w", strings.TrimSpace(string(out)), err)
	}
	if !got.Equals(id) {
		return cid.Undef, storage.ErrCIDMismatch
	}
	return id, nil
}

func (c *CAS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	out, err := c.run(nil, "block", "get", id.String())
	if err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
		}
		return nil, err
	}
	if !cidutil.Matches(id, out) {
		return nil, storage.ErrCIDMismatch
	}
	return out, nil
}

func (c *CAS) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	_, err := c.run(nil, "block", "stat", "--offline", id.String())
	return err == nil
}

func (c *CAS) run(stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.Command(c.bin, args...)
	cmd.Env = c.env
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	out, err := cmd.Output()
	if err == nil {
		return out, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if msg := strings.TrimSpace(string(ee.Stderr)); msg != "" {
			return nil, fmt.Errorf("ipfs %s: %s", args[0]+" "+args[1], msg)
		}
	}
	return nil, fmt.Errorf("ipfs %s: %w", args[0]+" "+args[1], err)
}

func notFound(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "not found")
}

package ipfs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"xdao.co/covenants/cidutil"
	"xdao.co/covenants/storage"
	"xdao.co/covenants/storage/testkit"
)

const fakeRepoEnv = "FAKE_KUBO_REPO"

// TestMain lets the test binary stand in for the ipfs executable: when
// FAKE_KUBO_REPO is set it serves block put/get/stat from that directory.
func TestMain(m *testing.M) {
	if repo := os.Getenv(fakeRepoEnv); repo != "" {
		os.Exit(fakeKubo(repo, os.Args[1:]))
	}
	os.Exit(m.Run())
}

func fakeKubo(repo string, args []string) int {
	if len(args) < 3 || args[0] != "block" {
		fmt.Fprintln(os.Stderr, "usage: block put|get|stat")
		return 2
	}
	last := args[len(args)-1]
	switch args[1] {
	case "put":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		id := cidutil.String(data)
		if err := os.WriteFile(filepath.Join(repo, id), data, 0o600); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Println(id)
		return 0
	case "get", "stat":
		data, err := os.ReadFile(filepath.Join(repo, last))
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error: block was not found locally (offline): ipld: could not find", last)
			return 1
		}
		if args[1] == "get" {
			_, _ = os.Stdout.Write(data)
		}
		return 0
	default:
		return 2
	}
}

func newFake(t *testing.T) (*CAS, string) {
	t.Helper()
	self, err := os.Executable()
	require.NoError(t, err)
	repo := t.TempDir()
	return New(Options{Bin: self, Env: append(os.Environ(), fakeRepoEnv+"="+repo)}), repo
}

func TestKuboConformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		c, _ := newFake(t)
		return c
	})
}

func TestCorruptBlockIsRejected(t *testing.T) {
	c, repo := newFake(t)
	id, err := c.Put([]byte("original"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(repo, id.String()), []byte("tampered"), 0o600))

	_, err = c.Get(id)
	require.ErrorIs(t, err, storage.ErrCIDMismatch)
}

func TestMissingBinary(t *testing.T) {
	c := New(Options{Bin: filepath.Join(t.TempDir(), "no-such-ipfs")})
	_, err := c.Put([]byte("x"))
	require.Error(t, err)
	id, err := cidutil.Of([]byte("x"))
	require.NoError(t, err)
	require.False(t, c.Has(id))
}

func TestRepoSetsIPFSPath(t *testing.T) {
	c := New(Options{Repo: "/srv/kubo", Env: []string{"HOME=/tmp"}})
	require.Equal(t, []string{"HOME=/tmp", "IPFS_PATH=/srv/kubo"}, c.env)
}

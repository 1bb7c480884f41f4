package localfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"xdao.co/covenants/storage"
	"xdao.co/covenants/storage/testkit"
)

func TestConformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		cas, err := New(t.TempDir())
		require.NoError(t, err)
		return cas
	})
}

func TestNewRequiresRoot(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
}

func TestCorruptionIsDetected(t *testing.T) {
	cas, err := New(t.TempDir())
	require.NoError(t, err)

	orig := []byte(`{"kind":"bond"}`)
	id, err := cas.Put(orig)
	require.NoError(t, err)

	path := cas.pathFor(id)
	require.NoError(t, os.Chmod(path, 0o600))
	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0o600))

	_, err = cas.Get(id)
	require.ErrorIs(t, err, storage.ErrCIDMismatch)

	_, err = cas.Put(orig)
	require.ErrorIs(t, err, storage.ErrImmutable)
}

func TestLayout(t *testing.T) {
	root := t.TempDir()
	cas, err := New(root)
	require.NoError(t, err)

	id, err := cas.Put([]byte("raw tx"))
	require.NoError(t, err)

	s := id.String()
	info, err := os.Stat(filepath.Join(root, s[len(s)-2:], s))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(filePerm), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Join(root, s[len(s)-2:]))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
}

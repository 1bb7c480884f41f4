package bundle_test

import (
	"archive/tar"
	"bytes"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/covenants/cidutil"
	"xdao.co/covenants/storage"
	"xdao.co/covenants/storage/bundle"
)

func seeded(t *testing.T, objects ...string) (*storage.Memory, map[string]cid.Cid) {
	t.Helper()
	cas := storage.NewMemory()
	labels := map[string]cid.Cid{}
	for _, o := range objects {
		id, err := cas.Put([]byte(o))
		require.NoError(t, err)
		labels["obj/"+o] = id
	}
	return cas, labels
}

func TestExportIsDeterministic(t *testing.T) {
	cas, labels := seeded(t, "bond", "escrow")

	var a, b bytes.Buffer
	require.NoError(t, bundle.Export(&a, cas, labels))
	require.NoError(t, bundle.Export(&b, cas, labels))
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestRoundTrip(t *testing.T) {
	src, labels := seeded(t, "bond", "escrow")
	// Two labels for one object export a single block.
	labels["alias"] = labels["obj/bond"]

	var buf bytes.Buffer
	require.NoError(t, bundle.Export(&buf, src, labels))

	dst := storage.NewMemory()
	got, err := bundle.Import(&buf, dst)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for name, id := range labels {
		require.True(t, got[name].Equals(id), name)
		data, err := dst.Get(id)
		require.NoError(t, err)
		assert.True(t, cidutil.Matches(id, data))
	}
}

func TestExportMissingObject(t *testing.T) {
	id, err := cidutil.Of([]byte("absent"))
	require.NoError(t, err)
	var buf bytes.Buffer
	err = bundle.Export(&buf, storage.NewMemory(), map[string]cid.Cid{"x": id})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

type entry struct {
	name string
	body []byte
}

func rawTar(t *testing.T, entries ...entry) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: e.name, Mode: 0o644, Size: int64(len(e.body)), ModTime: time.Unix(0, 0), Typeflag: tar.TypeReg}))
		_, err := tw.Write(e.body)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return &buf
}

func TestImportRejects(t *testing.T) {
	good := []byte("payload")
	id := cidutil.String(good)
	index := []byte(`{"version":1,"cidCodec":"raw","multihash":"sha2-256","blocks":[],"labels":{}}`)

	cases := []struct {
		name    string
		entries []entry
		want    error
	}{
		{"forged block", []entry{{"blocks/" + id, []byte("forged")}, {"index.json", index}}, storage.ErrCIDMismatch},
		{"bad cid", []entry{{"blocks/not-a-cid", good}, {"index.json", index}}, storage.ErrInvalidCID},
		{"unknown entry", []entry{{"notes.txt", good}}, nil},
		{"path escape", []entry{{"../blocks/" + id, good}}, nil},
		{"duplicate", []entry{{"blocks/" + id, good}, {"blocks/" + id, good}}, nil},
		{"no index", []entry{{"blocks/" + id, good}}, nil},
		{"dangling label", []entry{{"index.json", []byte(`{"version":1,"labels":{"x":"` + id + `"}}`)}}, nil},
		{"future version", []entry{{"index.json", []byte(`{"version":2}`)}}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := bundle.Import(rawTar(t, tc.entries...), storage.NewMemory())
			require.Error(t, err)
			if tc.want != nil {
				require.ErrorIs(t, err, tc.want)
			}
		})
	}
}

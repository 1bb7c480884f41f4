package deploy_test

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"xdao.co/covenants/deploy"
	"xdao.co/covenants/storage/grpccas"
	"xdao.co/covenants/storage/ipfs"
	"xdao.co/covenants/storage/localfs"
)

func TestOpenMirrorSpecs(t *testing.T) {
	_, _, err := deploy.OpenMirror("  ")
	require.Error(t, err)
	_, _, err = deploy.OpenMirror("grpc://")
	require.Error(t, err)

	r, closeFn, err := deploy.OpenMirror("ipfs:/srv/kubo")
	require.NoError(t, err)
	assert.Nil(t, closeFn)
	assert.Equal(t, "ipfs:/srv/kubo", r.Name)
	assert.IsType(t, &ipfs.CAS{}, r.CAS)

	dir := t.TempDir()
	r, _, err = deploy.OpenMirror(dir)
	require.NoError(t, err)
	assert.IsType(t, &localfs.CAS{}, r.CAS)
}

func countObjects(t *testing.T, root string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func TestOpenDirWithRemoteArchive(t *testing.T) {
	ctx := context.Background()
	remoteDir := t.TempDir()
	remote, err := localfs.New(remoteDir)
	require.NoError(t, err)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := grpc.NewServer()
	grpccas.RegisterArchiveServer(srv, &grpccas.Server{CAS: remote})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	s, err := deploy.OpenDir(ctx, t.TempDir(), []string{"grpc://" + lis.Addr().String()})
	require.NoError(t, err)

	r, err := deploy.NewRecord(newBond(t), &chaincfg.RegressionNetParams, wire.OutPoint{Hash: chainhash.Hash{6}}, 10000, 1, deployedAt)
	require.NoError(t, err)
	_, err = s.Save(ctx, r)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.Equal(t, 1, countObjects(t, remoteDir))
}

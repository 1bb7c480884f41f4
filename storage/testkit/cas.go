// Package testkit holds behavioural tests every storage.CAS must pass.
package testkit

import (
	"sync"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"

	"xdao.co/covenants/cidutil"
	"xdao.co/covenants/storage"
)

// NewCAS returns an empty store private to t.
type NewCAS func(t *testing.T) storage.CAS

func RunCASConformance(t *testing.T, newCAS NewCAS) {
	t.Helper()

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		cas := newCAS(t)
		want := []byte(`{"kind":"escrow","timeout":500}`)

		id, err := cas.Put(want)
		require.NoError(t, err)
		wantID, err := cidutil.Of(want)
		require.NoError(t, err)
		require.True(t, id.Equals(wantID))

		got, err := cas.Get(id)
		require.NoError(t, err)
		require.Equal(t, want, got)
	})

	t.Run("PutIdempotent", func(t *testing.T) {
		cas := newCAS(t)
		a, err := cas.Put([]byte("same"))
		require.NoError(t, err)
		b, err := cas.Put([]byte("same"))
		require.NoError(t, err)
		require.True(t, a.Equals(b))
	})

	t.Run("HasAndNotFound", func(t *testing.T) {
		cas := newCAS(t)
		data := []byte("absent")
		id, err := cidutil.Of(data)
		require.NoError(t, err)

		require.False(t, cas.Has(id))
		_, err = cas.Get(id)
		require.True(t, storage.IsNotFound(err), "got %v", err)

		_, err = cas.Put(data)
		require.NoError(t, err)
		require.True(t, cas.Has(id))
	})

	t.Run("RejectUndefCID", func(t *testing.T) {
		cas := newCAS(t)
		require.False(t, cas.Has(cid.Undef))
		_, err := cas.Get(cid.Undef)
		require.Error(t, err)
	})

	t.Run("TransactionArchive", func(t *testing.T) {
		cas := newCAS(t)
		tx := wire.NewMsgTx(2)
		tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&chainhash.Hash{7}, 1), nil, nil))
		tx.AddTxOut(wire.NewTxOut(9700, []byte{0x76, 0xa9}))
		tx.LockTime = 100

		id, err := storage.PutTx(cas, tx)
		require.NoError(t, err)
		got, err := storage.GetTx(cas, id)
		require.NoError(t, err)
		require.Equal(t, tx.TxHash(), got.TxHash())
	})

	t.Run("ConcurrentPut", func(t *testing.T) {
		cas := newCAS(t)
		data := []byte("contended")
		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := cas.Put(data)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		id, err := cidutil.Of(data)
		require.NoError(t, err)
		got, err := cas.Get(id)
		require.NoError(t, err)
		require.Equal(t, data, got)
	})
}

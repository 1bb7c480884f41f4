package contract

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"

	"xdao.co/covenants/commit"
	"xdao.co/covenants/faults"
)

var escrowOps = []Operation{OpApprove, OpRefund, OpTimeout}

// Escrow holds a requester's payment for a worker. The requester approves
// payment, the worker may refund, and after Timeout the requester may reclaim.
type Escrow struct {
	RequesterPubKey *btcec.PublicKey
	WorkerPubKey    *btcec.PublicKey
	Timeout         uint32
}

var _ Contract = (*Escrow)(nil)

// NewEscrow validates its inputs and returns an Escrow.
func NewEscrow(requester, worker *btcec.PublicKey, timeout uint32) (*Escrow, error) {
	if requester == nil || worker == nil {
		return nil, faults.New(faults.KindMalformed, "COV-DEC-105", "escrow: missing participant public key")
	}
	if err := checkHeight("escrow timeout", timeout); err != nil {
		return nil, err
	}
	return &Escrow{RequesterPubKey: requester, WorkerPubKey: worker, Timeout: timeout}, nil
}

func (e *Escrow) Kind() Kind { return KindEscrow }

func (e *Escrow) Operations() []Operation { return escrowOps }

func (e *Escrow) RequesterHash() [commit.HashSize]byte { return PubKeyHash(e.RequesterPubKey) }

func (e *Escrow) WorkerHash() [commit.HashSize]byte { return PubKeyHash(e.WorkerPubKey) }

func (e *Escrow) RedeemScript() []byte {
	s := txscript.NewScriptBuilder().
		AddInt64(int64(e.Timeout)).
		AddData(e.WorkerPubKey.SerializeCompressed()).
		AddData(e.RequesterPubKey.SerializeCompressed())
	head := mustScript(s)
	return append(head, escrowBodyBytes...)
}

func (e *Escrow) Signer(op Operation) (*btcec.PublicKey, error) {
	switch op {
	case OpApprove, OpTimeout:
		return e.RequesterPubKey, nil
	case OpRefund:
		return e.WorkerPubKey, nil
	default:
		return nil, unknownOp(KindEscrow, op)
	}
}

func (e *Escrow) Recipient(op Operation) ([commit.HashSize]byte, error) {
	switch op {
	case OpApprove:
		return e.WorkerHash(), nil
	case OpRefund, OpTimeout:
		return e.RequesterHash(), nil
	default:
		return [commit.HashSize]byte{}, unknownOp(KindEscrow, op)
	}
}

func (e *Escrow) Threshold(op Operation) uint32 {
	if op == OpTimeout {
		return e.Timeout
	}
	return 0
}

func decodeEscrow(redeem []byte) (*Escrow, error) {
	pushes, err := constructorPushes(redeem, escrowBodyBytes, 3)
	if err != nil {
		return nil, err
	}
	timeout, err := heightArg("escrow timeout", pushes[0])
	if err != nil {
		return nil, err
	}
	worker, err := pubKeyArg("worker", pushes[1])
	if err != nil {
		return nil, err
	}
	requester, err := pubKeyArg("requester", pushes[2])
	if err != nil {
		return nil, err
	}
	return &Escrow{RequesterPubKey: requester, WorkerPubKey: worker, Timeout: timeout}, nil
}

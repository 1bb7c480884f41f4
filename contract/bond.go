package contract

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"

	"xdao.co/covenants/commit"
	"xdao.co/covenants/faults"
)

var bondOps = []Operation{OpRelease, OpSlash}

// Bond locks value that the holder may release after LockUntil, and that the
// slasher may redirect to SlashTo at any time.
type Bond struct {
	HolderPubKey  *btcec.PublicKey
	LockUntil     uint32
	SlasherPubKey *btcec.PublicKey
	SlashTo       [commit.HashSize]byte
}

var _ Contract = (*Bond)(nil)

// NewBond validates its inputs and returns a Bond.
func NewBond(holder *btcec.PublicKey, lockUntil uint32, slasher *btcec.PublicKey, slashTo [commit.HashSize]byte) (*Bond, error) {
	if holder == nil {
		return nil, faults.New(faults.KindMalformed, "COV-DEC-105", "bond: missing holder public key")
	}
	if slasher == nil {
		return nil, faults.New(faults.KindMalformed, "COV-DEC-105", "bond: missing slasher public key")
	}
	if err := checkHeight("bond lock-until", lockUntil); err != nil {
		return nil, err
	}
	return &Bond{HolderPubKey: holder, LockUntil: lockUntil, SlasherPubKey: slasher, SlashTo: slashTo}, nil
}

func (b *Bond) Kind() Kind { return KindBond }

func (b *Bond) Operations() []Operation { return bondOps }

// HolderHash is hash160 of the holder's compressed public key.
func (b *Bond) HolderHash() [commit.HashSize]byte { return PubKeyHash(b.HolderPubKey) }

// RedeemScript pushes the constructor arguments in reverse declaration order,
// leaving the holder key on top, then appends the bond body.
func (b *Bond) RedeemScript() []byte {
	s := txscript.NewScriptBuilder().
		AddData(b.SlashTo[:]).
		AddData(b.SlasherPubKey.SerializeCompressed()).
		AddInt64(int64(b.LockUntil)).
		AddData(b.HolderPubKey.SerializeCompressed())
	head := mustScript(s)
	return append(head, bondBodyBytes...)
}

func (b *Bond) Signer(op Operation) (*btcec.PublicKey, error) {
	switch op {
	case OpRelease:
		return b.HolderPubKey, nil
	case OpSlash:
		return b.SlasherPubKey, nil
	default:
		return nil, unknownOp(KindBond, op)
	}
}

func (b *Bond) Recipient(op Operation) ([commit.HashSize]byte, error) {
	switch op {
	case OpRelease:
		return b.HolderHash(), nil
	case OpSlash:
		return b.SlashTo, nil
	default:
		return [commit.HashSize]byte{}, unknownOp(KindBond, op)
	}
}

func (b *Bond) Threshold(op Operation) uint32 {
	if op == OpRelease {
		return b.LockUntil
	}
	return 0
}

func decodeBond(redeem []byte) (*Bond, error) {
	pushes, err := constructorPushes(redeem, bondBodyBytes, 4)
	if err != nil {
		return nil, err
	}
	slashTo, err := hashArg("slash destination", pushes[0])
	if err != nil {
		return nil, err
	}
	slasher, err := pubKeyArg("slasher", pushes[1])
	if err != nil {
		return nil, err
	}
	lockUntil, err := heightArg("bond lock-until", pushes[2])
	if err != nil {
		return nil, err
	}
	holder, err := pubKeyArg("holder", pushes[3])
	if err != nil {
		return nil, err
	}
	return &Bond{HolderPubKey: holder, LockUntil: lockUntil, SlasherPubKey: slasher, SlashTo: slashTo}, nil
}

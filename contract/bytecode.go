package contract

import (
	"github.com/btcsuite/btcd/txscript"
)

// Opcodes of the target ledger that txscript names differently (or not at all).
const (
	opCat                = 0x7e
	opSplit              = 0x7f
	opNum2Bin            = 0x80
	opBin2Num            = 0x81
	opCheckDataSigVerify = 0xbb
)

// p2pkhPrefix is varint(25) || OP_DUP OP_HASH160 OP_DATA_20.
var p2pkhPrefix = []byte{0x19, txscript.OP_DUP, txscript.OP_HASH160, txscript.OP_DATA_20}

// p2pkhSuffix is OP_EQUALVERIFY OP_CHECKSIG.
var p2pkhSuffix = []byte{txscript.OP_EQUALVERIFY, txscript.OP_CHECKSIG}

// addPayoutCovenant appends the check shared by every spending path.
//
// Entry stack (top first): signerPk destHash amount preimage sig.
// The sequence requires sig to be a valid signature by signerPk over the
// transaction, proves the pushed preimage is that transaction's preimage,
// bounds amount to (0, spent value], and requires the preimage's outputs
// digest to equal hash256(amount8 || p2pkh(destHash)). Leaves a single true.
func addPayoutCovenant(b *txscript.ScriptBuilder) {
	// checkSig(sig, signerPk)
	b.AddOp(txscript.OP_4).AddOp(txscript.OP_PICK)
	b.AddOp(txscript.OP_1).AddOp(txscript.OP_PICK)
	b.AddOp(txscript.OP_CHECKSIGVERIFY)

	// checkDataSig(sig minus hashtype, sha256(preimage), signerPk)
	b.AddOp(txscript.OP_4).AddOp(txscript.OP_PICK)
	b.AddOp(txscript.OP_SIZE).AddOp(txscript.OP_1SUB).AddOp(opSplit).AddOp(txscript.OP_DROP)
	b.AddOp(txscript.OP_4).AddOp(txscript.OP_PICK).AddOp(txscript.OP_SHA256)
	b.AddOp(txscript.OP_2).AddOp(txscript.OP_PICK)
	b.AddOp(opCheckDataSigVerify)
	b.AddOp(txscript.OP_DROP)

	// amount > 0
	b.AddOp(txscript.OP_1).AddOp(txscript.OP_PICK)
	b.AddOp(txscript.OP_0).AddOp(txscript.OP_GREATERTHAN).AddOp(txscript.OP_VERIFY)

	// value (preimage[size-52:size-44]) >= amount
	b.AddOp(txscript.OP_2).AddOp(txscript.OP_PICK)
	b.AddOp(txscript.OP_SIZE).AddInt64(52).AddOp(txscript.OP_SUB).AddOp(opSplit).AddOp(txscript.OP_NIP)
	b.AddOp(txscript.OP_8).AddOp(opSplit).AddOp(txscript.OP_DROP).AddOp(opBin2Num)
	b.AddOp(txscript.OP_2).AddOp(txscript.OP_PICK)
	b.AddOp(txscript.OP_GREATERTHANOREQUAL).AddOp(txscript.OP_VERIFY)

	// hash256(amount8 || p2pkh(destHash))
	b.AddOp(txscript.OP_1).AddOp(txscript.OP_PICK).AddOp(txscript.OP_8).AddOp(opNum2Bin)
	b.AddData(p2pkhPrefix).AddOp(opCat)
	b.AddOp(txscript.OP_1).AddOp(txscript.OP_PICK).AddOp(opCat)
	b.AddData(p2pkhSuffix).AddOp(opCat)
	b.AddOp(txscript.OP_HASH256)

	// == hashOutputs (preimage[size-40:size-8])
	b.AddOp(txscript.OP_3).AddOp(txscript.OP_PICK)
	b.AddOp(txscript.OP_SIZE).AddInt64(40).AddOp(txscript.OP_SUB).AddOp(opSplit).AddOp(txscript.OP_NIP)
	b.AddInt64(32).AddOp(opSplit).AddOp(txscript.OP_DROP)
	b.AddOp(txscript.OP_EQUALVERIFY)

	b.AddOp(txscript.OP_2DROP).AddOp(txscript.OP_2DROP)
	b.AddOp(txscript.OP_1)
}

// bondBody is the bond predicate after its constructor pushes.
//
// Entry stack (top first): holderPk lockUntil slasherPk slashTo selector amount preimage sig.
func bondBody() []byte {
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_4).AddOp(txscript.OP_ROLL)

	// 0: release
	b.AddOp(txscript.OP_DUP).AddOp(txscript.OP_0).AddOp(txscript.OP_NUMEQUAL).AddOp(txscript.OP_IF)
	b.AddOp(txscript.OP_DROP)
	b.AddOp(txscript.OP_1).AddOp(txscript.OP_PICK).AddOp(txscript.OP_CHECKLOCKTIMEVERIFY).AddOp(txscript.OP_DROP)
	b.AddOp(txscript.OP_NIP).AddOp(txscript.OP_NIP).AddOp(txscript.OP_NIP)
	b.AddOp(txscript.OP_DUP).AddOp(txscript.OP_HASH160).AddOp(txscript.OP_SWAP)
	addPayoutCovenant(b)

	// 1: slash
	b.AddOp(txscript.OP_ELSE)
	b.AddOp(txscript.OP_1).AddOp(txscript.OP_NUMEQUALVERIFY)
	b.AddOp(txscript.OP_2DROP)
	addPayoutCovenant(b)
	b.AddOp(txscript.OP_ENDIF)

	return mustScript(b)
}

// escrowBody is the escrow predicate after its constructor pushes.
//
// Entry stack (top first): requesterPk workerPk timeout selector amount preimage sig.
func escrowBody() []byte {
	b := txscript.NewScriptBuilder()
	b.AddOp(txscript.OP_3).AddOp(txscript.OP_ROLL)

	// 0: approve, requester pays worker
	b.AddOp(txscript.OP_DUP).AddOp(txscript.OP_0).AddOp(txscript.OP_NUMEQUAL).AddOp(txscript.OP_IF)
	b.AddOp(txscript.OP_DROP)
	b.AddOp(txscript.OP_ROT).AddOp(txscript.OP_DROP)
	b.AddOp(txscript.OP_SWAP).AddOp(txscript.OP_HASH160).AddOp(txscript.OP_SWAP)
	addPayoutCovenant(b)

	// 1: refund, worker returns funds to requester
	b.AddOp(txscript.OP_ELSE)
	b.AddOp(txscript.OP_DUP).AddOp(txscript.OP_1).AddOp(txscript.OP_NUMEQUAL).AddOp(txscript.OP_IF)
	b.AddOp(txscript.OP_DROP)
	b.AddOp(txscript.OP_ROT).AddOp(txscript.OP_DROP)
	b.AddOp(txscript.OP_HASH160).AddOp(txscript.OP_SWAP)
	addPayoutCovenant(b)

	// 2: timeout, requester reclaims after the deadline
	b.AddOp(txscript.OP_ELSE)
	b.AddOp(txscript.OP_2).AddOp(txscript.OP_NUMEQUALVERIFY)
	b.AddOp(txscript.OP_ROT).AddOp(txscript.OP_CHECKLOCKTIMEVERIFY).AddOp(txscript.OP_DROP)
	b.AddOp(txscript.OP_NIP)
	b.AddOp(txscript.OP_DUP).AddOp(txscript.OP_HASH160).AddOp(txscript.OP_SWAP)
	addPayoutCovenant(b)
	b.AddOp(txscript.OP_ENDIF).AddOp(txscript.OP_ENDIF)

	return mustScript(b)
}

func mustScript(b *txscript.ScriptBuilder) []byte {
	s, err := b.Script()
	if err != nil {
		panic("contract: predicate template: " + err.Error())
	}
	return s
}

// Bodies are fixed; compute them once.
var (
	bondBodyBytes   = bondBody()
	escrowBodyBytes = escrowBody()
)

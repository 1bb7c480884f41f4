// Package deploy persists what is known about deployed covenants: where they
// live on the ledger, who takes part, and how they ended. The ledger remains
// the authority; a record is a local index that can always be rebuilt from
// the redeem script and the chain.
package deploy

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"xdao.co/covenants/chain"
	"xdao.co/covenants/contract"
	"xdao.co/covenants/faults"
)

// Participant roles.
const (
	RoleHolder    = "holder"
	RoleSlasher   = "slasher"
	RoleRequester = "requester"
	RoleWorker    = "worker"
)

type Participant struct {
	Role    string `json:"role"`
	PubKey  string `json:"pubkey"`
	Address string `json:"address"`
}

// Record describes one covenant output.
type Record struct {
	ID      string        `json:"id"`
	Kind    contract.Kind `json:"kind"`
	Network string        `json:"network"`

	Txid   string `json:"txid"`
	Vout   uint32 `json:"vout"`
	Amount int64  `json:"amount"`

	LockHeight    uint32 `json:"lock_height,omitempty"`
	TimeoutHeight uint32 `json:"timeout_height,omitempty"`

	Participants []Participant `json:"participants"`
	SlashAddress string        `json:"slash_address,omitempty"`

	RedeemScript string `json:"redeem_script"`
	Address      string `json:"address"`

	DeployHeight uint32    `json:"deploy_height"`
	DeployedAt   time.Time `json:"deployed_at"`

	Status    contract.State `json:"status"`
	SpendTxid string         `json:"spend_txid,omitempty"`
}

// NewRecord describes c funded at outpoint with amount on net.
func NewRecord(c contract.Contract, net *chaincfg.Params, outpoint wire.OutPoint, amount int64, height uint32, at time.Time) (*Record, error) {
	addr, err := contract.Address(c, net)
	if err != nil {
		return nil, faults.Wrap(faults.KindInternal, "DEPLOY-REC-001", "contract address", err)
	}
	r := &Record{
		Kind:         c.Kind(),
		Network:      chain.NetworkName(net),
		Txid:         outpoint.Hash.String(),
		Vout:         outpoint.Index,
		Amount:       amount,
		RedeemScript: hex.EncodeToString(c.RedeemScript()),
		Address:      addr,
		DeployHeight: height,
		DeployedAt:   at.UTC(),
		Status:       contract.StateOpen,
	}
	switch c := c.(type) {
	case *contract.Bond:
		r.LockHeight = c.LockUntil
		r.Participants = []Participant{
			participant(RoleHolder, c.HolderPubKey, net),
			participant(RoleSlasher, c.SlasherPubKey, net),
		}
		slash, err := btcutil.NewAddressPubKeyHash(c.SlashTo[:], net)
		if err != nil {
			return nil, faults.Wrap(faults.KindInternal, "DEPLOY-REC-001", "slash address", err)
		}
		r.SlashAddress = slash.EncodeAddress()
	case *contract.Escrow:
		r.TimeoutHeight = c.Timeout
		r.Participants = []Participant{
			participant(RoleRequester, c.RequesterPubKey, net),
			participant(RoleWorker, c.WorkerPubKey, net),
		}
	default:
		return nil, faults.New(faults.KindInternal, "DEPLOY-REC-002", fmt.Sprintf("unsupported contract %T", c))
	}
	return r, nil
}

func participant(role string, pub *btcec.PublicKey, net *chaincfg.Params) Participant {
	p := Participant{Role: role, PubKey: hex.EncodeToString(pub.SerializeCompressed())}
	if addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), net); err == nil {
		p.Address = addr.EncodeAddress()
	}
	return p
}

// OutPoint returns the funding outpoint.
func (r *Record) OutPoint() (wire.OutPoint, error) {
	h, err := chainhash.NewHashFromStr(r.Txid)
	if err != nil {
		return wire.OutPoint{}, faults.Wrap(faults.KindMalformed, "DEPLOY-REC-101", "invalid txid", err)
	}
	return wire.OutPoint{Hash: *h, Index: r.Vout}, nil
}

// Participant returns the participant with the given role.
func (r *Record) Participant(role string) (Participant, bool) {
	for _, p := range r.Participants {
		if p.Role == role {
			return p, true
		}
	}
	return Participant{}, false
}

// Params returns the chain parameters of the record's network.
func (r *Record) Params() (*chaincfg.Params, error) {
	p, err := chain.Params(r.Network)
	if err != nil {
		return nil, faults.Wrap(faults.KindMalformed, "DEPLOY-REC-102", "invalid network", err)
	}
	return p, nil
}

// Contract decodes the redeem script and checks every descriptive field
// against it. A record whose fields disagree with its script is rejected.
func (r *Record) Contract() (contract.Contract, error) {
	redeem, err := hex.DecodeString(r.RedeemScript)
	if err != nil {
		return nil, faults.Wrap(faults.KindMalformed, "DEPLOY-REC-103", "redeem script is not hex", err)
	}
	c, err := contract.Decode(redeem)
	if err != nil {
		return nil, err
	}
	net, err := r.Params()
	if err != nil {
		return nil, err
	}
	if _, err := r.OutPoint(); err != nil {
		return nil, err
	}
	if r.Amount <= 0 {
		return nil, mismatch("amount must be positive")
	}
	want, err := NewRecord(c, net, wire.OutPoint{}, r.Amount, r.DeployHeight, r.DeployedAt)
	if err != nil {
		return nil, err
	}
	switch {
	case r.Kind != want.Kind:
		return nil, mismatch(fmt.Sprintf("kind %q, script is %q", r.Kind, want.Kind))
	case r.Address != want.Address:
		return nil, mismatch(fmt.Sprintf("address %s, script hashes to %s", r.Address, want.Address))
	case r.LockHeight != want.LockHeight:
		return nil, mismatch(fmt.Sprintf("lock height %d, script has %d", r.LockHeight, want.LockHeight))
	case r.TimeoutHeight != want.TimeoutHeight:
		return nil, mismatch(fmt.Sprintf("timeout height %d, script has %d", r.TimeoutHeight, want.TimeoutHeight))
	case r.SlashAddress != want.SlashAddress:
		return nil, mismatch(fmt.Sprintf("slash address %s, script pays %s", r.SlashAddress, want.SlashAddress))
	case len(r.Participants) != len(want.Participants):
		return nil, mismatch(fmt.Sprintf("%d participants, script has %d", len(r.Participants), len(want.Participants)))
	}
	for i, p := range want.Participants {
		if r.Participants[i] != p {
			return nil, mismatch(fmt.Sprintf("participant %s does not match the script", p.Role))
		}
	}
	return c, nil
}

// LockingScript returns the output script the record's funding output must carry.
func (r *Record) LockingScript() ([]byte, error) {
	c, err := r.Contract()
	if err != nil {
		return nil, err
	}
	return contract.LockingScript(c), nil
}

// MatchesOutput reports whether out is the funding output the record describes.
func (r *Record) MatchesOutput(out *wire.TxOut) bool {
	script, err := r.LockingScript()
	return err == nil && out != nil && out.Value == r.Amount && bytes.Equal(out.PkScript, script)
}

func mismatch(msg string) error {
	return faults.New(faults.KindMalformed, "DEPLOY-REC-104", "record does not match its redeem script: "+msg)
}

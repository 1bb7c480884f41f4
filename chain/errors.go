package chain

import (
	"errors"

	"xdao.co/covenants/faults"
)

var (
	ErrNotFound = errors.New("chain: not found")
	// ErrRejected marks a broadcast the ledger refused.
	ErrRejected = errors.New("chain: transaction rejected")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// NotFound wraps ErrNotFound as a transport fault carrying what was missing.
func NotFound(what string) error {
	return faults.Wrap(faults.KindTransport, "CHAIN-NF-001", what, ErrNotFound)
}

// Rejected wraps ErrRejected with the ledger's reason.
func Rejected(reason string) error {
	return faults.Wrap(faults.KindTransport, "CHAIN-BC-001", "broadcast rejected: "+reason, ErrRejected)
}

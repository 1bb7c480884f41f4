// Package storage is the content-addressed object store behind deployment
// records and the archive of broadcast transactions.
package storage

import (
	"errors"

	"github.com/ipfs/go-cid"
)

var (
	ErrNotFound    = errors.New("storage: not found")
	ErrInvalidCID  = errors.New("storage: invalid cid")
	ErrCIDMismatch = errors.New("storage: stored bytes do not match cid")
	ErrImmutable   = errors.New("storage: object already stored with different bytes")
)

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// CAS stores immutable objects keyed by the CID of their bytes.
//
// Put is idempotent. Get returns ErrNotFound for an absent CID and never
// returns bytes that do not hash to the requested CID.
type CAS interface {
	Put(data []byte) (cid.Cid, error)
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}

// Package cidutil derives the content identifiers used by the record store:
// CIDv1 with the raw codec over a sha2-256 multihash.
package cidutil

import (
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Of returns the CIDv1 (raw + sha2-256) of data.
func Of(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// String is Of rendered in its default base32 form. It returns "" only if
// hashing fails, which sha2-256 does not.
func String(data []byte) string {
	id, err := Of(data)
	if err != nil {
		return ""
	}
	return id.String()
}

// Parse decodes s and requires the raw codec with a sha2-256 multihash.
func Parse(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, err
	}
	if err := checkPrefix(id); err != nil {
		return cid.Undef, err
	}
	return id, nil
}

// Matches reports whether data hashes to id.
func Matches(id cid.Cid, data []byte) bool {
	got, err := Of(data)
	return err == nil && got.Equals(id)
}

func checkPrefix(id cid.Cid) error {
	p := id.Prefix()
	if p.Version != 1 || p.Codec != cid.Raw || p.MhType != multihash.SHA2_256 {
		return fmt.Errorf("cidutil: %s is not a raw sha2-256 CIDv1", id)
	}
	return nil
}

package storage

import (
	"fmt"

	"github.com/ipfs/go-cid"

	"xdao.co/covenants/cidutil"
)

// Replica is a named CAS taking part in a Mirror.
type Replica struct {
	Name string
	CAS  CAS
}

// Mirror writes every object to all replicas and reads from the first one
// holding it. The first replica is the primary.
type Mirror struct {
	Replicas []Replica
}

var _ CAS = Mirror{}

// PutAll writes data to every replica and reports the CID each returned. Any
// replica disagreeing with the CID of data fails the write with
// ErrCIDMismatch.
func (m Mirror) PutAll(data []byte) (cid.Cid, map[string]cid.Cid, error) {
	if len(m.Replicas) == 0 {
		return cid.Undef, nil, fmt.Errorf("storage: mirror has no replicas")
	}
	want, err := cidutil.Of(data)
	if err != nil {
		return cid.Undef, nil, err
	}
	got := make(map[string]cid.Cid, len(m.Replicas))
	for _, r := range m.Replicas {
		if r.CAS == nil {
			return cid.Undef, nil, fmt.Errorf("storage: replica %q has no store", r.Name)
		}
		id, err := r.CAS.Put(data)
		if err != nil {
			return cid.Undef, got, fmt.Errorf("storage: replica %q: %w", r.Name, err)
		}
		got[r.Name] = id
		if !id.Equals(want) {
			return cid.Undef, got, ErrCIDMismatch
		}
	}
	return want, got, nil
}

func (m Mirror) Put(data []byte) (cid.Cid, error) {
	id, _, err := m.PutAll(data)
	return id, err
}

// Get returns the object from the first replica that has it. A replica
// failing with anything other than ErrNotFound stops the search.
func (m Mirror) Get(id cid.Cid) ([]byte, error) {
	for _, r := range m.Replicas {
		if r.CAS == nil {
			continue
		}
		b, err := r.CAS.Get(id)
		if err == nil {
			return b, nil
		}
		if !IsNotFound(err) {
			return nil, fmt.Errorf("storage: replica %q: %w", r.Name, err)
		}
	}
	return nil, ErrNotFound
}

func (m Mirror) Has(id cid.Cid) bool {
	for _, r := range m.Replicas {
		if r.CAS != nil && r.CAS.Has(id) {
			return true
		}
	}
	return false
}

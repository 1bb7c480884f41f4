package storage

import (
	"bytes"
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/covenants/cidutil"
)

// Memory is an in-process CAS.
type Memory struct {
	mu      sync.RWMutex
	objects map[cid.Cid][]byte
}

var _ CAS = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{objects: make(map[cid.Cid][]byte)}
}

func (m *Memory) Put(data []byte) (cid.Cid, error) {
	id, err := cidutil.Of(data)
	if err != nil {
		return cid.Undef, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if have, ok := m.objects[id]; ok {
		if !bytes.Equal(have, data) {
			return cid.Undef, ErrImmutable
		}
		return id, nil
	}
	m.objects[id] = bytes.Clone(data)
	return id, nil
}

func (m *Memory) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(b), nil
}

func (m *Memory) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[id]
	return ok
}

package contentstore

import (
	"context"
	"sync"

	"github.com/medledger/medledger/pkg/faults"
)

// MemoryStore is the in-memory Store used in tests and in the demo
// driver. It keeps whole payloads per address and supports fault
// injection so degradation paths stay testable.
type MemoryStore struct {
	mu        sync.RWMutex
	payloads  map[Address][]byte
	addresser Addresser
	fault     error
}

// NewMemoryStore returns an empty MemoryStore. A nil addresser
// defaults to content addressing.
func NewMemoryStore(addresser Addresser) *MemoryStore {
	if addresser == nil {
		addresser = ContentAddresser{}
	}
	return &MemoryStore{
		payloads:  make(map[Address][]byte),
		addresser: addresser,
	}
}

func (s *MemoryStore) Put(ctx context.Context, payload []byte) (Address, error) {
	if err := ctx.Err(); err != nil {
		return "", &faults.StorageError{Op: "put", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fault != nil {
		return "", &faults.StorageError{Op: "put", Err: s.fault}
	}

	addr, err := s.addresser.AddressFor(payload)
	if err != nil {
		return "", &faults.StorageError{Op: "put", Err: err}
	}

	if _, ok := s.payloads[addr]; !ok {
		s.payloads[addr] = append([]byte(nil), payload...)
	}
	return addr, nil
}

func (s *MemoryStore) Get(ctx context.Context, addr Address) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &faults.StorageError{Op: "get", Err: err}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.fault != nil {
		return nil, &faults.StorageError{Op: "get", Err: s.fault}
	}

	payload, ok := s.payloads[addr]
	if !ok {
		return nil, &faults.NotFoundError{Kind: "address", ID: string(addr)}
	}
	return append([]byte(nil), payload...), nil
}

// SetFault makes every subsequent call fail with err until cleared
// with SetFault(nil). Test hook for unreachable-backend behavior.
func (s *MemoryStore) SetFault(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = err
}

// Tamper flips one byte of the payload stored under addr, bypassing
// the write-once contract. Test hook for tamper-evidence behavior.
func (s *MemoryStore) Tamper(addr Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, ok := s.payloads[addr]
	if !ok || len(payload) == 0 {
		return false
	}
	payload[len(payload)/2] ^= 0x01
	return true
}

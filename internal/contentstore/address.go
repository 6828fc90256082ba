package contentstore

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// Addresser issues the address a payload is stored under.
type Addresser interface {
	AddressFor(payload []byte) (Address, error)
}

// ContentAddresser derives a CIDv1 (raw codec, SHA2-256) from the
// payload, so identical ciphertext always maps to the same address
// and any mutation changes it. This is the default.
type ContentAddresser struct{}

func (ContentAddresser) AddressFor(payload []byte) (Address, error) {
	sum, err := mh.Sum(payload, mh.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("multihash payload: %w", err)
	}
	return Address(cid.NewCidV1(cid.Raw, sum).String()), nil
}

// RandomAddresser issues a random address per Put, independent of
// content. It preserves the original scheme for compatibility with
// recorded demo data and breaks the dedup guarantee on purpose.
type RandomAddresser struct{}

func (RandomAddresser) AddressFor([]byte) (Address, error) {
	return Address("Qm" + uuid.NewString()), nil
}

package contentstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/medledger/medledger/internal/crypt"
	"github.com/medledger/medledger/internal/kvstore"
	"github.com/medledger/medledger/pkg/faults"
)

const (
	manifestPrefix = "cs:m:"
	chunkPrefix    = "cs:c:"
)

// BadgerStore persists chunked, compressed ciphertext in the shared
// Badger instance.
type BadgerStore struct {
	kv        *kvstore.Store
	addresser Addresser
	log       *logrus.Logger
}

// NewBadgerStore wires a content store over kv. A nil addresser
// defaults to content addressing; a nil logger gets a fresh one.
func NewBadgerStore(kv *kvstore.Store, addresser Addresser, log *logrus.Logger) *BadgerStore {
	if addresser == nil {
		addresser = ContentAddresser{}
	}
	if log == nil {
		log = logrus.New()
	}
	return &BadgerStore{kv: kv, addresser: addresser, log: log}
}

func (s *BadgerStore) Put(ctx context.Context, payload []byte) (Address, error) {
	if err := ctx.Err(); err != nil {
		return "", &faults.StorageError{Op: "put", Err: err}
	}
	if len(payload) == 0 {
		return "", &faults.StorageError{Op: "put", Err: errors.New("empty payload")}
	}

	addr, err := s.addresser.AddressFor(payload)
	if err != nil {
		return "", &faults.StorageError{Op: "put", Err: err}
	}

	manifestKey := []byte(manifestPrefix + string(addr))
	exists, err := s.kv.Has(manifestKey)
	if err != nil {
		return "", &faults.StorageError{Op: "put", Err: err}
	}
	if exists {
		// Write-once: identical content is already stored.
		return addr, nil
	}

	chunks, err := splitPayload(payload)
	if err != nil {
		return "", &faults.StorageError{Op: "put", Err: err}
	}

	manifest := chunkManifest{Size: len(payload)}
	for _, c := range chunks {
		manifest.Chunks = append(manifest.Chunks, c.digest.Hex())

		chunkKey := []byte(chunkPrefix + c.digest.Hex())
		has, err := s.kv.Has(chunkKey)
		if err != nil {
			return "", &faults.StorageError{Op: "put", Err: err}
		}
		if has {
			continue // dedup across payloads
		}
		if err := s.kv.Write(chunkKey, c.data); err != nil {
			return "", &faults.StorageError{Op: "put", Err: err}
		}
	}

	encoded, err := json.Marshal(manifest)
	if err != nil {
		return "", &faults.StorageError{Op: "put", Err: err}
	}
	if err := s.kv.Write(manifestKey, encoded); err != nil {
		return "", &faults.StorageError{Op: "put", Err: err}
	}

	s.log.WithFields(logrus.Fields{
		"address": string(addr),
		"chunks":  len(manifest.Chunks),
		"size":    manifest.Size,
	}).Debug("stored payload")

	return addr, nil
}

func (s *BadgerStore) Get(ctx context.Context, addr Address) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &faults.StorageError{Op: "get", Err: err}
	}

	raw, err := s.kv.Read([]byte(manifestPrefix + string(addr)))
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return nil, &faults.NotFoundError{Kind: "address", ID: string(addr)}
	}
	if err != nil {
		return nil, &faults.StorageError{Op: "get", Err: err}
	}

	var manifest chunkManifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, &faults.StorageError{Op: "get", Err: err}
	}

	payload := make([]byte, 0, manifest.Size)
	for _, digestHex := range manifest.Chunks {
		compressed, err := s.kv.Read([]byte(chunkPrefix + digestHex))
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return nil, &faults.StorageError{
				Op:  "get",
				Err: fmt.Errorf("manifest references missing chunk %s", digestHex),
			}
		}
		if err != nil {
			return nil, &faults.StorageError{Op: "get", Err: err}
		}

		raw, err := decompressWithLzma(compressed)
		if err != nil {
			return nil, &faults.StorageError{Op: "get", Err: err}
		}

		want, err := crypt.ParseDigest(digestHex)
		if err != nil {
			return nil, &faults.StorageError{Op: "get", Err: err}
		}
		if !crypt.HashBytes(raw).Equal(want) {
			return nil, &faults.StorageError{
				Op:  "get",
				Err: fmt.Errorf("chunk %s failed integrity check", digestHex),
			}
		}

		payload = append(payload, raw...)
	}

	return payload, nil
}

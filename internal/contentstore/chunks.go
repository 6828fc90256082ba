package contentstore

import (
	"bytes"
	"fmt"
	"io"

	chunker "github.com/ipfs/boxo/chunker"
	"github.com/ulikunitz/xz/lzma"

	"github.com/medledger/medledger/internal/crypt"
)

// chunkManifest is the JSON document stored under an address. It
// records the ordered chunk digests needed to reassemble the payload.
type chunkManifest struct {
	Chunks []string `json:"chunks"`
	Size   int      `json:"size"`
}

type chunk struct {
	digest crypt.Digest
	data   []byte // lzma-compressed
}

// splitPayload cuts payload into content-defined chunks, compresses
// each and returns them with their (pre-compression) digests.
func splitPayload(payload []byte) ([]chunk, error) {
	bz := chunker.NewBuzhash(bytes.NewReader(payload))

	var chunks []chunk
	for {
		raw, err := bz.NextBytes()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("chunking payload: %w", err)
		}

		compressed, err := compressWithLzma(raw)
		if err != nil {
			return nil, err
		}

		chunks = append(chunks, chunk{
			digest: crypt.HashBytes(raw),
			data:   compressed,
		})
	}
	return chunks, nil
}

func compressWithLzma(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := lzma.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err = w.Write(data); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressWithLzma(data []byte) ([]byte, error) {
	r, err := lzma.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err = buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

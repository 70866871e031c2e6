package storage

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Artifact encoding/decoding, deterministic so equal artifacts store equal
// bytes.
func encodeArtifact(a any) ([]byte, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return em.Marshal(a)
}

func decodeArtifact(data []byte, out any) error {
	if err := cbor.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode artifact: %w", err)
	}
	return nil
}

package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// HexBytes is a []byte which encodes as a 0x-prefixed hex string in JSON.
type HexBytes []byte

func (b HexBytes) String() string {
	return "0x" + hex.EncodeToString(b)
}

func (b HexBytes) MarshalJSON() ([]byte, error) {
	return []byte(`"` + b.String() + `"`), nil
}

func (b *HexBytes) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hex bytes: %w", err)
	}
	*b = decoded
	return nil
}

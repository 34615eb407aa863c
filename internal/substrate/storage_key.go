package substrate

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// StoragePrefix is twox128(pallet) ++ twox128(item), the common prefix of
// every key stored under one storage item.
func StoragePrefix(pallet, item string) []byte {
	prefix := make([]byte, 0, 32)
	prefix = append(prefix, Twox128([]byte(pallet))...)
	return append(prefix, Twox128([]byte(item))...)
}

// StorageMapKey builds the full key of a single-key storage map entry.
func StorageMapKey(pallet, item string, hasher Hasher, key []byte) []byte {
	return append(StoragePrefix(pallet, item), hasher.Hash(key)...)
}

// MapKeySuffix strips the storage prefix and key hash from a full storage key
// and returns the raw encoded key. Only concat hashers keep the key readable.
func MapKeySuffix(full []byte, prefixLen int, hasher Hasher) ([]byte, error) {
	if hasher != HasherIdentity && hasher.HashLen() == 0 {
		return nil, fmt.Errorf("hasher %s does not preserve the key", hasher)
	}
	start := prefixLen + hasher.HashLen()
	if len(full) < start {
		return nil, fmt.Errorf("storage key too short: %d bytes, want at least %d", len(full), start)
	}
	return full[start:], nil
}

func HexEncode(data []byte) string {
	return "0x" + hex.EncodeToString(data)
}

func HexDecode(value string) ([]byte, error) {
	trimmed := strings.TrimPrefix(value, "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", value, err)
	}
	return decoded, nil
}

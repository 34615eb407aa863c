package domain

import (
	"encoding/hex"
	"fmt"
)

// AccountID is a raw 32-byte account identifier, the join key across the
// ledger, identity and membership modules.
type AccountID [32]byte

func AccountIDFromBytes(raw []byte) (AccountID, error) {
	var id AccountID
	if len(raw) != len(id) {
		return id, fmt.Errorf("account id must be %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

func (a AccountID) Bytes() []byte {
	return a[:]
}

func (a AccountID) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Member is one entry of a ranked membership collective.
type Member struct {
	Account AccountID
	Address string
	Rank    int
}

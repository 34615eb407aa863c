package substrate

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

var ErrInvalidAddress = errors.New("invalid ss58 address")

var ss58Salt = []byte("SS58PRE")

const (
	ss58ChecksumLen = 2
	maxSS58Prefix   = 16383
)

// EncodeAddress renders a 32-byte public key as an SS58 address under the
// given network prefix.
func EncodeAddress(publicKey []byte, prefix uint16) (string, error) {
	if prefix > maxSS58Prefix {
		return "", fmt.Errorf("%w: prefix %d out of range", ErrInvalidAddress, prefix)
	}
	var payload []byte
	if prefix < 64 {
		payload = append(payload, byte(prefix))
	} else {
		payload = append(payload,
			byte((prefix&0b1111_1100)>>2)|0b0100_0000,
			byte(prefix>>8)|byte((prefix&0b11)<<6),
		)
	}
	payload = append(payload, publicKey...)
	payload = append(payload, ss58Checksum(payload)...)
	return base58.Encode(payload), nil
}

// DecodeAddress parses an SS58 address into its network prefix and public key.
func DecodeAddress(address string) (uint16, []byte, error) {
	raw, err := base58.Decode(address)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) < 1+ss58ChecksumLen+1 {
		return 0, nil, fmt.Errorf("%w: too short", ErrInvalidAddress)
	}

	var (
		prefix    uint16
		prefixLen int
	)
	switch first := raw[0]; {
	case first < 64:
		prefix, prefixLen = uint16(first), 1
	case first < 128:
		second := raw[1]
		lower := (first << 2) | (second >> 6)
		upper := second & 0b0011_1111
		prefix, prefixLen = uint16(lower)|uint16(upper)<<8, 2
	default:
		return 0, nil, fmt.Errorf("%w: reserved prefix byte %d", ErrInvalidAddress, first)
	}

	body := raw[:len(raw)-ss58ChecksumLen]
	if !bytes.Equal(ss58Checksum(body), raw[len(raw)-ss58ChecksumLen:]) {
		return 0, nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidAddress)
	}
	publicKey := body[prefixLen:]
	if len(publicKey) != 32 {
		return 0, nil, fmt.Errorf("%w: %d byte public key", ErrInvalidAddress, len(publicKey))
	}
	return prefix, publicKey, nil
}

func ss58Checksum(data []byte) []byte {
	hash := blake2b.Sum512(append(append([]byte(nil), ss58Salt...), data...))
	return hash[:ss58ChecksumLen]
}

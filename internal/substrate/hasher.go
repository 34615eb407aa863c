package substrate

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"
)

// Hasher identifies how a storage map hashes its key before appending it to
// the storage prefix.
type Hasher uint8

const (
	HasherIdentity Hasher = iota
	HasherTwox64Concat
	HasherBlake2128Concat
)

func (h Hasher) String() string {
	switch h {
	case HasherIdentity:
		return "Identity"
	case HasherTwox64Concat:
		return "Twox64Concat"
	case HasherBlake2128Concat:
		return "Blake2_128Concat"
	default:
		return fmt.Sprintf("Hasher(%d)", uint8(h))
	}
}

// HashLen is the number of hash bytes placed in front of the raw key.
func (h Hasher) HashLen() int {
	switch h {
	case HasherTwox64Concat:
		return 8
	case HasherBlake2128Concat:
		return 16
	default:
		return 0
	}
}

// Hash returns the hashed key segment, raw key included.
func (h Hasher) Hash(key []byte) []byte {
	switch h {
	case HasherTwox64Concat:
		return append(Twox64(key), key...)
	case HasherBlake2128Concat:
		return append(Blake2128(key), key...)
	default:
		return append([]byte(nil), key...)
	}
}

func Twox64(data []byte) []byte {
	return twox(data, 1)
}

func Twox128(data []byte) []byte {
	return twox(data, 2)
}

func twox(data []byte, rounds int) []byte {
	out := make([]byte, 8*rounds)
	for seed := 0; seed < rounds; seed++ {
		digest := xxhash.NewWithSeed(uint64(seed))
		_, _ = digest.Write(data)
		binary.LittleEndian.PutUint64(out[seed*8:], digest.Sum64())
	}
	return out
}

func Blake2128(data []byte) []byte {
	digest, err := blake2b.New(16, nil)
	if err != nil {
		// only reachable with an invalid size or key
		panic(err)
	}
	_, _ = digest.Write(data)
	return digest.Sum(nil)
}

package substrate

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const aliceHex = "d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d"

func alice(t *testing.T) []byte {
	t.Helper()
	raw, err := hex.DecodeString(aliceHex)
	require.NoError(t, err)
	return raw
}

func TestStorageMapKeyMatchesSystemAccount(t *testing.T) {
	t.Parallel()

	key := StorageMapKey("System", "Account", HasherBlake2128Concat, alice(t))

	want := "0x26aa394eea5630e07c48ae0c9558cef7" +
		"b99d880ec681799c0cf30e8886371da9" +
		"de1e86a9a8c739864cf3cc5ec2bea59f" +
		aliceHex
	assert.Equal(t, want, HexEncode(key))
}

func TestTwox64IsFirstHalfOfTwox128(t *testing.T) {
	t.Parallel()

	data := []byte("FellowshipCollective")
	assert.Equal(t, Twox128(data)[:8], Twox64(data))
	assert.Len(t, HasherTwox64Concat.Hash(data), 8+len(data))
}

func TestMapKeySuffix(t *testing.T) {
	t.Parallel()

	prefix := StoragePrefix("FellowshipCollective", "Members")
	full := StorageMapKey("FellowshipCollective", "Members", HasherTwox64Concat, alice(t))

	suffix, err := MapKeySuffix(full, len(prefix), HasherTwox64Concat)
	require.NoError(t, err)
	assert.Equal(t, alice(t), suffix)

	_, err = MapKeySuffix(full[:20], len(prefix), HasherTwox64Concat)
	assert.Error(t, err)
}

func TestSS58RoundTrip(t *testing.T) {
	t.Parallel()

	address, err := EncodeAddress(alice(t), 42)
	require.NoError(t, err)
	assert.Equal(t, "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY", address)

	for _, prefix := range []uint16{0, 2, 42, 63, 64, 255, 1284, maxSS58Prefix} {
		encoded, err := EncodeAddress(alice(t), prefix)
		require.NoError(t, err)

		decodedPrefix, publicKey, err := DecodeAddress(encoded)
		require.NoError(t, err, "prefix %d", prefix)
		assert.Equal(t, prefix, decodedPrefix)
		assert.Equal(t, alice(t), publicKey)
	}
}

func TestSS58RejectsBadChecksum(t *testing.T) {
	t.Parallel()

	_, _, err := DecodeAddress("5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQZ")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = EncodeAddress(alice(t), maxSS58Prefix+1)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestDecoderCompact(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
		want  uint64
	}{
		{"single byte zero", "00", 0},
		{"single byte one", "04", 1},
		{"single byte max", "fc", 63},
		{"two byte min", "0101", 64},
		{"two byte", "1501", 69},
		{"four byte", "02093d00", 1000000},
		{"big integer mode", "0300000040", 1 << 30},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := hex.DecodeString(tc.input)
			require.NoError(t, err)
			got, err := NewDecoder(raw).Compact()
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecoderU128AndShortInput(t *testing.T) {
	t.Parallel()

	raw := make([]byte, 17)
	raw[0] = 0x96 // 150
	raw[1] = 0x00
	raw[15] = 0x01 // 2^120

	d := NewDecoder(raw)
	value, err := d.U128()
	require.NoError(t, err)

	want := new(big.Int).Lsh(big.NewInt(1), 120)
	want.Add(want, big.NewInt(150))
	assert.Equal(t, 0, value.Cmp(want))
	assert.Equal(t, 1, d.Remaining())

	_, err = d.U32()
	assert.ErrorIs(t, err, ErrShortInput)

	_, err = NewDecoder([]byte{0x10}).Length()
	assert.ErrorIs(t, err, ErrShortInput)
}

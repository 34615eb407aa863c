package application

import (
	"context"
	"errors"
	"strings"
	"testing"

	"chainreport/internal/domain"
	"chainreport/internal/substrate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRegistrationSkipsJudgements(t *testing.T) {
	raw := []byte{0x08}                          // two judgements
	raw = append(raw, 0, 0, 0, 0, 1)             // registrar 0, FeePaid
	raw = append(raw, encodeU128(5)...)          // fee
	raw = append(raw, 1, 0, 0, 0, 3)             // registrar 1, KnownGood
	raw = append(raw, encodeU128(100)...)        // deposit
	raw = append(raw, rawData([]byte("Gav"))...) // display
	raw = append(raw, 0x00, 0x01, 0x02)          // trailing fields and username

	record, err := decodeRegistration(raw, IdentityLayoutPeople)
	require.NoError(t, err)
	name, ok := record.DisplayName()
	assert.True(t, ok)
	assert.Equal(t, "Gav", name)
}

func TestDecodeRegistrationLegacyLayout(t *testing.T) {
	raw := []byte{0x00}
	raw = append(raw, encodeU128(100)...)
	raw = append(raw, 0x04) // one additional pair
	raw = append(raw, rawData([]byte("key"))...)
	raw = append(raw, append([]byte{35}, make([]byte, 32)...)...)
	raw = append(raw, rawData([]byte("Legacy"))...)

	record, err := decodeRegistration(raw, IdentityLayoutLegacy)
	require.NoError(t, err)
	name, ok := record.DisplayName()
	assert.True(t, ok)
	assert.Equal(t, "Legacy", name)
}

func TestDecodeRegistrationUnknownDisplayVariantIsNotText(t *testing.T) {
	raw := []byte{0x00}
	raw = append(raw, encodeU128(1)...)
	raw = append(raw, 40, 0xaa, 0xbb)

	record, err := decodeRegistration(raw, IdentityLayoutPeople)
	require.NoError(t, err)
	assert.Equal(t, DataUnknown, record.Display.Kind)
	_, ok := record.DisplayName()
	assert.False(t, ok)
}

func TestDecodeRegistrationRejectsUnknownDataBeforeDisplay(t *testing.T) {
	raw := []byte{0x00}
	raw = append(raw, encodeU128(1)...)
	raw = append(raw, 0x04) // one additional pair
	raw = append(raw, 40)

	_, err := decodeRegistration(raw, IdentityLayoutLegacy)
	assert.ErrorIs(t, err, errUnknownData)
}

func TestIdentityDataText(t *testing.T) {
	cases := []struct {
		name string
		data IdentityData
		want string
		ok   bool
	}{
		{"raw", IdentityData{Kind: DataRaw, Bytes: []byte("Alice")}, "Alice", true},
		{"none", IdentityData{Kind: DataNone}, "", false},
		{"empty raw", IdentityData{Kind: DataRaw}, "", false},
		{"hash", IdentityData{Kind: DataHash, Bytes: make([]byte, 32)}, "", false},
		{"invalid utf8", IdentityData{Kind: DataRaw, Bytes: []byte{0xc3, 0x28}}, "", false},
		{"unknown", IdentityData{Kind: DataUnknown}, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := tc.data.Text()
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeAccountInfo(t *testing.T) {
	balance, err := decodeAccountInfo(encodeAccountInfo(100, 50))
	require.NoError(t, err)
	assert.Equal(t, "150", balance.Total().String())

	_, err = decodeAccountInfo(make([]byte, 20))
	assert.ErrorIs(t, err, substrate.ErrShortInput)
}

func TestPointQueryWrapsDecodeFailures(t *testing.T) {
	chain := newFakeChain(ledgerEndpoint)
	id := testAccount(9)
	key := substrate.StorageMapKey("System", "Account", substrate.HasherBlake2128Concat, id.Bytes())
	chain.values[substrate.HexEncode(key)] = []byte{0x01}

	_, found, err := PointQuery(context.Background(), chain, BalancesModule(), id)
	assert.False(t, found)
	assert.ErrorIs(t, err, ErrQuery)

	var queryErr *QueryError
	require.ErrorAs(t, err, &queryErr)
	assert.Equal(t, "System.Account", queryErr.Module)
}

func TestPointQueryMissingKeyIsNotAnError(t *testing.T) {
	chain := newFakeChain(ledgerEndpoint)
	_, found, err := PointQuery(context.Background(), chain, BalancesModule(), testAccount(1))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMembershipModuleIsEnumerationOnly(t *testing.T) {
	chain := newFakeChain(collectiveEndpoint)
	_, _, err := PointQuery(context.Background(), chain, MembershipModule(""), testAccount(1))
	assert.ErrorIs(t, err, ErrQuery)
}

func TestEnumerateEntriesDecodesKeyTuple(t *testing.T) {
	chain := newFakeChain(collectiveEndpoint)
	module := MembershipModule("AmbassadorCollective")
	for _, id := range []domain.AccountID{testAccount(4), testAccount(2)} {
		key := substrate.StorageMapKey("AmbassadorCollective", "Members", substrate.HasherTwox64Concat, id.Bytes())
		chain.entries = append(chain.entries, domain.StorageEntry{Key: key, Value: encodeRank(uint16(id[0]))})
	}

	entries, err := EnumerateEntries(context.Background(), chain, module)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, testAccount(4), entries[0].Key)
	assert.Equal(t, uint16(4), entries[0].Value)
	assert.Equal(t, testAccount(2), entries[1].Key)
	assert.Equal(t, uint16(2), entries[1].Value)
}

func TestEnumerateEntriesRejectsTruncatedKey(t *testing.T) {
	chain := newFakeChain(collectiveEndpoint)
	chain.entries = []domain.StorageEntry{{Key: []byte{0x01, 0x02}, Value: encodeRank(1)}}

	_, err := EnumerateEntries(context.Background(), chain, MembershipModule(""))
	assert.ErrorIs(t, err, ErrQuery)
}

func TestProbeReportIsLogOnly(t *testing.T) {
	chain := newFakeChain(collectiveEndpoint)
	chain.info = domain.ChainInfo{Name: "Polkadot Collectives", FinalizedHeight: 7}

	report, err := Probe(context.Background(), chain)
	require.NoError(t, err)
	assert.True(t, strings.Contains(report.String(), "Polkadot Collectives at block 7"))
	assert.Equal(t, "Polkadot Collectives", report.LogValue().Group()[1].Value.String())

	chain.infoErr = errors.New("unavailable")
	_, err = Probe(context.Background(), chain)
	assert.Error(t, err)
}

package application

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"chainreport/internal/domain"
	"chainreport/internal/substrate"
)

// IdentityLayout selects the IdentityInfo encoding of the identity chain.
type IdentityLayout uint8

const (
	// IdentityLayoutPeople is the people-chain layout, display first.
	IdentityLayoutPeople IdentityLayout = iota
	// IdentityLayoutLegacy is the relay-chain layout that starts with the
	// `additional` field list.
	IdentityLayoutLegacy
)

const DefaultMembershipPallet = "FellowshipCollective"

// BalancesModule reads System.Account.
func BalancesModule() Descriptor[domain.AccountID, domain.AccountBalance] {
	return Descriptor[domain.AccountID, domain.AccountBalance]{
		Kind:        ModuleBalances,
		Pallet:      "System",
		Item:        "Account",
		Hasher:      substrate.HasherBlake2128Concat,
		EncodeKey:   domain.AccountID.Bytes,
		DecodeKey:   domain.AccountIDFromBytes,
		DecodeValue: decodeAccountInfo,
	}
}

// IdentityModule reads Identity.IdentityOf.
func IdentityModule(layout IdentityLayout) Descriptor[domain.AccountID, IdentityRecord] {
	return Descriptor[domain.AccountID, IdentityRecord]{
		Kind:      ModuleIdentity,
		Pallet:    "Identity",
		Item:      "IdentityOf",
		Hasher:    substrate.HasherTwox64Concat,
		EncodeKey: domain.AccountID.Bytes,
		DecodeKey: domain.AccountIDFromBytes,
		DecodeValue: func(raw []byte) (IdentityRecord, error) {
			return decodeRegistration(raw, layout)
		},
	}
}

// MembershipModule reads <pallet>.Members of a ranked collective. The value
// is the member rank.
func MembershipModule(pallet string) Descriptor[domain.AccountID, uint16] {
	if pallet == "" {
		pallet = DefaultMembershipPallet
	}
	return Descriptor[domain.AccountID, uint16]{
		Kind:        ModuleMembership,
		Pallet:      pallet,
		Item:        "Members",
		Hasher:      substrate.HasherTwox64Concat,
		DecodeKey:   domain.AccountIDFromBytes,
		DecodeValue: decodeMemberRecord,
	}
}

// AccountInfo: nonce, consumers, providers, sufficients, then
// data{free, reserved, frozen, flags}.
func decodeAccountInfo(raw []byte) (domain.AccountBalance, error) {
	d := substrate.NewDecoder(raw)
	if err := d.Skip(4 * 4); err != nil {
		return domain.AccountBalance{}, err
	}
	free, err := d.U128()
	if err != nil {
		return domain.AccountBalance{}, fmt.Errorf("free: %w", err)
	}
	reserved, err := d.U128()
	if err != nil {
		return domain.AccountBalance{}, fmt.Errorf("reserved: %w", err)
	}
	return domain.AccountBalance{Free: free, Reserved: reserved}, nil
}

func decodeMemberRecord(raw []byte) (uint16, error) {
	return substrate.NewDecoder(raw).U16()
}

type DataKind uint8

const (
	DataNone DataKind = iota
	DataRaw
	DataHash
	DataUnknown
)

// IdentityData is an on-chain identity field: nothing, up to 32 raw bytes,
// or a 32-byte hash of content kept elsewhere. DataUnknown marks a variant
// this decoder does not know; its payload is not read.
type IdentityData struct {
	Kind  DataKind
	Bytes []byte
}

// Text returns the field as text. Only raw fields holding valid UTF-8 are
// text; everything else is reported as not present.
func (d IdentityData) Text() (string, bool) {
	if d.Kind != DataRaw || len(d.Bytes) == 0 || !utf8.Valid(d.Bytes) {
		return "", false
	}
	return string(d.Bytes), true
}

type IdentityRecord struct {
	Display IdentityData
}

func (r IdentityRecord) DisplayName() (string, bool) {
	return r.Display.Text()
}

var errUnknownData = errors.New("unknown identity data variant")

const (
	dataTagNone    = 0
	dataTagRawMax  = 33
	dataTagHashMax = 37
)

func decodeData(d *substrate.Decoder) (IdentityData, error) {
	tag, err := d.U8()
	if err != nil {
		return IdentityData{}, err
	}
	switch {
	case tag == dataTagNone:
		return IdentityData{Kind: DataNone}, nil
	case tag <= dataTagRawMax:
		b, err := d.Bytes(int(tag) - 1)
		if err != nil {
			return IdentityData{}, err
		}
		return IdentityData{Kind: DataRaw, Bytes: b}, nil
	case tag <= dataTagHashMax:
		b, err := d.Bytes(32)
		if err != nil {
			return IdentityData{}, err
		}
		return IdentityData{Kind: DataHash, Bytes: b}, nil
	default:
		return IdentityData{}, fmt.Errorf("%w: %d", errUnknownData, tag)
	}
}

// Registration: judgements, deposit, info. Anything after the display
// field is ignored, which also covers the (Registration, Option<Username>)
// tuple some runtimes store.
func decodeRegistration(raw []byte, layout IdentityLayout) (IdentityRecord, error) {
	d := substrate.NewDecoder(raw)
	judgements, err := d.Length()
	if err != nil {
		return IdentityRecord{}, fmt.Errorf("judgements: %w", err)
	}
	for i := 0; i < judgements; i++ {
		if err := d.Skip(4); err != nil {
			return IdentityRecord{}, fmt.Errorf("judgement %d: %w", i, err)
		}
		judgement, err := d.U8()
		if err != nil {
			return IdentityRecord{}, fmt.Errorf("judgement %d: %w", i, err)
		}
		// FeePaid carries the fee.
		if judgement == 1 {
			if err := d.Skip(16); err != nil {
				return IdentityRecord{}, fmt.Errorf("judgement %d: %w", i, err)
			}
		}
	}
	if err := d.Skip(16); err != nil {
		return IdentityRecord{}, fmt.Errorf("deposit: %w", err)
	}

	if layout == IdentityLayoutLegacy {
		additional, err := d.Length()
		if err != nil {
			return IdentityRecord{}, fmt.Errorf("additional: %w", err)
		}
		for i := 0; i < 2*additional; i++ {
			if _, err := decodeData(d); err != nil {
				return IdentityRecord{}, fmt.Errorf("additional %d: %w", i/2, err)
			}
		}
	}

	// Display is the last field read, so an unknown variant there does not
	// desync anything and is simply not text.
	display, err := decodeData(d)
	if errors.Is(err, errUnknownData) {
		return IdentityRecord{Display: IdentityData{Kind: DataUnknown}}, nil
	}
	if err != nil {
		return IdentityRecord{}, fmt.Errorf("display: %w", err)
	}
	return IdentityRecord{Display: display}, nil
}

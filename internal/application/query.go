package application

import (
	"context"
	"fmt"

	"chainreport/internal/substrate"
)

type ModuleKind uint8

const (
	ModuleBalances ModuleKind = iota + 1
	ModuleIdentity
	ModuleMembership
)

func (k ModuleKind) String() string {
	switch k {
	case ModuleBalances:
		return "balances"
	case ModuleIdentity:
		return "identity"
	case ModuleMembership:
		return "membership"
	default:
		return fmt.Sprintf("module(%d)", uint8(k))
	}
}

// Descriptor ties a storage map to the codecs for its keys and values.
// EncodeKey may be nil for enumeration-only maps; DecodeKey may be nil for
// maps that are only point-queried.
type Descriptor[K, V any] struct {
	Kind        ModuleKind
	Pallet      string
	Item        string
	Hasher      substrate.Hasher
	EncodeKey   func(K) []byte
	DecodeKey   func([]byte) (K, error)
	DecodeValue func([]byte) (V, error)
}

func (d Descriptor[K, V]) Name() string {
	return d.Pallet + "." + d.Item
}

func (d Descriptor[K, V]) Prefix() []byte {
	return substrate.StoragePrefix(d.Pallet, d.Item)
}

func (d Descriptor[K, V]) StorageKey(key K) ([]byte, error) {
	if d.EncodeKey == nil {
		return nil, fmt.Errorf("%s does not support point lookups", d.Name())
	}
	return substrate.StorageMapKey(d.Pallet, d.Item, d.Hasher, d.EncodeKey(key)), nil
}

type Entry[K, V any] struct {
	Key   K
	Value V
}

// PointQuery reads one map value. A key with no stored value is reported as
// not found, not as an error.
func PointQuery[K, V any](ctx context.Context, reader StorageReader, d Descriptor[K, V], key K) (V, bool, error) {
	var zero V
	storageKey, err := d.StorageKey(key)
	if err != nil {
		return zero, false, &QueryError{Module: d.Name(), Err: err}
	}
	raw, found, err := reader.Storage(ctx, storageKey)
	if err != nil {
		return zero, false, &QueryError{Module: d.Name(), Err: err}
	}
	if !found {
		return zero, false, nil
	}
	value, err := d.DecodeValue(raw)
	if err != nil {
		return zero, false, &QueryError{Module: d.Name(), Err: fmt.Errorf("decode value: %w", err)}
	}
	return value, true, nil
}

// EnumerateEntries returns every entry of the map in storage iteration
// order. Callers that need another order sort the result themselves.
func EnumerateEntries[K, V any](ctx context.Context, reader StorageReader, d Descriptor[K, V]) ([]Entry[K, V], error) {
	if d.DecodeKey == nil {
		return nil, &QueryError{Module: d.Name(), Err: fmt.Errorf("%s does not support enumeration", d.Name())}
	}
	prefix := d.Prefix()
	raw, err := reader.StorageEntries(ctx, prefix)
	if err != nil {
		return nil, &QueryError{Module: d.Name(), Err: err}
	}
	entries := make([]Entry[K, V], 0, len(raw))
	for _, item := range raw {
		keyBytes, err := substrate.MapKeySuffix(item.Key, len(prefix), d.Hasher)
		if err != nil {
			return nil, &QueryError{Module: d.Name(), Err: fmt.Errorf("key %s: %w", substrate.HexEncode(item.Key), err)}
		}
		key, err := d.DecodeKey(keyBytes)
		if err != nil {
			return nil, &QueryError{Module: d.Name(), Err: fmt.Errorf("decode key %s: %w", substrate.HexEncode(item.Key), err)}
		}
		value, err := d.DecodeValue(item.Value)
		if err != nil {
			return nil, &QueryError{Module: d.Name(), Err: fmt.Errorf("decode value %s: %w", substrate.HexEncode(item.Key), err)}
		}
		entries = append(entries, Entry[K, V]{Key: key, Value: value})
	}
	return entries, nil
}

package domain

// ChainInfo is diagnostic chain identity read from a node.
type ChainInfo struct {
	Name            string
	FinalizedHash   string
	FinalizedHeight uint64
}

// StorageEntry is one raw key/value pair read from chain storage.
type StorageEntry struct {
	Key   []byte
	Value []byte
}

package domain

import "math/big"

// AccountBalance holds the free and reserved parts of an account's native
// balance. The total is always derived.
type AccountBalance struct {
	Free     *big.Int
	Reserved *big.Int
}

func (b AccountBalance) Total() *big.Int {
	total := new(big.Int)
	if b.Free != nil {
		total.Add(total, b.Free)
	}
	if b.Reserved != nil {
		total.Add(total, b.Reserved)
	}
	return total
}

package domain

import (
	"math/big"
	"sort"
	"time"
)

// FieldState tells a legitimately absent value apart from one that could not
// be obtained.
type FieldState uint8

const (
	FieldResolved FieldState = iota
	FieldAbsent
	FieldUnresolved
)

func (s FieldState) String() string {
	switch s {
	case FieldResolved:
		return "resolved"
	case FieldAbsent:
		return "absent"
	case FieldUnresolved:
		return "unresolved"
	default:
		return "unknown"
	}
}

// BalanceField is a member's total balance or the reason it is missing.
// A balance is never absent: a member without an account record is
// unresolved, not zero.
type BalanceField struct {
	State  FieldState
	Total  *big.Int
	Reason string
}

func ResolvedBalance(total *big.Int) BalanceField {
	return BalanceField{State: FieldResolved, Total: total}
}

func UnresolvedBalance(reason string) BalanceField {
	return BalanceField{State: FieldUnresolved, Reason: reason}
}

type NameField struct {
	State  FieldState
	Value  string
	Reason string
}

func ResolvedName(value string) NameField {
	return NameField{State: FieldResolved, Value: value}
}

func AbsentName() NameField {
	return NameField{State: FieldAbsent}
}

func UnresolvedName(reason string) NameField {
	return NameField{State: FieldUnresolved, Reason: reason}
}

type ReportRow struct {
	Rank        int
	Address     string
	Balance     BalanceField
	DisplayName NameField
}

func (r ReportRow) Unresolved() bool {
	return r.Balance.State == FieldUnresolved || r.DisplayName.State == FieldUnresolved
}

type Report struct {
	RunID       string
	GeneratedAt time.Time
	Rows        []ReportRow
}

func (r Report) UnresolvedCount() int {
	count := 0
	for _, row := range r.Rows {
		if row.Unresolved() {
			count++
		}
	}
	return count
}

// SortByRank orders rows by rank, highest first. Equal ranks keep their
// enumeration order.
func SortByRank(rows []ReportRow) {
	sort.SliceStable(rows, func(a, b int) bool {
		return rows[a].Rank > rows[b].Rank
	})
}

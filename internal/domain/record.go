package domain

import (
	"github.com/shopspring/decimal"
)

// Account types as reported by the data provider, lowercased.
const (
	AccountTypeDepository = "depository"
	AccountTypeInvestment = "investment"
	AccountTypeCredit     = "credit"
	AccountTypeLoan       = "loan"
	AccountTypeOther      = "other"
)

// DefaultCurrency is used when the provider does not report a currency.
const DefaultCurrency = "USD"

// FamilyOfficeRecord is the source-independent representation of a client's
// financial position. Its JSON shape is the contract of the transformed_*
// artifacts and must not change without a version bump.
type FamilyOfficeRecord struct {
	Accounts     []Account     `json:"accounts"`
	Transactions []Transaction `json:"transactions"`
	Holdings     []Holding     `json:"holdings"`
}

// Account is a single account of the record.
type Account struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

// AccountIndex returns a lookup from account ID to its position in Accounts.
func (r *FamilyOfficeRecord) AccountIndex() map[string]int {
	idx := make(map[string]int, len(r.Accounts))
	for i, acc := range r.Accounts {
		idx[acc.ID] = i
	}
	return idx
}

// DanglingReferences returns the account IDs referenced by transactions or
// holdings that are not present in Accounts, in first-seen order.
func (r *FamilyOfficeRecord) DanglingReferences() []string {
	idx := r.AccountIndex()
	seen := make(map[string]bool)
	var out []string

	check := func(id string) {
		if _, ok := idx[id]; ok || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
	}

	for _, tx := range r.Transactions {
		check(tx.AccountID)
	}
	for _, h := range r.Holdings {
		check(h.AccountID)
	}
	return out
}

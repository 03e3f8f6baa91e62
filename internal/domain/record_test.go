package domain

import (
	"encoding/json"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDanglingReferences(t *testing.T) {
	record := &FamilyOfficeRecord{
		Accounts: []Account{{ID: "a"}, {ID: "b"}},
		Transactions: []Transaction{
			{AccountID: "a"},
			{AccountID: "x"},
			{AccountID: "y"},
			{AccountID: "x"},
		},
		Holdings: []Holding{{AccountID: "b"}, {AccountID: "z"}, {AccountID: "y"}},
	}

	assert.Equal(t, []string{"x", "y", "z"}, record.DanglingReferences())
}

func TestDanglingReferences_None(t *testing.T) {
	record := &FamilyOfficeRecord{
		Accounts:     []Account{{ID: "a"}},
		Transactions: []Transaction{{AccountID: "a"}},
	}
	assert.Empty(t, record.DanglingReferences())
}

func TestRecordJSONShape(t *testing.T) {
	record := FamilyOfficeRecord{
		Accounts: []Account{{ID: "chk", Name: "Checking", Type: AccountTypeDepository, Balance: decimal.RequireFromString("1000.50"), Currency: "USD"}},
		Transactions: []Transaction{{
			AccountID: "chk",
			Date:      civil.Date{Year: 2025, Month: 10, Day: 1},
			Amount:    decimal.RequireFromString("-12.5"),
			Category:  "FOOD_AND_DRINK",
			Merchant:  "Cafe",
		}},
		Holdings: []Holding{{AccountID: "chk", Symbol: "VTI", Quantity: decimal.NewFromInt(3), MarketValue: decimal.RequireFromString("750.3")}},
	}

	data, err := json.Marshal(record)
	require.NoError(t, err)

	assert.JSONEq(t, `{
	  "accounts": [{"id": "chk", "name": "Checking", "type": "depository", "balance": "1000.5", "currency": "USD"}],
	  "transactions": [{"account_id": "chk", "date": "2025-10-01", "amount": "-12.5", "category": "FOOD_AND_DRINK", "merchant": "Cafe"}],
	  "holdings": [{"account_id": "chk", "symbol": "VTI", "quantity": "3", "market_value": "750.3"}]
	}`, string(data))
}

func TestEnumsValid(t *testing.T) {
	for _, typ := range InsightTypes {
		assert.True(t, typ.Valid())
	}
	assert.False(t, InsightType("summary").Valid())
	assert.False(t, InsightType("Risk").Valid())

	for _, l := range Levels {
		assert.True(t, l.Valid())
	}
	assert.False(t, Level("critical").Valid())
}

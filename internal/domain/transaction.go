package domain

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Transaction is one normalized transaction owned by an account of the record.
// Amount keeps the provider's sign convention (Plaid: positive = money out).
type Transaction struct {
	AccountID string          `json:"account_id"`
	Date      civil.Date      `json:"date"`
	Amount    decimal.Decimal `json:"amount"`
	Category  string          `json:"category"`
	Merchant  string          `json:"merchant"`
}

// Holding is one investment position owned by an account of the record.
type Holding struct {
	AccountID   string          `json:"account_id"`
	Symbol      string          `json:"symbol"`
	Quantity    decimal.Decimal `json:"quantity"`
	MarketValue decimal.Decimal `json:"market_value"`
}

package rules

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/aperture/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestEvaluate_Nil(t *testing.T) {
	assert.Empty(t, Evaluate(nil))
}

func TestCheckConcentration(t *testing.T) {
	record := &domain.FamilyOfficeRecord{
		Holdings: []domain.Holding{
			{AccountID: "inv", Symbol: "AAPL", MarketValue: d("850")},
			{AccountID: "inv", Symbol: "VTI", MarketValue: d("8500")},
			{AccountID: "inv", Symbol: "BND", MarketValue: d("650")},
		},
	}

	findings := checkConcentration(record)

	require.Len(t, findings, 1)
	assert.Equal(t, FindingConcentration, findings[0].Type)
	assert.Equal(t, SeverityHigh, findings[0].Severity)
	assert.Equal(t, "VTI", findings[0].Subject)
	assert.Contains(t, findings[0].Detail, "85.0%")
}

func TestCheckConcentration_ExactLimitIsNotFlagged(t *testing.T) {
	record := &domain.FamilyOfficeRecord{
		Holdings: []domain.Holding{
			{Symbol: "A", MarketValue: d("15")},
			{Symbol: "B", MarketValue: d("15")},
			{Symbol: "C", MarketValue: d("14")},
			{Symbol: "D", MarketValue: d("14")},
			{Symbol: "E", MarketValue: d("14")},
			{Symbol: "F", MarketValue: d("14")},
			{Symbol: "G", MarketValue: d("14")},
		},
	}
	assert.Empty(t, checkConcentration(record))
}

func TestCheckLiquidity(t *testing.T) {
	tests := []struct {
		name     string
		cash     string
		debt     string
		want     Severity
		wantNone bool
	}{
		{name: "comfortable", cash: "1000", debt: "500", wantNone: true},
		{name: "exactly eighty percent", cash: "1000", debt: "800", wantNone: true},
		{name: "high", cash: "1000", debt: "900", want: SeverityHigh},
		{name: "exactly covered", cash: "1000", debt: "1000", want: SeverityHigh},
		{name: "critical", cash: "1000", debt: "1500", want: SeverityCritical},
		{name: "no cash", cash: "0", debt: "10", want: SeverityCritical},
		{name: "no debt", cash: "0", debt: "0", wantNone: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := &domain.FamilyOfficeRecord{
				Accounts: []domain.Account{
					{ID: "chk", Type: domain.AccountTypeDepository, Balance: d(tt.cash)},
					{ID: "cc", Type: domain.AccountTypeCredit, Balance: d(tt.debt).Neg()},
				},
			}
			findings := checkLiquidity(record)
			if tt.wantNone {
				assert.Empty(t, findings)
				return
			}
			require.Len(t, findings, 1)
			assert.Equal(t, tt.want, findings[0].Severity)
		})
	}
}

func TestCheckDataIntegrity(t *testing.T) {
	record := &domain.FamilyOfficeRecord{
		Accounts: []domain.Account{
			{ID: "chk", Name: "Checking", Type: domain.AccountTypeDepository},
			{ID: "sav", Name: "Savings", Type: domain.AccountTypeDepository},
			{ID: "ira", Name: "IRA", Type: domain.AccountTypeInvestment},
			{ID: "brk", Name: "Brokerage", Type: domain.AccountTypeInvestment},
		},
		Transactions: []domain.Transaction{{AccountID: "chk"}, {AccountID: "ira"}},
		Holdings:     []domain.Holding{{AccountID: "brk", Symbol: "VTI"}},
	}

	findings := checkDataIntegrity(record)

	require.Len(t, findings, 2)
	assert.Equal(t, FindingNoActivity, findings[0].Type)
	assert.Equal(t, "sav", findings[0].Subject)
	assert.Equal(t, SeverityLow, findings[0].Severity)
	assert.Equal(t, FindingMissingHoldings, findings[1].Type)
	assert.Equal(t, "ira", findings[1].Subject)
	assert.Equal(t, SeverityMedium, findings[1].Severity)
}

func TestEvaluate_Order(t *testing.T) {
	record := &domain.FamilyOfficeRecord{
		Accounts: []domain.Account{
			{ID: "chk", Type: domain.AccountTypeDepository, Balance: d("100")},
			{ID: "loan", Type: domain.AccountTypeLoan, Balance: d("5000")},
			{ID: "inv", Type: domain.AccountTypeInvestment},
		},
		Holdings: []domain.Holding{{AccountID: "inv", Symbol: "VTI", MarketValue: d("10")}},
	}

	findings := Evaluate(record)

	types := make([]string, len(findings))
	for i, f := range findings {
		types[i] = f.Type
	}
	assert.Equal(t, []string{FindingConcentration, FindingLiquidity, FindingNoActivity, FindingNoActivity}, types)
}

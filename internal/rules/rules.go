// Package rules runs deterministic checks over a FamilyOfficeRecord. The
// findings are handed to the model as facts it does not have to compute.
package rules

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/aperture/internal/domain"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Finding types.
const (
	FindingConcentration   = "concentration_risk"
	FindingLiquidity       = "liquidity_pressure"
	FindingNoActivity      = "no_activity"
	FindingMissingHoldings = "missing_holdings"
)

var (
	hundred = decimal.NewFromInt(100)

	// ConcentrationLimit is the share of total holdings value above which a
	// single position is flagged.
	ConcentrationLimit = decimal.RequireFromString("0.15")
	// LiquidityHigh and LiquidityCritical bound debt as a share of cash.
	LiquidityHigh     = decimal.RequireFromString("0.80")
	LiquidityCritical = decimal.NewFromInt(1)
)

// Finding is one rule hit.
type Finding struct {
	Type     string   `json:"finding_type"`
	Severity Severity `json:"severity"`
	// Subject is the symbol or account the finding is about.
	Subject string `json:"subject"`
	Detail  string `json:"detail"`
}

// Evaluate runs every check and returns findings in a stable order:
// concentration, liquidity, then data integrity in account order.
func Evaluate(record *domain.FamilyOfficeRecord) []Finding {
	if record == nil {
		return nil
	}
	var findings []Finding
	findings = append(findings, checkConcentration(record)...)
	findings = append(findings, checkLiquidity(record)...)
	findings = append(findings, checkDataIntegrity(record)...)
	return findings
}

func checkConcentration(record *domain.FamilyOfficeRecord) []Finding {
	total := decimal.Zero
	for _, h := range record.Holdings {
		if h.MarketValue.IsPositive() {
			total = total.Add(h.MarketValue)
		}
	}
	if !total.IsPositive() {
		return nil
	}

	var findings []Finding
	for _, h := range record.Holdings {
		share := h.MarketValue.Div(total)
		if share.LessThanOrEqual(ConcentrationLimit) {
			continue
		}
		findings = append(findings, Finding{
			Type:     FindingConcentration,
			Severity: SeverityHigh,
			Subject:  h.Symbol,
			Detail: fmt.Sprintf("%s in account %s is %s%% of total holdings value (%s of %s)",
				h.Symbol, h.AccountID, share.Mul(hundred).StringFixed(1),
				h.MarketValue.StringFixed(2), total.StringFixed(2)),
		})
	}
	return findings
}

func checkLiquidity(record *domain.FamilyOfficeRecord) []Finding {
	cash, debt := decimal.Zero, decimal.Zero
	for _, acc := range record.Accounts {
		switch acc.Type {
		case domain.AccountTypeDepository:
			cash = cash.Add(acc.Balance)
		case domain.AccountTypeCredit, domain.AccountTypeLoan:
			debt = debt.Add(acc.Balance.Abs())
		}
	}
	if !debt.IsPositive() {
		return nil
	}

	if !cash.IsPositive() {
		return []Finding{{
			Type:     FindingLiquidity,
			Severity: SeverityCritical,
			Subject:  "portfolio",
			Detail:   fmt.Sprintf("credit and loan balances of %s with no depository cash", debt.StringFixed(2)),
		}}
	}

	ratio := debt.Div(cash)
	var severity Severity
	switch {
	case ratio.GreaterThan(LiquidityCritical):
		severity = SeverityCritical
	case ratio.GreaterThan(LiquidityHigh):
		severity = SeverityHigh
	default:
		return nil
	}
	return []Finding{{
		Type:     FindingLiquidity,
		Severity: severity,
		Subject:  "portfolio",
		Detail: fmt.Sprintf("credit and loan balances of %s are %s%% of depository cash (%s)",
			debt.StringFixed(2), ratio.Mul(hundred).StringFixed(1), cash.StringFixed(2)),
	}}
}

func checkDataIntegrity(record *domain.FamilyOfficeRecord) []Finding {
	txCount := make(map[string]int)
	holdingCount := make(map[string]int)
	for _, tx := range record.Transactions {
		txCount[tx.AccountID]++
	}
	for _, h := range record.Holdings {
		holdingCount[h.AccountID]++
	}

	var findings []Finding
	for _, acc := range record.Accounts {
		switch {
		case acc.Type == domain.AccountTypeInvestment && holdingCount[acc.ID] == 0:
			findings = append(findings, Finding{
				Type:     FindingMissingHoldings,
				Severity: SeverityMedium,
				Subject:  acc.ID,
				Detail:   fmt.Sprintf("investment account %q (balance %s %s) reports no holdings", acc.Name, acc.Balance.StringFixed(2), acc.Currency),
			})
		case txCount[acc.ID] == 0 && holdingCount[acc.ID] == 0:
			findings = append(findings, Finding{
				Type:     FindingNoActivity,
				Severity: SeverityLow,
				Subject:  acc.ID,
				Detail:   fmt.Sprintf("account %q has no transactions or holdings in the fetched window", acc.Name),
			})
		}
	}
	return findings
}

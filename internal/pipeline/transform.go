package pipeline

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/aperture/internal/domain"
)

const (
	categorySeparator = " > "
	uncategorized     = "uncategorized"
	unknownSymbol     = "UNKNOWN"
)

// Diagnostics tallies what the transformer dropped or filled in. It is
// reported next to the record and is not part of the record's JSON.
type Diagnostics struct {
	DroppedTransactions int    `json:"dropped_transactions"`
	DroppedHoldings     int    `json:"dropped_holdings"`
	DefaultedFields     int    `json:"defaulted_fields"`
	Drops               []Drop `json:"drops,omitempty"`
}

// Drop records one element removed from the record and why.
type Drop struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

func (d *Diagnostics) dropTransaction(i int, reason string) {
	d.DroppedTransactions++
	d.Drops = append(d.Drops, Drop{Path: fmt.Sprintf("transactions[%d]", i), Reason: reason})
}

func (d *Diagnostics) dropHolding(i int, reason string) {
	d.DroppedHoldings++
	d.Drops = append(d.Drops, Drop{Path: fmt.Sprintf("investment_holdings[%d]", i), Reason: reason})
}

// Transform maps a provider-native record into a FamilyOfficeRecord.
//
// Transactions and holdings that cannot be attributed to an account, or whose
// date or amounts cannot be read, are dropped and tallied in the returned
// Diagnostics. A malformed structure (nil record, missing accounts, non-array
// collections, non-object elements, missing or duplicate account ids) fails
// with a *TransformationError. Output order follows input order and no
// floating point arithmetic is involved, so equal inputs give equal outputs.
func Transform(raw RawFinancialRecord) (*domain.FamilyOfficeRecord, *Diagnostics, error) {
	if raw == nil {
		return nil, nil, &TransformationError{Path: "$", Reason: "record is nil"}
	}

	rawAccounts, err := getArrayField(raw, "accounts", true)
	if err != nil {
		return nil, nil, err
	}
	rawTransactions, err := getArrayField(raw, "transactions", false)
	if err != nil {
		return nil, nil, err
	}
	rawHoldings, err := getArrayField(raw, "investment_holdings", false)
	if err != nil {
		return nil, nil, err
	}
	rawSecurities, err := getArrayField(raw, "securities", false)
	if err != nil {
		return nil, nil, err
	}

	diag := &Diagnostics{}
	record := &domain.FamilyOfficeRecord{
		Accounts:     make([]domain.Account, 0, len(rawAccounts)),
		Transactions: make([]domain.Transaction, 0, len(rawTransactions)),
		Holdings:     make([]domain.Holding, 0, len(rawHoldings)),
	}

	// account id -> account currency
	currencies := make(map[string]string, len(rawAccounts))
	for i, item := range rawAccounts {
		path := fmt.Sprintf("accounts[%d]", i)
		obj, err := objectAt(path, item)
		if err != nil {
			return nil, nil, err
		}
		acc, defaults, err := transformAccount(obj)
		if err != nil {
			return nil, nil, &TransformationError{Path: path, Reason: err.Error()}
		}
		if _, dup := currencies[acc.ID]; dup {
			return nil, nil, &TransformationError{
				Path:   path + ".account_id",
				Reason: fmt.Sprintf("duplicate account id %q", acc.ID),
			}
		}
		currencies[acc.ID] = acc.Currency
		diag.DefaultedFields += defaults
		record.Accounts = append(record.Accounts, acc)
	}

	tickers, err := indexSecurities(rawSecurities)
	if err != nil {
		return nil, nil, err
	}

	for i, item := range rawTransactions {
		obj, err := objectAt(fmt.Sprintf("transactions[%d]", i), item)
		if err != nil {
			return nil, nil, err
		}
		tx, defaults, reason := transformTransaction(obj, currencies)
		if reason != "" {
			diag.dropTransaction(i, reason)
			continue
		}
		diag.DefaultedFields += defaults
		record.Transactions = append(record.Transactions, tx)
	}

	for i, item := range rawHoldings {
		obj, err := objectAt(fmt.Sprintf("investment_holdings[%d]", i), item)
		if err != nil {
			return nil, nil, err
		}
		h, defaults, reason := transformHolding(obj, currencies, tickers)
		if reason != "" {
			diag.dropHolding(i, reason)
			continue
		}
		diag.DefaultedFields += defaults
		record.Holdings = append(record.Holdings, h)
	}

	return record, diag, nil
}

// transformAccount returns the account and the number of defaults applied.
func transformAccount(obj map[string]interface{}) (domain.Account, int, error) {
	var acc domain.Account
	defaults := 0

	id, err := getStringField(obj, "account_id", true)
	if err != nil {
		return acc, 0, err
	}
	acc.ID = strings.TrimSpace(id)

	balances, err := getOptionalObjectField(obj, "balances")
	if err != nil {
		return acc, 0, err
	}

	currency, err := firstStringField(balances, "iso_currency_code", "unofficial_currency_code")
	if err != nil {
		return acc, 0, fmt.Errorf("balances: %w", err)
	}
	if currency == "" {
		currency = domain.DefaultCurrency
		defaults++
	}
	acc.Currency = strings.ToUpper(currency)

	balance, ok, err := moneyField(balances, acc.Currency, "current", "available")
	if err != nil {
		return acc, 0, fmt.Errorf("balances: %w", err)
	}
	if !ok {
		balance = decimal.Zero
		defaults++
	}
	acc.Balance = balance

	acc.Name, err = firstStringField(obj, "name", "official_name")
	if err != nil {
		return acc, 0, err
	}
	if acc.Name == "" {
		acc.Name = acc.ID
		defaults++
	}

	accountType, err := getOptionalStringField(obj, "type")
	if err != nil {
		return acc, 0, err
	}
	if accountType == nil {
		acc.Type = domain.AccountTypeOther
		defaults++
	} else {
		acc.Type = strings.ToLower(*accountType)
	}

	return acc, defaults, nil
}

// transformTransaction returns a non-empty reason when the transaction must be dropped.
func transformTransaction(obj map[string]interface{}, currencies map[string]string) (domain.Transaction, int, string) {
	var tx domain.Transaction
	defaults := 0

	accountID, accountCurrency, reason := resolveAccount(obj, currencies)
	if reason != "" {
		return tx, 0, reason
	}
	tx.AccountID = accountID

	currency, err := firstStringField(obj, "iso_currency_code", "unofficial_currency_code")
	if err != nil {
		return tx, 0, err.Error()
	}
	if currency == "" {
		currency = accountCurrency
	}

	amount, ok, err := moneyField(obj, strings.ToUpper(currency), "amount")
	if err != nil {
		return tx, 0, err.Error()
	}
	if !ok {
		return tx, 0, "missing amount"
	}
	tx.Amount = amount

	dateStr, err := getOptionalStringField(obj, "date")
	if err != nil {
		return tx, 0, err.Error()
	}
	if dateStr == nil {
		return tx, 0, "missing date"
	}
	date, err := civil.ParseDate(*dateStr)
	if err != nil {
		return tx, 0, fmt.Sprintf("invalid date %q", *dateStr)
	}
	tx.Date = date

	category, err := categoryOf(obj)
	if err != nil {
		return tx, 0, err.Error()
	}
	if category == "" {
		category = uncategorized
		defaults++
	}
	tx.Category = category

	merchant, err := firstStringField(obj, "merchant_name", "name")
	if err != nil {
		return tx, 0, err.Error()
	}
	if merchant == "" {
		defaults++
	}
	tx.Merchant = merchant

	return tx, defaults, ""
}

// transformHolding returns a non-empty reason when the holding must be dropped.
func transformHolding(obj map[string]interface{}, currencies map[string]string, tickers map[string]string) (domain.Holding, int, string) {
	var h domain.Holding
	defaults := 0

	accountID, accountCurrency, reason := resolveAccount(obj, currencies)
	if reason != "" {
		return h, 0, reason
	}
	h.AccountID = accountID

	currency, err := firstStringField(obj, "iso_currency_code", "unofficial_currency_code")
	if err != nil {
		return h, 0, err.Error()
	}
	if currency == "" {
		currency = accountCurrency
	}
	currency = strings.ToUpper(currency)

	securityID, err := getOptionalStringField(obj, "security_id")
	if err != nil {
		return h, 0, err.Error()
	}
	switch {
	case securityID != nil && tickers[*securityID] != "":
		h.Symbol = tickers[*securityID]
	case securityID != nil:
		h.Symbol = *securityID
	default:
		h.Symbol = unknownSymbol
		defaults++
	}

	quantity, err := getOptionalDecimalField(obj, "quantity")
	if err != nil {
		return h, 0, err.Error()
	}
	if quantity == nil {
		h.Quantity = decimal.Zero
		defaults++
	} else {
		h.Quantity = *quantity
	}

	value, ok, err := moneyField(obj, currency, "institution_value")
	if err != nil {
		return h, 0, err.Error()
	}
	if !ok {
		price, hasPrice, err := moneyField(obj, currency, "institution_price")
		if err != nil {
			return h, 0, err.Error()
		}
		if hasPrice && quantity != nil {
			value = quantity.Mul(price)
		} else {
			value = decimal.Zero
			defaults++
		}
	}
	h.MarketValue = value

	return h, defaults, ""
}

func resolveAccount(obj map[string]interface{}, currencies map[string]string) (string, string, string) {
	accountID, err := getOptionalStringField(obj, "account_id")
	if err != nil {
		return "", "", err.Error()
	}
	if accountID == nil {
		return "", "", "missing account_id"
	}
	currency, ok := currencies[*accountID]
	if !ok {
		return "", "", fmt.Sprintf("unknown account_id %q", *accountID)
	}
	return *accountID, currency, ""
}

// categoryOf prefers the personal finance category over the legacy category hierarchy.
func categoryOf(obj map[string]interface{}) (string, error) {
	pfc, err := getOptionalObjectField(obj, "personal_finance_category")
	if err != nil {
		return "", err
	}
	primary, err := getOptionalStringField(pfc, "primary")
	if err != nil {
		return "", fmt.Errorf("personal_finance_category: %w", err)
	}
	if primary != nil {
		return *primary, nil
	}

	switch v := obj["category"].(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(v), nil
	case []interface{}:
		parts := make([]string, 0, len(v))
		for i, p := range v {
			s, ok := p.(string)
			if !ok {
				return "", fmt.Errorf("category[%d] has type %T, want string", i, p)
			}
			if s = strings.TrimSpace(s); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, categorySeparator), nil
	default:
		return "", fmt.Errorf("field %q has type %T, want array of strings", "category", v)
	}
}

func indexSecurities(rawSecurities []interface{}) (map[string]string, error) {
	tickers := make(map[string]string, len(rawSecurities))
	for i, item := range rawSecurities {
		path := fmt.Sprintf("securities[%d]", i)
		obj, err := objectAt(path, item)
		if err != nil {
			return nil, err
		}
		id, err := getOptionalStringField(obj, "security_id")
		if err != nil {
			return nil, &TransformationError{Path: path, Reason: err.Error()}
		}
		ticker, err := getOptionalStringField(obj, "ticker_symbol")
		if err != nil {
			return nil, &TransformationError{Path: path, Reason: err.Error()}
		}
		if id == nil || ticker == nil {
			continue
		}
		if _, seen := tickers[*id]; !seen {
			tickers[*id] = *ticker
		}
	}
	return tickers, nil
}

// Minor unit exponents that differ from the default of 2.
var minorUnitExponents = map[string]int32{
	"JPY": 0,
	"KRW": 0,
	"BHD": 3,
	"KWD": 3,
	"OMR": 3,
}

func minorUnitExponent(currency string) int32 {
	if exp, ok := minorUnitExponents[currency]; ok {
		return exp
	}
	return 2
}

// moneyField returns the first amount found among keys. For each key the
// minor-unit integer variant (key + "_minor") wins over the decimal one.
func moneyField(m map[string]interface{}, currency string, keys ...string) (decimal.Decimal, bool, error) {
	for _, key := range keys {
		minor, err := getOptionalMinorUnitsField(m, key+"_minor")
		if err != nil {
			return decimal.Zero, false, err
		}
		if minor != nil {
			return minor.Shift(-minorUnitExponent(currency)), true, nil
		}

		d, err := getOptionalDecimalField(m, key)
		if err != nil {
			return decimal.Zero, false, err
		}
		if d != nil {
			return *d, true, nil
		}
	}
	return decimal.Zero, false, nil
}

func getArrayField(m map[string]interface{}, key string, required bool) ([]interface{}, error) {
	v, ok := m[key]
	if !ok || v == nil {
		if required {
			return nil, &TransformationError{Path: key, Reason: "missing required collection"}
		}
		return nil, nil
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil, &TransformationError{Path: key, Reason: fmt.Sprintf("has type %T, want array", v)}
	}
	return arr, nil
}

func objectAt(path string, item interface{}) (map[string]interface{}, error) {
	obj, ok := item.(map[string]interface{})
	if !ok {
		return nil, &TransformationError{Path: path, Reason: fmt.Sprintf("element has type %T, want object", item)}
	}
	return obj, nil
}

func getStringField(m map[string]interface{}, key string, required bool) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("missing required field %q", key)
		}
		return "", nil
	}
	switch val := v.(type) {
	case string:
		if required && strings.TrimSpace(val) == "" {
			return "", fmt.Errorf("required field %q is empty", key)
		}
		return val, nil
	default:
		return "", fmt.Errorf("field %q has type %T, want string", key, v)
	}
}

func getOptionalStringField(m map[string]interface{}, key string) (*string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil, nil
		}
		return &s, nil
	default:
		return nil, fmt.Errorf("field %q has type %T, want string or null", key, v)
	}
}

// firstStringField returns the first non-empty string among keys, or "".
func firstStringField(m map[string]interface{}, keys ...string) (string, error) {
	for _, key := range keys {
		s, err := getOptionalStringField(m, key)
		if err != nil {
			return "", err
		}
		if s != nil {
			return *s, nil
		}
	}
	return "", nil
}

func getOptionalObjectField(m map[string]interface{}, key string) (map[string]interface{}, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("field %q has type %T, want object or null", key, v)
	}
	return obj, nil
}

func getOptionalDecimalField(m map[string]interface{}, key string) (*decimal.Decimal, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}

	var text string
	switch val := v.(type) {
	case json.Number:
		text = val.String()
	case string:
		text = strings.TrimSpace(val)
	case float64:
		// Only reached when the caller decoded without UseNumber.
		text = strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		d := decimal.NewFromInt(int64(val))
		return &d, nil
	case int64:
		d := decimal.NewFromInt(val)
		return &d, nil
	default:
		return nil, fmt.Errorf("field %q has type %T, want number or null", key, v)
	}

	d, err := decimal.NewFromString(text)
	if err != nil {
		return nil, fmt.Errorf("field %q: invalid number %q", key, text)
	}
	return &d, nil
}

// getOptionalMinorUnitsField reads an integral count of minor units. The
// value stays a decimal so counts beyond the int64 range keep every digit.
func getOptionalMinorUnitsField(m map[string]interface{}, key string) (*decimal.Decimal, error) {
	d, err := getOptionalDecimalField(m, key)
	if err != nil || d == nil {
		return nil, err
	}
	if !d.IsInteger() {
		return nil, fmt.Errorf("field %q: minor units must be an integer, got %s", key, d.String())
	}
	return d, nil
}

package plaid

import (
	"errors"
	"fmt"
	"strings"
)

// Plaid error codes the adapter reacts to.
const (
	CodeProductNotReady       = "PRODUCT_NOT_READY"
	CodeProductsNotSupported  = "PRODUCTS_NOT_SUPPORTED"
	CodeNoInvestmentAccounts  = "NO_INVESTMENT_ACCOUNTS"
	CodeInvalidProduct        = "INVALID_PRODUCT"
	CodeAdditionalConsentReqd = "ADDITIONAL_CONSENT_REQUIRED"
)

// APIError is the error object Plaid returns with non-200 responses.
type APIError struct {
	Endpoint       string `json:"-"`
	StatusCode     int    `json:"-"`
	ErrorType      string `json:"error_type"`
	ErrorCode      string `json:"error_code"`
	ErrorMessage   string `json:"error_message"`
	DisplayMessage string `json:"display_message"`
	RequestID      string `json:"request_id"`
}

func (e *APIError) Error() string {
	msg := e.ErrorMessage
	if msg == "" {
		msg = "no error message"
	}
	if e.ErrorCode == "" {
		return fmt.Sprintf("plaid %s: status %d: %s", e.Endpoint, e.StatusCode, msg)
	}
	return fmt.Sprintf("plaid %s: %s %s: %s", e.Endpoint, e.ErrorType, e.ErrorCode, msg)
}

func newAPIError(endpoint string, status int, body []byte) *APIError {
	apiErr := &APIError{}
	if err := json.Unmarshal(body, apiErr); err != nil {
		apiErr = &APIError{ErrorMessage: strings.TrimSpace(string(body))}
	}
	apiErr.Endpoint = endpoint
	apiErr.StatusCode = status
	return apiErr
}

func hasCode(err error, codes ...string) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, code := range codes {
		if apiErr.ErrorCode == code {
			return true
		}
	}
	return false
}

// IsProductNotReady reports whether Plaid has not finished preparing a product
// for a freshly created item.
func IsProductNotReady(err error) bool {
	return hasCode(err, CodeProductNotReady)
}

// IsProductUnavailable reports whether the item cannot serve a product at all.
func IsProductUnavailable(err error) bool {
	return hasCode(err, CodeProductsNotSupported, CodeNoInvestmentAccounts, CodeInvalidProduct, CodeAdditionalConsentReqd)
}

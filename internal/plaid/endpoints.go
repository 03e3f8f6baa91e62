package plaid

import (
	"context"

	"cloud.google.com/go/civil"
)

type sandboxPublicTokenRequest struct {
	credentials
	InstitutionID   string   `json:"institution_id"`
	InitialProducts []string `json:"initial_products"`
}

type sandboxPublicTokenResponse struct {
	PublicToken string `json:"public_token"`
	RequestID   string `json:"request_id"`
}

// CreateSandboxPublicToken creates a public token for a sandbox institution.
func (c *Client) CreateSandboxPublicToken(ctx context.Context, institutionID string, products []string) (string, error) {
	var resp sandboxPublicTokenResponse
	err := c.post(ctx, "/sandbox/public_token/create", sandboxPublicTokenRequest{
		credentials:     c.credentials(),
		InstitutionID:   institutionID,
		InitialProducts: products,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.PublicToken, nil
}

type exchangeRequest struct {
	credentials
	PublicToken string `json:"public_token"`
}

type exchangeResponse struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
}

// ExchangePublicToken trades a public token for an access token.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (accessToken, itemID string, err error) {
	var resp exchangeResponse
	err = c.post(ctx, "/item/public_token/exchange", exchangeRequest{
		credentials: c.credentials(),
		PublicToken: publicToken,
	}, &resp)
	if err != nil {
		return "", "", err
	}
	return resp.AccessToken, resp.ItemID, nil
}

type accessTokenRequest struct {
	credentials
	AccessToken string `json:"access_token"`
}

type accountsResponse struct {
	Accounts []interface{} `json:"accounts"`
}

// GetAccounts returns the raw account objects of an item.
func (c *Client) GetAccounts(ctx context.Context, accessToken string) ([]interface{}, error) {
	var resp accountsResponse
	err := c.post(ctx, "/accounts/get", accessTokenRequest{
		credentials: c.credentials(),
		AccessToken: accessToken,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return orEmpty(resp.Accounts), nil
}

// Plaid caps count at 500 per page.
const transactionsPageSize = 500

type transactionsRequest struct {
	credentials
	AccessToken string              `json:"access_token"`
	StartDate   string              `json:"start_date"`
	EndDate     string              `json:"end_date"`
	Options     transactionsOptions `json:"options"`
}

type transactionsOptions struct {
	Count  int `json:"count"`
	Offset int `json:"offset"`
}

type transactionsResponse struct {
	Transactions      []interface{} `json:"transactions"`
	TotalTransactions int           `json:"total_transactions"`
}

// GetTransactions returns every raw transaction between start and end,
// following Plaid's offset pagination.
func (c *Client) GetTransactions(ctx context.Context, accessToken string, start, end civil.Date) ([]interface{}, error) {
	all := []interface{}{}
	for {
		var resp transactionsResponse
		err := c.post(ctx, "/transactions/get", transactionsRequest{
			credentials: c.credentials(),
			AccessToken: accessToken,
			StartDate:   start.String(),
			EndDate:     end.String(),
			Options:     transactionsOptions{Count: transactionsPageSize, Offset: len(all)},
		}, &resp)
		if err != nil {
			return nil, err
		}

		all = append(all, resp.Transactions...)
		if len(resp.Transactions) == 0 || len(all) >= resp.TotalTransactions {
			return all, nil
		}
	}
}

type holdingsResponse struct {
	Holdings   []interface{} `json:"holdings"`
	Securities []interface{} `json:"securities"`
}

// GetInvestmentHoldings returns the raw holdings and the securities they
// reference.
func (c *Client) GetInvestmentHoldings(ctx context.Context, accessToken string) (holdings, securities []interface{}, err error) {
	var resp holdingsResponse
	err = c.post(ctx, "/investments/holdings/get", accessTokenRequest{
		credentials: c.credentials(),
		AccessToken: accessToken,
	}, &resp)
	if err != nil {
		return nil, nil, err
	}
	return orEmpty(resp.Holdings), orEmpty(resp.Securities), nil
}

func orEmpty(items []interface{}) []interface{} {
	if items == nil {
		return []interface{}{}
	}
	return items
}

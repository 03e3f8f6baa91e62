package plaid

import (
	"context"
	"time"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/aperture/internal/config"
	"github.com/dvloznov/aperture/internal/logger"
)

// SourceName identifies records fetched from Plaid in artifact names.
const SourceName = "plaid"

const productInvestments = "investments"

// Adapter fetches one complete raw record per call: it creates a sandbox
// item, exchanges its token and reads accounts, transactions and holdings.
type Adapter struct {
	client        *Client
	institutionID string
	products      []string
	lookbackDays  int
	retries       int
	retryDelay    time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
	now           func() time.Time
}

type AdapterOption func(*Adapter)

// WithSleeper replaces the wait between PRODUCT_NOT_READY retries.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) AdapterOption {
	return func(a *Adapter) { a.sleep = sleep }
}

// WithClock replaces the clock used for the transaction window and metadata.
func WithClock(now func() time.Time) AdapterOption {
	return func(a *Adapter) { a.now = now }
}

func NewAdapter(client *Client, cfg config.Plaid, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		client:        client,
		institutionID: cfg.InstitutionID,
		products:      cfg.Products,
		lookbackDays:  cfg.LookbackDays,
		retries:       cfg.ProductRetries,
		retryDelay:    cfg.ProductRetryDelay,
		sleep:         sleepContext,
		now:           time.Now,
	}
	if a.retries < 1 {
		a.retries = 1
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string { return SourceName }

// Fetch returns a provider-native record with the keys metadata, accounts,
// transactions, investment_holdings and securities. Transactions or holdings
// that never become ready degrade to empty lists, as does an item without an
// investments product.
func (a *Adapter) Fetch(ctx context.Context) (map[string]interface{}, error) {
	log := logger.FromContext(ctx).With().Str("source", SourceName).Logger()

	publicToken, err := a.client.CreateSandboxPublicToken(ctx, a.institutionID, a.products)
	if err != nil {
		return nil, err
	}
	accessToken, itemID, err := a.client.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		return nil, err
	}
	log.Info().Str("item_id", itemID).Msg("Exchanged sandbox public token")

	accounts, err := a.client.GetAccounts(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	log.Info().Int("account_count", len(accounts)).Msg("Fetched accounts")

	now := a.now()
	end := civil.DateOf(now)
	start := end.AddDays(-a.lookbackDays)

	var transactions []interface{}
	err = a.withProductRetry(ctx, "transactions", func() error {
		var err error
		transactions, err = a.client.GetTransactions(ctx, accessToken, start, end)
		return err
	})
	if IsProductNotReady(err) {
		log.Warn().Err(err).Msg("Transactions never became ready, continuing without them")
		transactions, err = []interface{}{}, nil
	}
	if err != nil {
		return nil, err
	}
	log.Info().Int("transaction_count", len(transactions)).Msg("Fetched transactions")

	holdings, securities := []interface{}{}, []interface{}{}
	if a.wants(productInvestments) {
		err = a.withProductRetry(ctx, productInvestments, func() error {
			var err error
			holdings, securities, err = a.client.GetInvestmentHoldings(ctx, accessToken)
			return err
		})
		if IsProductNotReady(err) || IsProductUnavailable(err) {
			log.Warn().Err(err).Msg("Investment holdings unavailable, continuing without them")
			holdings, securities, err = []interface{}{}, []interface{}{}, nil
		}
		if err != nil {
			return nil, err
		}
		log.Info().Int("holding_count", len(holdings)).Msg("Fetched investment holdings")
	}

	return map[string]interface{}{
		"metadata": map[string]interface{}{
			"fetched_at":  now.UTC().Format(time.RFC3339),
			"item_id":     itemID,
			"data_source": "plaid_sandbox",
		},
		"accounts":            accounts,
		"transactions":        transactions,
		"investment_holdings": holdings,
		"securities":          securities,
	}, nil
}

func (a *Adapter) wants(product string) bool {
	for _, p := range a.products {
		if p == product {
			return true
		}
	}
	return false
}

// withProductRetry repeats fn while Plaid reports PRODUCT_NOT_READY, up to
// the configured number of tries, waiting retryDelay in between.
func (a *Adapter) withProductRetry(ctx context.Context, product string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= a.retries; attempt++ {
		err = fn()
		if !IsProductNotReady(err) || attempt == a.retries {
			return err
		}
		log := logger.FromContext(ctx)
		log.Info().
			Str("product", product).
			Int("attempt", attempt).
			Int("max_attempts", a.retries).
			Dur("delay", a.retryDelay).
			Msg("Product not ready, retrying")
		if serr := a.sleep(ctx, a.retryDelay); serr != nil {
			return serr
		}
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

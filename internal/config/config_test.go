package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Defaults(t *testing.T) {
	cfg, err := decode(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "https://sandbox.plaid.com", cfg.Plaid.BaseURL)
	assert.Equal(t, []string{"transactions", "investments"}, cfg.Plaid.Products)
	assert.Equal(t, 30*time.Second, cfg.Plaid.Timeout)
	assert.Equal(t, ProviderGemini, cfg.LLM.Provider)
	assert.Equal(t, "output", cfg.Artifacts.Dir)
	assert.False(t, cfg.BigQuery.Enabled())
	assert.False(t, cfg.Notion.Enabled())
}

func TestDecode_FromEnvironment(t *testing.T) {
	t.Setenv("PLAID_CLIENT_ID", "client")
	t.Setenv("PLAID_SECRET", "secret")
	t.Setenv("PLAID_BASE_URL", "http://localhost:9999/")
	t.Setenv("PLAID_PRODUCTS", "transactions, investments,liabilities")
	t.Setenv("PLAID_PRODUCT_RETRY_DELAY", "250ms")
	t.Setenv("LLM_PROVIDER", " OpenAI ")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("BIGQUERY_PROJECT_ID", "proj")
	t.Setenv("NOTION_TOKEN", "tok")
	t.Setenv("NOTION_INSIGHTS_DATABASE_ID", "db")

	cfg, err := decode(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "client", cfg.Plaid.ClientID)
	assert.Equal(t, "http://localhost:9999", cfg.Plaid.BaseURL)
	assert.Equal(t, []string{"transactions", "investments", "liabilities"}, cfg.Plaid.Products)
	assert.Equal(t, 250*time.Millisecond, cfg.Plaid.ProductRetryDelay)
	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.True(t, cfg.BigQuery.Enabled())
	assert.True(t, cfg.Notion.Enabled())
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Plaid:     Plaid{ClientID: "id", Secret: "secret"},
			LLM:       LLM{Provider: ProviderGemini, GoogleAPIKey: "key"},
			Artifacts: Artifacts{Dir: "output"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		mode    Mode
		wantErr string
	}{
		{name: "plaid mode complete", mutate: func(c *Config) {}, mode: ModePlaid},
		{
			name:    "plaid mode missing secret",
			mutate:  func(c *Config) { c.Plaid.Secret = "" },
			mode:    ModePlaid,
			wantErr: "PLAID_SECRET",
		},
		{
			name:   "mock mode ignores plaid credentials",
			mutate: func(c *Config) { c.Plaid = Plaid{} },
			mode:   ModeMock,
		},
		{
			name:    "mock mode needs gemini key",
			mutate:  func(c *Config) { c.LLM.GoogleAPIKey = "" },
			mode:    ModeMock,
			wantErr: "GOOGLE_API_KEY",
		},
		{
			name:    "openai provider needs openai key",
			mutate:  func(c *Config) { c.LLM.Provider = ProviderOpenAI },
			mode:    ModeMock,
			wantErr: "OPENAI_API_KEY",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.LLM.Provider = "llama" },
			mode:    ModePlaid,
			wantErr: "unsupported LLM_PROVIDER",
		},
		{
			name:   "offline needs nothing",
			mutate: func(c *Config) { c.Plaid = Plaid{}; c.LLM = LLM{} },
			mode:   ModeOffline,
		},
		{
			name:    "fetch mode needs plaid only",
			mutate:  func(c *Config) { c.LLM = LLM{}; c.Plaid.ClientID = "" },
			mode:    ModeFetch,
			wantErr: "PLAID_CLIENT_ID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate(tt.mode)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

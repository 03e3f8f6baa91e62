package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Mode selects which credentials a command needs.
type Mode string

const (
	// ModeMock analyzes the bundled mock dataset: only LLM credentials are required.
	ModeMock Mode = "mock"
	// ModePlaid fetches live sandbox data: Plaid and LLM credentials are required.
	ModePlaid Mode = "plaid"
	// ModeFetch only talks to Plaid.
	ModeFetch Mode = "fetch"
	// ModeOffline runs the transformer only and needs no credentials.
	ModeOffline Mode = "offline"
)

// LLM providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Config struct {
	App       App       `mapstructure:",squash"`
	Plaid     Plaid     `mapstructure:",squash"`
	LLM       LLM       `mapstructure:",squash"`
	Artifacts Artifacts `mapstructure:",squash"`
	BigQuery  BigQuery  `mapstructure:",squash"`
	Notion    Notion    `mapstructure:",squash"`
}

type App struct {
	LogLevel     string `mapstructure:"log_level"`
	LogJSON      bool   `mapstructure:"log_json"`
	MockDataPath string `mapstructure:"mock_data_path"`
}

type Plaid struct {
	ClientID          string        `mapstructure:"plaid_client_id"`
	Secret            string        `mapstructure:"plaid_secret"`
	BaseURL           string        `mapstructure:"plaid_base_url"`
	InstitutionID     string        `mapstructure:"plaid_institution_id"`
	Products          []string      `mapstructure:"plaid_products"`
	LookbackDays      int           `mapstructure:"plaid_lookback_days"`
	Timeout           time.Duration `mapstructure:"plaid_timeout"`
	ProductRetries    int           `mapstructure:"plaid_product_retries"`
	ProductRetryDelay time.Duration `mapstructure:"plaid_product_retry_delay"`
}

type LLM struct {
	Provider        string        `mapstructure:"llm_provider"`
	GoogleAPIKey    string        `mapstructure:"google_api_key"`
	GeminiModel     string        `mapstructure:"gemini_model"`
	OpenAIAPIKey    string        `mapstructure:"openai_api_key"`
	OpenAIModel     string        `mapstructure:"openai_model"`
	OpenAIBaseURL   string        `mapstructure:"openai_base_url"`
	Temperature     float32       `mapstructure:"llm_temperature"`
	MaxOutputTokens int           `mapstructure:"llm_max_output_tokens"`
	Timeout         time.Duration `mapstructure:"llm_timeout"`
}

type Artifacts struct {
	Dir             string `mapstructure:"output_dir"`
	GCSBucket       string `mapstructure:"artifacts_gcs_bucket"`
	GCSPrefix       string `mapstructure:"artifacts_gcs_prefix"`
	CredentialsFile string `mapstructure:"google_application_credentials"`
}

type BigQuery struct {
	ProjectID string `mapstructure:"bigquery_project_id"`
	Dataset   string `mapstructure:"bigquery_dataset"`
	Table     string `mapstructure:"bigquery_artifacts_table"`
}

// Enabled reports whether artifacts should also be recorded in BigQuery.
func (b BigQuery) Enabled() bool { return b.ProjectID != "" }

type Notion struct {
	Token      string `mapstructure:"notion_token"`
	DatabaseID string `mapstructure:"notion_insights_database_id"`
}

// Enabled reports whether validated insights should be published to Notion.
func (n Notion) Enabled() bool { return n.Token != "" && n.DatabaseID != "" }

func setDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_JSON", false)
	v.SetDefault("MOCK_DATA_PATH", "")

	v.SetDefault("PLAID_CLIENT_ID", "")
	v.SetDefault("PLAID_SECRET", "")
	v.SetDefault("PLAID_BASE_URL", "https://sandbox.plaid.com")
	v.SetDefault("PLAID_INSTITUTION_ID", "ins_109508") // Plaid test bank
	v.SetDefault("PLAID_PRODUCTS", []string{"transactions", "investments"})
	v.SetDefault("PLAID_LOOKBACK_DAYS", 30)
	v.SetDefault("PLAID_TIMEOUT", 30*time.Second)
	v.SetDefault("PLAID_PRODUCT_RETRIES", 3)
	v.SetDefault("PLAID_PRODUCT_RETRY_DELAY", 5*time.Second)

	v.SetDefault("LLM_PROVIDER", ProviderGemini)
	v.SetDefault("GOOGLE_API_KEY", "")
	v.SetDefault("GEMINI_MODEL", "gemini-2.0-flash")
	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("OPENAI_BASE_URL", "")
	v.SetDefault("LLM_TEMPERATURE", 0.1)
	v.SetDefault("LLM_MAX_OUTPUT_TOKENS", 4096)
	v.SetDefault("LLM_TIMEOUT", 2*time.Minute)

	v.SetDefault("OUTPUT_DIR", "output")
	v.SetDefault("ARTIFACTS_GCS_BUCKET", "")
	v.SetDefault("ARTIFACTS_GCS_PREFIX", "aperture/")
	v.SetDefault("GOOGLE_APPLICATION_CREDENTIALS", "")

	v.SetDefault("BIGQUERY_PROJECT_ID", "")
	v.SetDefault("BIGQUERY_DATASET", "finance")
	v.SetDefault("BIGQUERY_ARTIFACTS_TABLE", "pipeline_artifacts")

	v.SetDefault("NOTION_TOKEN", "")
	v.SetDefault("NOTION_INSIGHTS_DATABASE_ID", "")
}

// NewConfig builds the configuration once at startup from an optional .env
// file and the process environment.
func NewConfig() (*Config, error) {
	loadEnvFile()
	return decode(viper.New())
}

func decode(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	v.AutomaticEnv()

	config := &Config{}
	err := v.Unmarshal(config, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	))
	if err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	config.LLM.Provider = strings.ToLower(strings.TrimSpace(config.LLM.Provider))
	config.Plaid.BaseURL = strings.TrimRight(config.Plaid.BaseURL, "/")
	for i, p := range config.Plaid.Products {
		config.Plaid.Products[i] = strings.TrimSpace(p)
	}

	return config, nil
}

// Validate checks that every credential the given mode needs is present.
// Missing credentials are a startup error, never a per-call one.
func (c *Config) Validate(mode Mode) error {
	var errs []error

	needPlaid := mode == ModePlaid || mode == ModeFetch
	needLLM := mode == ModePlaid || mode == ModeMock

	if needPlaid {
		if c.Plaid.ClientID == "" {
			errs = append(errs, errors.New("PLAID_CLIENT_ID is required"))
		}
		if c.Plaid.Secret == "" {
			errs = append(errs, errors.New("PLAID_SECRET is required"))
		}
	}

	if needLLM {
		switch c.LLM.Provider {
		case ProviderGemini:
			if c.LLM.GoogleAPIKey == "" {
				errs = append(errs, errors.New("GOOGLE_API_KEY is required for LLM_PROVIDER=gemini"))
			}
		case ProviderOpenAI:
			if c.LLM.OpenAIAPIKey == "" {
				errs = append(errs, errors.New("OPENAI_API_KEY is required for LLM_PROVIDER=openai"))
			}
		default:
			errs = append(errs, fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLM.Provider))
		}
	}

	if c.Artifacts.Dir == "" {
		errs = append(errs, errors.New("OUTPUT_DIR must not be empty"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid for %s mode: %w", mode, errors.Join(errs...))
	}
	return nil
}

// loadEnvFile loads the first .env found in the working directory or its parent.
// A missing file is not an error; the environment may be set by other means.
func loadEnvFile() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	for _, path := range []string{
		filepath.Join(cwd, ".env"),
		filepath.Join(filepath.Dir(cwd), ".env"),
	} {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

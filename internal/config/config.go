package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/shepherdwind/bean-talk/internal/common"
	"github.com/shepherdwind/bean-talk/internal/llm"
	"github.com/shepherdwind/bean-talk/internal/scheduler"
	"github.com/shepherdwind/bean-talk/internal/service"
)

// Defaults for keys that have one.
const (
	DefaultGmailQuery     = "from:*@dbs.com is:unread"
	DefaultExpenseAccount = "Expenses:Uncategorized"
	DefaultAssetAccount   = "Assets:DBS:SGD:Saving"
	DefaultCategoryPath   = "config/merchant-category-mapping.json"
	DefaultDatabasePath   = "~/.local/share/beantalk/beantalk.db"
	DefaultMetricsAddr    = ":9090"
	DefaultNotifyAttempts = 3
	DefaultNotifyBackoff  = 2 * time.Second

	defaultGmailCredentialsPath = "~/.config/beantalk/credentials.json"
	defaultGmailTokenPath       = "~/.config/beantalk/token.json"
	defaultGmailCallbackAddr    = "localhost:8080"
	defaultLedgerPath           = "~/beancount/main.bean"
	defaultCurrency             = "SGD"
	defaultCashAccount          = "Assets:Cash"
	defaultLLMProvider          = "openai"
	defaultReportDays           = 30
)

// SetDefaults registers default values with viper. Keys that also honor a
// plain environment variable get their default in the matching loader so the
// variable is not shadowed.
func SetDefaults() {
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("gmail.query", DefaultGmailQuery)
	viper.SetDefault("gmail.callback_addr", defaultGmailCallbackAddr)
	viper.SetDefault("ledger.default_expense_account", DefaultExpenseAccount)
	viper.SetDefault("ledger.default_asset_account", DefaultAssetAccount)
	viper.SetDefault("ledger.cash_account", defaultCashAccount)
	viper.SetDefault("ledger.currency", defaultCurrency)
	viper.SetDefault("database.path", DefaultDatabasePath)
	viper.SetDefault("llm.provider", defaultLLMProvider)
	viper.SetDefault("llm.cache_ttl", 15*time.Minute)
	viper.SetDefault("llm.rate_limit", 20)
	viper.SetDefault("llm.max_retries", 3)
	viper.SetDefault("llm.retry_delay", time.Second)
	viper.SetDefault("schedule.startup_scan", true)
	viper.SetDefault("metrics.addr", DefaultMetricsAddr)
	viper.SetDefault("notify.max_attempts", DefaultNotifyAttempts)
	viper.SetDefault("notify.backoff", DefaultNotifyBackoff)
	viper.SetDefault("report.days", defaultReportDays)
}

// GmailConfig locates the Gmail OAuth files and the alert query.
type GmailConfig struct {
	CredentialsPath string
	TokenPath       string
	Query           string
	CallbackAddr    string
}

// LoadGmailConfig reads the gmail section, falling back to
// GMAIL_CREDENTIALS_PATH and GMAIL_TOKENS_PATH.
func LoadGmailConfig() (*GmailConfig, error) {
	cfg := &GmailConfig{
		CredentialsPath: firstNonEmpty(viper.GetString("gmail.credentials_path"), os.Getenv("GMAIL_CREDENTIALS_PATH"), defaultGmailCredentialsPath),
		TokenPath:       firstNonEmpty(viper.GetString("gmail.token_path"), os.Getenv("GMAIL_TOKENS_PATH"), defaultGmailTokenPath),
		Query:           firstNonEmpty(viper.GetString("gmail.query"), DefaultGmailQuery),
		CallbackAddr:    firstNonEmpty(viper.GetString("gmail.callback_addr"), defaultGmailCallbackAddr),
	}
	cfg.CredentialsPath = ExpandPath(cfg.CredentialsPath)
	cfg.TokenPath = ExpandPath(cfg.TokenPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the required fields are present.
func (c *GmailConfig) Validate() error {
	if c.CredentialsPath == "" {
		return fmt.Errorf("%w: gmail.credentials_path", common.ErrMissingConfig)
	}
	if c.TokenPath == "" {
		return fmt.Errorf("%w: gmail.token_path", common.ErrMissingConfig)
	}
	return nil
}

// TelegramConfig holds bot credentials and the chat that receives prompts.
type TelegramConfig struct {
	Mentions map[string]string
	Token    string
	ChatID   int64
}

// LoadTelegramConfig reads the telegram section, falling back to
// TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID.
func LoadTelegramConfig() (*TelegramConfig, error) {
	cfg := &TelegramConfig{
		Token:    firstNonEmpty(viper.GetString("telegram.token"), os.Getenv("TELEGRAM_BOT_TOKEN")),
		Mentions: viper.GetStringMapString("telegram.mentions"),
	}

	rawChatID := firstNonEmpty(viper.GetString("telegram.chat_id"), os.Getenv("TELEGRAM_CHAT_ID"))
	if rawChatID != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(rawChatID), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: telegram.chat_id %q is not a number", common.ErrInvalidConfig, rawChatID)
		}
		cfg.ChatID = id
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the required fields are present.
func (c *TelegramConfig) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("%w: telegram.token", common.ErrMissingConfig)
	}
	if c.ChatID == 0 {
		return fmt.Errorf("%w: telegram.chat_id", common.ErrMissingConfig)
	}
	return nil
}

// LedgerConfig describes the beancount file and the accounts used when
// booking transactions.
type LedgerConfig struct {
	AssetAccounts         map[string]string // Card or recipient fragment to asset account
	Path                  string
	DefaultExpenseAccount string
	DefaultAssetAccount   string
	CashAccount           string
	Currency              string
}

// LoadLedgerConfig reads the ledger section, falling back to BEANCOUNT_FILE_PATH.
func LoadLedgerConfig() (*LedgerConfig, error) {
	cfg := &LedgerConfig{
		Path:                  ExpandPath(firstNonEmpty(viper.GetString("ledger.path"), os.Getenv("BEANCOUNT_FILE_PATH"), defaultLedgerPath)),
		DefaultExpenseAccount: firstNonEmpty(viper.GetString("ledger.default_expense_account"), DefaultExpenseAccount),
		DefaultAssetAccount:   firstNonEmpty(viper.GetString("ledger.default_asset_account"), DefaultAssetAccount),
		CashAccount:           firstNonEmpty(viper.GetString("ledger.cash_account"), defaultCashAccount),
		Currency:              strings.ToUpper(firstNonEmpty(viper.GetString("ledger.currency"), defaultCurrency)),
		AssetAccounts:         viper.GetStringMapString("ledger.asset_accounts"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the required fields are present and account names
// look like beancount accounts.
func (c *LedgerConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: ledger.path", common.ErrMissingConfig)
	}
	accounts := map[string]string{
		"ledger.default_expense_account": c.DefaultExpenseAccount,
		"ledger.default_asset_account":   c.DefaultAssetAccount,
		"ledger.cash_account":            c.CashAccount,
	}
	for fragment, account := range c.AssetAccounts {
		accounts["ledger.asset_accounts."+fragment] = account
	}
	for key, account := range accounts {
		if !strings.Contains(account, ":") {
			return fmt.Errorf("%w: %s %q is not a ledger account", common.ErrInvalidConfig, key, account)
		}
	}
	return nil
}

// CategoryPath returns the merchant mapping file, falling back to
// MERCHANT_CATEGORY_CONFIG_PATH.
func CategoryPath() string {
	return ExpandPath(firstNonEmpty(viper.GetString("category.path"), os.Getenv("MERCHANT_CATEGORY_CONFIG_PATH"), DefaultCategoryPath))
}

// DatabasePath returns the journal database file.
func DatabasePath() string {
	return ExpandPath(firstNonEmpty(viper.GetString("database.path"), DefaultDatabasePath))
}

// Schedule returns the scan cron expression, falling back to CRON_SCHEDULE.
func Schedule() string {
	return firstNonEmpty(viper.GetString("schedule.cron"), os.Getenv("CRON_SCHEDULE"), scheduler.DefaultSchedule)
}

// NotifyRetry returns the fixed-backoff retry policy for chat notifications.
func NotifyRetry() service.RetryOptions {
	attempts := viper.GetInt("notify.max_attempts")
	if attempts <= 0 {
		attempts = DefaultNotifyAttempts
	}
	backoff := viper.GetDuration("notify.backoff")
	if backoff <= 0 {
		backoff = DefaultNotifyBackoff
	}
	return service.RetryOptions{
		MaxAttempts:  attempts,
		InitialDelay: backoff,
		MaxDelay:     backoff,
		Multiplier:   1,
	}
}

// LoadLLMConfig reads the llm section. The API key falls back to
// OPENAI_API_KEY or ANTHROPIC_API_KEY depending on the provider. A missing
// key is not an error: the suggester is simply disabled.
func LoadLLMConfig() (llm.Config, bool, error) {
	cfg := llm.Config{
		Provider:    strings.ToLower(firstNonEmpty(viper.GetString("llm.provider"), defaultLLMProvider)),
		APIKey:      viper.GetString("llm.api_key"),
		Model:       viper.GetString("llm.model"),
		BaseURL:     viper.GetString("llm.base_url"),
		Temperature: viper.GetFloat64("llm.temperature"),
		MaxTokens:   viper.GetInt("llm.max_tokens"),
		CacheTTL:    viper.GetDuration("llm.cache_ttl"),
		RateLimit:   viper.GetInt("llm.rate_limit"),
		MaxRetries:  viper.GetInt("llm.max_retries"),
		RetryDelay:  viper.GetDuration("llm.retry_delay"),
	}

	switch cfg.Provider {
	case "openai":
		cfg.APIKey = firstNonEmpty(cfg.APIKey, os.Getenv("OPENAI_API_KEY"))
	case "anthropic":
		cfg.APIKey = firstNonEmpty(cfg.APIKey, os.Getenv("ANTHROPIC_API_KEY"))
	default:
		return cfg, false, fmt.Errorf("%w: llm.provider %q", common.ErrInvalidConfig, cfg.Provider)
	}

	return cfg, cfg.APIKey != "", nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

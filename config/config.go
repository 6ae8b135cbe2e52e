package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"signalCopyBot/internal/adapters/logger"
	"signalCopyBot/internal/domain"
	"signalCopyBot/internal/parser"
	"signalCopyBot/internal/symbols"
	"signalCopyBot/internal/trading"
)

// Config holds all application configuration. It is immutable after LoadConfig.
type Config struct {
	// Logging
	LogLevel logger.LogLevel
	LogFile  string

	// Storage
	AccountsFile     string
	DBPath           string
	JournalRetention time.Duration

	// Telegram
	TelegramToken    string
	TelegramChannels []string

	// IMAP mailbox
	IMAPEnabled  bool
	IMAPHost     string
	IMAPPort     int
	IMAPUser     string
	IMAPPassword string
	IMAPPoll     time.Duration

	// Oracle
	GeminiAPIKey  string
	GeminiModel   string
	OracleTimeout time.Duration

	// HTTP API; empty disables it
	HTTPAddr string

	// Parsing
	DefaultSymbol string
	PriceBand     parser.PriceBand

	// Placement
	RiskPercent              float64
	ToleranceFactor          float64
	DefaultExpirationMinutes int
	ServerTimeOffset         time.Duration
	VolumeUnitMultiplier     float64
	CoarseMinSymbols         []string
	CoarseMinVolume          float64
	Marker                   string

	// Break-even
	BreakEvenInterval  time.Duration
	BreakEvenPolicy    trading.ThresholdPolicy
	BreakEvenThreshold float64
	BreakEvenOffset    float64

	// Orchestration
	AccountTimeout time.Duration
	ShutdownGrace  time.Duration

	// From the accounts file
	Accounts          []AccountConfig
	Routes            []parser.Route
	Brokers           map[string]symbols.BrokerTable
	AuthorMultipliers map[string]float64
}

// LoadConfig loads configuration from environment variables (.env file) and the accounts file.
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFile = getEnv("LOG_FILE", "")

	// Storage
	cfg.AccountsFile = getEnv("ACCOUNTS_FILE", "./config/accounts.yaml")
	cfg.DBPath = getEnv("DB_PATH", "./data/signal_copier.db")
	retentionDays := getEnvAsInt("JOURNAL_RETENTION_DAYS", 30)
	if retentionDays < 0 {
		errs = append(errs, "JOURNAL_RETENTION_DAYS cannot be negative")
	}
	cfg.JournalRetention = time.Duration(retentionDays) * 24 * time.Hour

	// Telegram
	cfg.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", "")
	cfg.TelegramChannels = getEnvAsList("TELEGRAM_CHANNELS")

	// IMAP
	cfg.IMAPEnabled = getEnvAsBool("IMAP_ENABLED", false)
	cfg.IMAPHost = getEnv("IMAP_HOST", "imap.gmail.com")
	cfg.IMAPPort = getEnvAsInt("IMAP_PORT", 993)
	cfg.IMAPUser = getEnv("IMAP_USER", "")
	cfg.IMAPPassword = getEnv("IMAP_PASSWORD", "")
	pollSeconds := getEnvAsInt("IMAP_POLL_SECONDS", 60)
	if pollSeconds <= 0 {
		errs = append(errs, "IMAP_POLL_SECONDS must be positive")
	}
	cfg.IMAPPoll = time.Duration(pollSeconds) * time.Second
	if cfg.IMAPEnabled && (cfg.IMAPUser == "" || cfg.IMAPPassword == "") {
		errs = append(errs, "IMAP_USER and IMAP_PASSWORD must be set when IMAP_ENABLED")
	}
	if cfg.TelegramToken == "" && !cfg.IMAPEnabled {
		errs = append(errs, "TELEGRAM_BOT_TOKEN must be set unless IMAP_ENABLED")
	}

	// Oracle
	cfg.GeminiAPIKey = getEnv("GEMINI_API_KEY", "")
	cfg.GeminiModel = getEnv("GEMINI_MODEL", "gemini-2.0-flash")
	oracleSeconds := getEnvAsInt("ORACLE_TIMEOUT_SECONDS", 20)
	if oracleSeconds <= 0 {
		errs = append(errs, "ORACLE_TIMEOUT_SECONDS must be positive")
	}
	cfg.OracleTimeout = time.Duration(oracleSeconds) * time.Second

	cfg.HTTPAddr = getEnv("HTTP_ADDR", "")

	// Parsing
	cfg.DefaultSymbol = strings.ToUpper(getEnv("DEFAULT_SYMBOL", "XAUUSD"))
	cfg.PriceBand.Min, err = getEnvAsFloatRequired("PRICE_BAND_MIN", 3500)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PRICE_BAND_MIN: %v", err))
	}
	cfg.PriceBand.Max, err = getEnvAsFloatRequired("PRICE_BAND_MAX", 3900)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PRICE_BAND_MAX: %v", err))
	}
	if cfg.PriceBand.Min >= cfg.PriceBand.Max {
		errs = append(errs, "PRICE_BAND_MIN must be less than PRICE_BAND_MAX")
	}

	// Placement
	cfg.RiskPercent, err = getEnvAsFloatRequired("RISK_PERCENTAGE", 0.1)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RISK_PERCENTAGE: %v", err))
	} else if cfg.RiskPercent <= 0 || cfg.RiskPercent > 100 {
		errs = append(errs, "RISK_PERCENTAGE must be in (0, 100]")
	}

	cfg.ToleranceFactor, err = getEnvAsFloatRequired("MARKET_ORDER_TOLERANCE_FACTOR", 0.0005)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MARKET_ORDER_TOLERANCE_FACTOR: %v", err))
	} else if cfg.ToleranceFactor < 0 {
		errs = append(errs, "MARKET_ORDER_TOLERANCE_FACTOR cannot be negative")
	}

	cfg.DefaultExpirationMinutes, err = getEnvAsIntRequired("DEFAULT_EXPIRATION_MINUTES", 30)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DEFAULT_EXPIRATION_MINUTES: %v", err))
	} else if cfg.DefaultExpirationMinutes <= 0 {
		errs = append(errs, "DEFAULT_EXPIRATION_MINUTES must be positive")
	}

	offsetHours, err := getEnvAsFloatRequired("SERVER_TIME_OFFSET_HOURS", 2)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SERVER_TIME_OFFSET_HOURS: %v", err))
	}
	cfg.ServerTimeOffset = time.Duration(offsetHours * float64(time.Hour))

	cfg.VolumeUnitMultiplier, err = getEnvAsFloatRequired("VOLUME_UNIT_MULTIPLIER", 1)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid VOLUME_UNIT_MULTIPLIER: %v", err))
	} else if cfg.VolumeUnitMultiplier <= 0 {
		errs = append(errs, "VOLUME_UNIT_MULTIPLIER must be positive")
	}
	cfg.CoarseMinSymbols = getEnvAsList("COARSE_MIN_SYMBOLS")
	if len(cfg.CoarseMinSymbols) == 0 {
		cfg.CoarseMinSymbols = []string{"DJ30", "NAS100", "SP500"}
	}
	cfg.CoarseMinVolume = getEnvAsFloat("COARSE_MIN_VOLUME", 0.1)
	cfg.Marker = getEnv("BOT_MARKER", "20241211")

	// Break-even
	beMillis := getEnvAsInt("BE_CHECK_INTERVAL_MS", 200)
	if beMillis <= 0 {
		errs = append(errs, "BE_CHECK_INTERVAL_MS must be positive")
	}
	cfg.BreakEvenInterval = time.Duration(beMillis) * time.Millisecond
	cfg.BreakEvenPolicy, err = trading.ParseThresholdPolicy(getEnv("BE_THRESHOLD_POLICY", string(trading.ThresholdFixed)))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BE_THRESHOLD_POLICY: %v", err))
	}
	cfg.BreakEvenThreshold, err = getEnvAsFloatRequired("BE_THRESHOLD_VALUE", 0.5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BE_THRESHOLD_VALUE: %v", err))
	} else if cfg.BreakEvenThreshold < 0 {
		errs = append(errs, "BE_THRESHOLD_VALUE cannot be negative")
	}
	cfg.BreakEvenOffset = getEnvAsFloat("BE_OFFSET", 0)

	// Orchestration
	cfg.AccountTimeout = time.Duration(getEnvAsInt("ACCOUNT_TIMEOUT_SECONDS", 30)) * time.Second
	cfg.ShutdownGrace = time.Duration(getEnvAsInt("SHUTDOWN_GRACE_SECONDS", 5)) * time.Second
	if cfg.AccountTimeout <= 0 || cfg.ShutdownGrace <= 0 {
		errs = append(errs, "ACCOUNT_TIMEOUT_SECONDS and SHUTDOWN_GRACE_SECONDS must be positive")
	}

	// Accounts file
	file, err := LoadAccountsFile(cfg.AccountsFile)
	if err != nil {
		errs = append(errs, err.Error())
	} else {
		errs = append(errs, file.Validate()...)
		cfg.Accounts = file.EnabledAccounts()
		cfg.Routes = file.Routes
		cfg.Brokers = file.Brokers
		cfg.AuthorMultipliers = file.AuthorMultipliers
	}
	if len(cfg.Routes) == 0 {
		cfg.Routes = parser.DefaultRoutes()
	}
	if len(cfg.Brokers) == 0 {
		cfg.Brokers = symbols.DefaultTables()
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// BinanceSettings are the credentials of a Binance futures account.
type BinanceSettings struct {
	APIKey    string `yaml:"api_key"`
	SecretKey string `yaml:"secret_key"`
	Testnet   bool   `yaml:"testnet"`
	Asset     string `yaml:"asset"`
}

// OandaSettings are the credentials of an OANDA v20 account.
type OandaSettings struct {
	AccountID string `yaml:"account_id"`
	Token     string `yaml:"token"`
	Live      bool   `yaml:"live"`
}

// PaperSettings configure a simulated account. Quotes seed static bid/ask pairs per venue symbol.
type PaperSettings struct {
	Balance float64              `yaml:"balance"`
	Quotes  map[string][]float64 `yaml:"quotes"`
}

// AccountConfig describes one trading account in the accounts file.
type AccountConfig struct {
	Name        string           `yaml:"name"`
	Login       string           `yaml:"login"`
	Broker      string           `yaml:"broker"`
	Venue       domain.VenueKind `yaml:"venue"`
	Master      bool             `yaml:"master"`
	Enabled     *bool            `yaml:"enabled"`
	FixedLot    float64          `yaml:"fixed_lot"`
	RiskPercent float64          `yaml:"risk_percent"`
	Binance     BinanceSettings  `yaml:"binance"`
	Oanda       OandaSettings    `yaml:"oanda"`
	Paper       PaperSettings    `yaml:"paper"`
}

// IsEnabled reports whether the account takes part in copying; accounts are enabled by default.
func (a AccountConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// Account converts the entry to the domain account.
func (a AccountConfig) Account() domain.Account {
	return domain.Account{
		Name:        a.Name,
		Login:       a.Login,
		Broker:      a.Broker,
		Venue:       a.Venue,
		IsMaster:    a.Master,
		FixedLot:    a.FixedLot,
		RiskPercent: a.RiskPercent,
	}
}

// AccountsFile is the structured part of the configuration.
type AccountsFile struct {
	Accounts          []AccountConfig                `yaml:"accounts"`
	Routes            []parser.Route                 `yaml:"routes"`
	Brokers           map[string]symbols.BrokerTable `yaml:"brokers"`
	AuthorMultipliers map[string]float64             `yaml:"author_multipliers"`
}

var envReference = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${NAME} references with environment values.
func expandEnv(raw string) string {
	return envReference.ReplaceAllStringFunc(raw, func(ref string) string {
		return os.Getenv(envReference.FindStringSubmatch(ref)[1])
	})
}

// LoadAccountsFile reads and decodes the accounts file, expanding ${NAME} references.
func LoadAccountsFile(path string) (*AccountsFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts file '%s': %w", path, err)
	}
	return ParseAccountsFile([]byte(expandEnv(string(raw))))
}

// ParseAccountsFile decodes an already expanded accounts document.
func ParseAccountsFile(data []byte) (*AccountsFile, error) {
	var file AccountsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode accounts file: %w", err)
	}
	return &file, nil
}

// EnabledAccounts returns the enabled accounts; a single account is always the master.
func (f *AccountsFile) EnabledAccounts() []AccountConfig {
	var out []AccountConfig
	for _, a := range f.Accounts {
		if a.IsEnabled() {
			out = append(out, a)
		}
	}
	if len(out) == 1 {
		out[0].Master = true
	}
	return out
}

// Validate returns every problem found in the file.
func (f *AccountsFile) Validate() []string {
	var errs []string
	enabled := f.EnabledAccounts()
	if len(enabled) == 0 {
		errs = append(errs, "accounts file must enable at least one account")
	}

	masters := 0
	names := make(map[string]bool)
	for i, a := range enabled {
		label := a.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
			errs = append(errs, fmt.Sprintf("account %s: name must be set", label))
		}
		if names[a.Name] {
			errs = append(errs, fmt.Sprintf("account %s: duplicate name", label))
		}
		names[a.Name] = true
		if a.Master {
			masters++
		}
		if a.FixedLot < 0 || a.RiskPercent < 0 || a.RiskPercent > 100 {
			errs = append(errs, fmt.Sprintf("account %s: fixed_lot and risk_percent must be within range", label))
		}

		switch a.Venue {
		case domain.VenueBinance:
			if a.Binance.APIKey == "" || a.Binance.SecretKey == "" {
				errs = append(errs, fmt.Sprintf("account %s: binance api_key and secret_key must be set", label))
			}
		case domain.VenueOanda:
			if a.Oanda.AccountID == "" || a.Oanda.Token == "" {
				errs = append(errs, fmt.Sprintf("account %s: oanda account_id and token must be set", label))
			}
		case domain.VenuePaper:
			if a.Paper.Balance <= 0 {
				errs = append(errs, fmt.Sprintf("account %s: paper balance must be positive", label))
			}
			for symbol, q := range a.Paper.Quotes {
				if len(q) != 2 || q[0] <= 0 || q[1] < q[0] {
					errs = append(errs, fmt.Sprintf("account %s: paper quote %s must be [bid, ask]", label, symbol))
				}
			}
		default:
			errs = append(errs, fmt.Sprintf("account %s: unknown venue %q", label, a.Venue))
		}
	}
	if len(enabled) > 1 && masters != 1 {
		errs = append(errs, fmt.Sprintf("exactly one enabled account must be master, found %d", masters))
	}

	for pattern, m := range f.AuthorMultipliers {
		if m <= 0 {
			errs = append(errs, fmt.Sprintf("author multiplier %q must be positive", pattern))
		}
	}
	return errs
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

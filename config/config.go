package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type ClerkConfig struct {
	SecretKey string
}

// IsConfigured returns true if all required Clerk configuration is present
func (c ClerkConfig) IsConfigured() bool {
	return c.SecretKey != ""
}

type AlpacaConfig struct {
	BaseURL   string
	APIKey    string
	APISecret string
}

// IsConfigured returns true if all required Alpaca configuration is present
func (c AlpacaConfig) IsConfigured() bool {
	return c.APIKey != "" && c.APISecret != ""
}

type BuildExecutorConfig struct {
	BaseURL  string
	APIToken string
}

// IsConfigured returns true if all required build executor configuration is present
func (c BuildExecutorConfig) IsConfigured() bool {
	return c.BaseURL != "" && c.APIToken != ""
}

type DeployConfig struct {
	Namespace  string
	AgentImage string
	Kubeconfig string // optional, in-cluster config is used when empty
}

// IsConfigured returns true if all required deployment configuration is present
func (c DeployConfig) IsConfigured() bool {
	return c.Namespace != "" && c.AgentImage != ""
}

// BacktestConfig is the fixed evaluation window applied to every submitted
// strategy so results stay comparable across agents
type BacktestConfig struct {
	StartDate   string
	EndDate     string
	InitialCash string
	Symbols     []string
	Timeframe   string
}

type AppConfig struct {
	// Core configuration (always required)
	DatabaseURL        string
	DatabaseSchema     string
	Port               string // Optional with default "8080"
	CORSAllowedOrigins string // Optional with default "*"
	Environment        string
	ServerLogsURL      string
	UseStrictConfig    bool // If true, error when any integration is not fully configured

	// Strategy code storage root on the local filesystem
	CodeStoreDir string

	// Shared secret collaborators present on callback requests
	CallbackToken string

	// Slack webhook for error alerts (optional)
	AlertWebhookURL string

	// Default ACH transfer amount in USD for agent funding
	FundingAmountUSD string

	// Per-owner cap on agents with a live deployment
	MaxRunningDeployments int

	// Seconds between deployment reconciliation sweeps
	ReconcileIntervalSeconds int

	BacktestConfig      BacktestConfig
	ClerkConfig         ClerkConfig
	AlpacaConfig        AlpacaConfig
	BuildExecutorConfig BuildExecutorConfig
	DeployConfig        DeployConfig
}

func LoadConfig() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("⚠️ Could not load .env file, continuing with system env vars")
	}

	// Core required configuration
	databaseURL, err := getEnvRequired("DB_URL")
	if err != nil {
		return nil, err
	}

	databaseSchema, err := getEnvRequired("DB_SCHEMA")
	if err != nil {
		return nil, err
	}

	callbackToken, err := getEnvRequired("CALLBACK_TOKEN")
	if err != nil {
		return nil, err
	}

	maxRunning, err := getEnvIntWithDefault("MAX_RUNNING_DEPLOYMENTS", 10)
	if err != nil {
		return nil, err
	}

	reconcileInterval, err := getEnvIntWithDefault("RECONCILE_INTERVAL_SECONDS", 30)
	if err != nil {
		return nil, err
	}

	config := &AppConfig{
		// Core configuration
		DatabaseURL:        databaseURL,
		DatabaseSchema:     databaseSchema,
		Port:               getEnvWithDefault("PORT", "8080"),
		CORSAllowedOrigins: getEnvWithDefault("CORS_ALLOWED_ORIGINS", "*"),
		Environment:        getEnvWithDefault("ENVIRONMENT", "dev"),
		ServerLogsURL:      getEnvWithDefault("SERVER_LOGS_URL", ""),
		UseStrictConfig:    getEnvWithDefault("USE_STRICT_CONFIG", "true") == "true",

		CodeStoreDir:  getEnvWithDefault("CODE_STORE_DIR", "/var/lib/agentbackend/code"),
		CallbackToken: callbackToken,

		AlertWebhookURL: os.Getenv("SLACK_ALERT_WEBHOOK_URL"),

		FundingAmountUSD:         getEnvWithDefault("FUNDING_AMOUNT_USD", "25000"),
		MaxRunningDeployments:    maxRunning,
		ReconcileIntervalSeconds: reconcileInterval,

		// Fixed backtest window - all strategies are scored over the same data
		BacktestConfig: BacktestConfig{
			StartDate:   getEnvWithDefault("BACKTEST_START_DATE", "2023-01-01"),
			EndDate:     getEnvWithDefault("BACKTEST_END_DATE", "2023-12-31"),
			InitialCash: getEnvWithDefault("BACKTEST_INITIAL_CASH", "100000"),
			Symbols:     strings.Split(getEnvWithDefault("BACKTEST_SYMBOLS", "SPY,QQQ"), ","),
			Timeframe:   getEnvWithDefault("BACKTEST_TIMEFRAME", "1Day"),
		},

		// Clerk configuration (optional)
		ClerkConfig: ClerkConfig{
			SecretKey: os.Getenv("CLERK_SECRET_KEY"),
		},

		// Alpaca Broker API configuration (optional, sandbox by default)
		AlpacaConfig: AlpacaConfig{
			BaseURL:   getEnvWithDefault("ALPACA_BASE_URL", "https://broker-api.sandbox.alpaca.markets"),
			APIKey:    os.Getenv("ALPACA_API_KEY"),
			APISecret: os.Getenv("ALPACA_API_SECRET"),
		},

		// Build executor configuration (optional)
		BuildExecutorConfig: BuildExecutorConfig{
			BaseURL:  os.Getenv("BUILD_EXECUTOR_URL"),
			APIToken: os.Getenv("BUILD_EXECUTOR_TOKEN"),
		},

		// Deployment platform configuration (optional)
		DeployConfig: DeployConfig{
			Namespace:  getEnvWithDefault("DEPLOY_NAMESPACE", "paper-traders"),
			AgentImage: os.Getenv("DEPLOY_AGENT_IMAGE"),
			Kubeconfig: os.Getenv("KUBECONFIG"),
		},
	}

	// Log which integrations are configured
	if config.ClerkConfig.IsConfigured() {
		log.Printf("✅ Clerk authentication configured")
	} else {
		log.Printf("⚠️ Clerk authentication not configured - API authentication will be disabled")
		if config.UseStrictConfig {
			return nil, fmt.Errorf("clerk authentication is not fully configured (USE_STRICT_CONFIG=true)")
		}
	}

	if config.AlpacaConfig.IsConfigured() {
		log.Printf("✅ Alpaca brokerage configured (%s)", config.AlpacaConfig.BaseURL)
	} else {
		log.Printf("⚠️ Alpaca brokerage not configured - account and funding stages will be disabled")
		if config.UseStrictConfig {
			return nil, fmt.Errorf("alpaca brokerage is not fully configured (USE_STRICT_CONFIG=true)")
		}
	}

	if config.BuildExecutorConfig.IsConfigured() {
		log.Printf("✅ Build executor configured (%s)", config.BuildExecutorConfig.BaseURL)
	} else {
		log.Printf("⚠️ Build executor not configured - backtest stage will be disabled")
		if config.UseStrictConfig {
			return nil, fmt.Errorf("build executor is not fully configured (USE_STRICT_CONFIG=true)")
		}
	}

	if config.DeployConfig.IsConfigured() {
		log.Printf("✅ Deployment platform configured (namespace %s)", config.DeployConfig.Namespace)
	} else {
		log.Printf("⚠️ Deployment platform not configured - deployment stage will be disabled")
		if config.UseStrictConfig {
			return nil, fmt.Errorf("deployment platform is not fully configured (USE_STRICT_CONFIG=true)")
		}
	}

	return config, nil
}

func getEnvRequired(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is not set", key)
	}
	return value, nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return parsed, nil
}

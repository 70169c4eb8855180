package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/quartoworks/shelfmark/pkg/constants"
)

// Config holds the application configuration loaded from flags,
// environment variables, .env files, and the optional config file.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool
	Format  string

	// Config file
	ConfigFile string

	// Reference manager
	ZoteroUserID      string
	ZoteroAPIKey      string
	ZoteroLibraryType string
	ZoteroBaseURL     string
	CollectionKey     string
	ItemType          string

	// Local model
	OllamaURL         string
	OllamaModel       string
	OllamaTimeout     time.Duration
	OllamaTemperature float64

	// Deep research
	GeminiAPIKey string
	StateFile    string

	// Pacing
	SearchDelay    time.Duration
	RequestTimeout time.Duration

	// Logging
	LogLevel  string
	LogFormat string
	LogOutput string
}

// LoadConfig loads configuration from all sources in order of
// precedence:
//  1. Command-line flags (applied later by cobra)
//  2. Environment variables
//  3. .env files
//  4. Config file (~/.shelfmark.yaml)
//  5. Defaults
func LoadConfig() (*Config, error) {
	// .env files must land in the environment before viper binds it
	loadEnvFiles()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	bindCredentials()

	configFile := viper.GetString("config")
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.AddConfigPath(".")
			viper.SetConfigType("yaml")
			viper.SetConfigName(constants.DefaultConfigName)
		}
	}

	// A missing config file is fine; the environment carries everything
	_ = viper.ReadInConfig()

	config := &Config{
		Verbose: viper.GetBool("verbose"),
		Quiet:   viper.GetBool("quiet"),
		NoColor: viper.GetBool("no-color"),
		Format:  viper.GetString("format"),

		ConfigFile: viper.ConfigFileUsed(),

		ZoteroUserID:      viper.GetString("zotero_user_id"),
		ZoteroAPIKey:      viper.GetString("zotero_api_key"),
		ZoteroLibraryType: viper.GetString("zotero_library_type"),
		ZoteroBaseURL:     viper.GetString("zotero_base_url"),
		CollectionKey:     viper.GetString("zotero_collection_key"),
		ItemType:          viper.GetString("target_item_type"),

		OllamaURL:         viper.GetString("ollama_url"),
		OllamaModel:       viper.GetString("ollama_model"),
		OllamaTimeout:     secondsOrDuration(viper.GetString("ollama_timeout"), constants.OllamaTimeout),
		OllamaTemperature: viper.GetFloat64("ollama_temperature"),

		GeminiAPIKey: viper.GetString("gemini_api_key"),
		StateFile:    viper.GetString("research_state_file"),

		SearchDelay:    secondsOrDuration(viper.GetString("search_delay"), constants.SearchDelay),
		RequestTimeout: secondsOrDuration(viper.GetString("request_timeout"), constants.DefaultHTTPTimeout),

		LogFormat: getEnvOrDefault("LOG_FORMAT", "auto"),
		LogOutput: getEnvOrDefault("LOG_OUTPUT", "stderr"),
	}

	if config.ItemType == "" {
		config.ItemType = "book"
	}
	if config.StateFile == "" {
		config.StateFile = constants.StateFileName
	}

	return config, nil
}

// UpdateFromFlags applies parsed command-line flags, which take
// precedence over environment and config-file values.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, format, logLevel string) {
	c.Verbose = verbose
	c.Quiet = quiet
	c.NoColor = noColor
	if format != "" {
		c.Format = format
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}

// loadEnvFiles loads environment variables from .env files.
// .env.local overrides .env.
func loadEnvFiles() {
	envFiles := []string{
		".env",
		".env.local",
	}

	for _, envFile := range envFiles {
		_ = godotenv.Load(envFile)
	}
}

// bindCredentials explicitly binds the credential environment variables
// to viper so they resolve even before the first AutomaticEnv lookup.
func bindCredentials() {
	keys := []string{
		"ZOTERO_USER_ID",
		"ZOTERO_API_KEY",
		"GEMINI_API_KEY",
	}

	for _, key := range keys {
		if err := viper.BindEnv(key); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to bind environment variable %s: %v\n", key, err)
		}
	}
}

// secondsOrDuration parses a pacing value. Plain integers count as
// seconds, so OLLAMA_TIMEOUT=300 means five minutes; duration strings
// like "90s" or "2m" also work. Anything else falls back.
func secondsOrDuration(raw string, fallback time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// getEnvOrDefault returns the environment variable value or the default
// if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

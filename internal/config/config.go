package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration settings.
type Config struct {
	Environment string `envconfig:"ENV" default:"development"`

	HTTPPort    int           `envconfig:"HTTP_PORT" default:"8080"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"15s"`

	DownloadDir     string `envconfig:"DOWNLOAD_DIR" default:"./downloads"`
	DatabasePath    string `envconfig:"DATABASE_PATH" default:"./downloads/papers.db"`
	LegacyStateFile string `envconfig:"LEGACY_STATE_FILE" default:"./downloads/download_state.jsonl"`

	// Address of a running browser started with --remote-debugging-port.
	BrowserAddress string `envconfig:"BROWSER_ADDRESS" default:"127.0.0.1:9222"`

	// URL templates for the acquisition strategies; %s is the document number.
	DirectPDFTemplate string `envconfig:"DIRECT_PDF_TEMPLATE" default:"https://ieeexplore.ieee.org/stampPDF/getPDF.jsp?tp=&arnumber=%s&ref="`
	ViewerTemplate    string `envconfig:"VIEWER_TEMPLATE" default:"https://ieeexplore.ieee.org/stamp/stamp.jsp?tp=&arnumber=%s"`
	SearchTemplate    string `envconfig:"SEARCH_TEMPLATE" default:"https://ieeexplore.ieee.org/search/searchresult.jsp?newsearch=true&queryText=%s"`

	PerItemTimeout time.Duration `envconfig:"PER_ITEM_TIMEOUT" default:"5m"`
	StrategyWait   time.Duration `envconfig:"STRATEGY_WAIT" default:"15s"`
	PacingInterval time.Duration `envconfig:"PACING_INTERVAL" default:"5s"`

	MaxAttempts      int           `envconfig:"MAX_ATTEMPTS" default:"3"`
	RateLimitBackoff time.Duration `envconfig:"RATE_LIMIT_BACKOFF" default:"30s"`
	RetryDelay       time.Duration `envconfig:"RETRY_DELAY" default:"2s"`

	RowsPerPage int `envconfig:"ROWS_PER_PAGE" default:"100"`
	MaxPages    int `envconfig:"MAX_PAGES" default:"5"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// Validate checks the configuration for invalid or missing values.
// Returns an error describing the first invalid setting found.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	if c.DownloadDir == "" {
		return fmt.Errorf("download directory cannot be empty")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	if c.PerItemTimeout <= 0 {
		return fmt.Errorf("per-item timeout must be positive: %s", c.PerItemTimeout)
	}
	if c.StrategyWait <= 0 || c.StrategyWait > c.PerItemTimeout {
		return fmt.Errorf("strategy wait must be positive and within the per-item timeout: %s", c.StrategyWait)
	}
	if c.PacingInterval < 0 {
		return fmt.Errorf("pacing interval cannot be negative: %s", c.PacingInterval)
	}

	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive: %d", c.MaxAttempts)
	}

	if c.RowsPerPage <= 0 {
		return fmt.Errorf("rows per page must be positive: %d", c.RowsPerPage)
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive: %d", c.MaxPages)
	}

	return nil
}

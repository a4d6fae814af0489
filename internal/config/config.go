package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jgivc/treemirror/internal/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	defaultMaxThreads = 8
	defaultTimeout    = 20
	defaultDBFile     = "downloads.db"
	defaultUserAgent  = "treemirror/1.0 (+https://github.com/jgivc/treemirror)"
)

// regionAliases maps short region codes to the names used in archive
// filenames. Resolution happens once, during config parsing.
var regionAliases = map[string]string{
	"EU": "Europe", "JP": "Japan", "JPN": "Japan",
	"AUS": "Australia", "KR": "Korea", "BR": "Brazil",
	"CN": "China", "FR": "France", "DE": "Germany",
	"HK": "Hong Kong", "IT": "Italy", "NL": "Netherlands",
	"ES": "Spain", "SE": "Sweden", "CA": "Canada",
}

// Config holds all pipeline parameters. Precedence of sources is
// CLI flags > environment > yaml config file > built-in defaults.
type Config struct {
	BaseURL     string   `yaml:"base_url"`
	DownloadDir string   `yaml:"download_dir"`
	MaxThreads  int      `yaml:"max_threads"`
	Timeout     int      `yaml:"timeout"` // seconds
	DBFile      string   `yaml:"db_file"`
	UserAgent   string   `yaml:"user_agent"`
	Regions     []string `yaml:"regions"`
	LogLevel    string   `yaml:"log_level"`

	CountOnly bool `yaml:"-"`
}

func Default() *Config {
	return &Config{
		MaxThreads: defaultMaxThreads,
		Timeout:    defaultTimeout,
		DBFile:     defaultDBFile,
		UserAgent:  defaultUserAgent,
		LogLevel:   LogLevelInfo,
	}
}

// Parse builds a Config from args, the environment (including an optional
// .env file) and an optional yaml config file named by -config.
func Parse(args []string) (*Config, error) {
	return parseWithFlagSet(flag.NewFlagSet("treemirror", flag.ExitOnError), args)
}

func parseWithFlagSet(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := Default()

	// The config file sits below the environment, so it has to load
	// before flag registration. Its path is found by a pre-scan.
	if path := configPathFromArgs(args); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	_ = godotenv.Load()
	cfg.loadEnv()

	var regions string

	fs.String("config", "", "Path to yaml config file")
	fs.BoolVar(&cfg.CountOnly, "count", false, "Print total count of matched files and exit")
	fs.BoolVar(&cfg.CountOnly, "c", cfg.CountOnly, "Shorthand for -count")
	fs.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "Base URL to mirror")
	fs.StringVar(&cfg.BaseURL, "u", cfg.BaseURL, "Shorthand for -url")
	fs.StringVar(&cfg.DownloadDir, "download-dir", cfg.DownloadDir, "Directory to save downloaded files")
	fs.StringVar(&cfg.DownloadDir, "d", cfg.DownloadDir, "Shorthand for -download-dir")
	fs.IntVar(&cfg.MaxThreads, "threads", cfg.MaxThreads, "Number of concurrent download workers")
	fs.IntVar(&cfg.MaxThreads, "t", cfg.MaxThreads, "Shorthand for -threads")
	fs.IntVar(&cfg.Timeout, "timeout", cfg.Timeout, "Request timeout in seconds")
	fs.StringVar(&cfg.DBFile, "db-file", cfg.DBFile, "Ledger database file path")
	fs.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "User agent string for HTTP requests")
	fs.StringVar(&regions, "region", "", "Comma-separated region filter (aliases like EU=Europe are supported)")
	fs.StringVar(&regions, "r", "", "Shorthand for -region")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if regions != "" {
		cfg.Regions = splitList(regions)
	}
	cfg.Regions = ResolveRegions(cfg.Regions)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("cannot parse config file: %w", err)
	}

	return nil
}

func (c *Config) loadEnv() {
	if v := os.Getenv("BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("DOWNLOAD_DIR"); v != "" {
		c.DownloadDir = v
	}
	if v := os.Getenv("MAX_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxThreads = n
		}
	}
	if v := os.Getenv("TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Timeout = n
		}
	}
	if v := os.Getenv("DB_FILE"); v != "" {
		c.DBFile = v
	}
	if v := os.Getenv("USER_AGENT"); v != "" {
		c.UserAgent = v
	}
	if v := os.Getenv("REGION"); v != "" {
		c.Regions = splitList(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) validate() error {
	if c.BaseURL == "" {
		return common.ErrMissingBaseURL
	}
	if c.DownloadDir == "" {
		return common.ErrMissingDownloadDir
	}

	// Consistent URL handling downstream relies on the trailing separator.
	if !strings.HasSuffix(c.BaseURL, "/") {
		c.BaseURL += "/"
	}

	if c.MaxThreads < 1 {
		c.MaxThreads = 1
	}

	return nil
}

// ResolveRegions expands known aliases, leaving unknown names as-is.
func ResolveRegions(regions []string) []string {
	if len(regions) == 0 {
		return nil
	}

	resolved := make([]string, 0, len(regions))
	for _, r := range regions {
		if full, ok := regionAliases[strings.ToUpper(r)]; ok {
			resolved = append(resolved, full)

			continue
		}

		resolved = append(resolved, r)
	}

	return resolved
}

func configPathFromArgs(args []string) string {
	for i, arg := range args {
		name, value, hasValue := strings.Cut(arg, "=")
		if name != "-config" && name != "--config" {
			continue
		}

		if hasValue {
			return value
		}

		if i+1 < len(args) {
			return args[i+1]
		}
	}

	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}

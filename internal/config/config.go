package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Providers understood by the recognition layer.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderVertex    = "vertex"
)

// No-match policies for the problem splitter.
const (
	PolicyFallback = "fallback"
	PolicyStrict   = "strict"
)

// DefaultHeadingPattern matches "## Problem A. Title", "**Problem 3: Title**"
// and plain "Problem B" or "Problem B. Title" lines. Unmarked lines need a
// "." or ":" after the identifier, or nothing at all, so prose such as
// "Problem 2 asks..." is not a heading. Each branch captures the identifier
// followed by the title.
const DefaultHeadingPattern = `^\s*(?:(?:#{1,6}\s*|\*\*\s*)(?i:problem)\s+([A-Z][0-9]?|[0-9]{1,3})(?:\s*[.:]\s*|\s+|\s*$)(.*?)\s*(?:\*\*)?|(?i:problem)\s+([A-Z][0-9]?|[0-9]{1,3})(?:\s*[.:]\s*(.*?))?)\s*$`

type Config struct {
	// Recognition endpoint
	Provider       string
	BaseURL        string
	APIKey         string
	Model          string
	VertexProject  string
	VertexLocation string
	MaxTokens      int
	Timeout        time.Duration

	// Retry policy
	MaxRetries int
	RetryDelay time.Duration

	// Processing
	DPI               int
	DelayBetweenPages time.Duration
	RenderWorkers     int
	FileWorkers       int
	TextHint          bool
	AutoSplit         bool
	GenerateIndex     bool
	ValidateLatex     bool

	// Prompts: tag -> prompt text.
	PromptTag string
	Prompts   map[string]string

	// Splitting
	HeadingPattern string
	NoMatchPolicy  string
	FallbackID     string

	// Output: local directory or gs://bucket/prefix.
	OutputDir string

	// Serve mode
	Port           string
	ServerAPIKey   string
	MaxUploadBytes int64
	QueueSize      int
	JobTTL         time.Duration
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Provider:          ProviderOpenAI,
		BaseURL:           "https://api.openai.com/v1",
		Model:             "gpt-4o",
		VertexLocation:    "us-central1",
		MaxTokens:         3000,
		Timeout:           60 * time.Second,
		MaxRetries:        3,
		RetryDelay:        5 * time.Second,
		DPI:               400,
		DelayBetweenPages: 2 * time.Second,
		RenderWorkers:     4,
		FileWorkers:       1,
		AutoSplit:         true,
		GenerateIndex:     true,
		ValidateLatex:     true,
		PromptTag:         "competition",
		Prompts:           map[string]string{},
		HeadingPattern:    DefaultHeadingPattern,
		NoMatchPolicy:     PolicyFallback,
		FallbackID:        "1",
		OutputDir:         "output",
		Port:              "8090",
		MaxUploadBytes:    52428800, // 50MB
		QueueSize:         16,
		JobTTL:            1 * time.Hour,
	}
}

// Load builds the configuration from defaults, an optional JSON file, .env and
// the process environment, in increasing order of precedence. An empty path
// tries config.json in the working directory and ignores it when absent.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = "config.json"
	}
	if err := cfg.loadFile(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return cfg, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv()
	cfg.normalize()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var fc File
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	fc.apply(c)
	return nil
}

func (c *Config) applyEnv() {
	c.Provider = envOr("CPX_PROVIDER", c.Provider)
	c.BaseURL = envOr("CPX_BASE_URL", c.BaseURL)
	c.Model = envOr("CPX_MODEL", c.Model)
	c.APIKey = envOr("CPX_API_KEY", c.APIKey)
	if c.APIKey == "" {
		switch c.Provider {
		case ProviderOpenAI:
			c.APIKey = os.Getenv("OPENAI_API_KEY")
		case ProviderAnthropic:
			c.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	c.VertexProject = envOr("CPX_VERTEX_PROJECT", envOr("GOOGLE_CLOUD_PROJECT", c.VertexProject))
	c.VertexLocation = envOr("CPX_VERTEX_LOCATION", c.VertexLocation)
	c.MaxTokens = envInt("CPX_MAX_TOKENS", c.MaxTokens)
	c.Timeout = envDuration("CPX_TIMEOUT", c.Timeout)

	c.MaxRetries = envInt("CPX_MAX_RETRIES", c.MaxRetries)
	c.RetryDelay = envDuration("CPX_RETRY_DELAY", c.RetryDelay)

	c.DPI = envInt("CPX_DPI", c.DPI)
	c.DelayBetweenPages = envDuration("CPX_DELAY_BETWEEN_PAGES", c.DelayBetweenPages)
	c.RenderWorkers = envInt("CPX_RENDER_WORKERS", c.RenderWorkers)
	c.FileWorkers = envInt("CPX_FILE_WORKERS", c.FileWorkers)
	c.TextHint = envBool("CPX_TEXT_HINT", c.TextHint)
	c.AutoSplit = envBool("CPX_AUTO_SPLIT", c.AutoSplit)
	c.GenerateIndex = envBool("CPX_GENERATE_INDEX", c.GenerateIndex)
	c.ValidateLatex = envBool("CPX_VALIDATE_LATEX", c.ValidateLatex)

	c.PromptTag = envOr("CPX_PROMPT_TAG", c.PromptTag)
	c.HeadingPattern = envOr("CPX_HEADING_PATTERN", c.HeadingPattern)
	c.NoMatchPolicy = envOr("CPX_NO_MATCH_POLICY", c.NoMatchPolicy)
	c.FallbackID = envOr("CPX_FALLBACK_ID", c.FallbackID)
	c.OutputDir = envOr("CPX_OUTPUT_DIR", c.OutputDir)

	c.Port = envOr("PORT", c.Port)
	c.ServerAPIKey = envOr("CPX_SERVER_API_KEY", c.ServerAPIKey)
	c.MaxUploadBytes = envInt64("CPX_MAX_UPLOAD_BYTES", c.MaxUploadBytes)
	c.QueueSize = envInt("CPX_QUEUE_SIZE", c.QueueSize)
	c.JobTTL = envDuration("CPX_JOB_TTL", c.JobTTL)
}

func (c *Config) normalize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.NoMatchPolicy = strings.ToLower(strings.TrimSpace(c.NoMatchPolicy))
	if c.MaxTokens <= 0 {
		c.MaxTokens = 3000
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.DelayBetweenPages < 0 {
		c.DelayBetweenPages = 0
	}
	if c.RenderWorkers <= 0 {
		c.RenderWorkers = 4
	}
	if c.FileWorkers <= 0 {
		c.FileWorkers = 1
	}
	if c.FallbackID == "" {
		c.FallbackID = "1"
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 52428800
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
	if c.JobTTL <= 0 {
		c.JobTTL = 1 * time.Hour
	}
	if c.Prompts == nil {
		c.Prompts = map[string]string{}
	}
}

// Validate checks the settings every command needs.
func (c Config) Validate() error {
	if c.DPI <= 0 {
		return fmt.Errorf("dpi must be positive, got %d", c.DPI)
	}
	if _, err := regexp.Compile(c.HeadingPattern); err != nil {
		return fmt.Errorf("heading_pattern: %w", err)
	}
	switch c.NoMatchPolicy {
	case PolicyFallback, PolicyStrict:
	default:
		return fmt.Errorf("no_match_policy must be %q or %q, got %q", PolicyFallback, PolicyStrict, c.NoMatchPolicy)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	return nil
}

// ValidateRecognition checks the settings needed to call the model.
func (c Config) ValidateRecognition() error {
	if err := c.Validate(); err != nil {
		return err
	}
	switch c.Provider {
	case ProviderOpenAI, ProviderAnthropic:
		if c.APIKey == "" {
			return fmt.Errorf("api_key is required for provider %q", c.Provider)
		}
	case ProviderVertex:
		if c.VertexProject == "" || c.VertexLocation == "" {
			return fmt.Errorf("vertex_project and vertex_location are required for provider %q", c.Provider)
		}
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	return nil
}

// ValidateServer checks the settings needed by serve mode.
func (c Config) ValidateServer() error {
	if err := c.ValidateRecognition(); err != nil {
		return err
	}
	if c.ServerAPIKey == "" {
		return fmt.Errorf("CPX_SERVER_API_KEY is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envDuration accepts Go durations ("90s") and bare numbers of seconds ("2").
func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return seconds(f)
		}
	}
	return fallback
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

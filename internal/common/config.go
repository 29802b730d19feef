package common

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	OCR      OCRConfig      `mapstructure:"ocr" yaml:"ocr"`
	LLM      LLMConfig      `mapstructure:"llm" yaml:"llm"`
	Limits   LimitsConfig   `mapstructure:"limits" yaml:"limits"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr       string        `mapstructure:"http_addr" yaml:"http_addr"`
	GRPCAddr       string        `mapstructure:"grpc_addr" yaml:"grpc_addr"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// DatabaseConfig holds the optional job ledger configuration.
// An empty DSN disables the ledger.
type DatabaseConfig struct {
	DSN              string        `mapstructure:"dsn" yaml:"dsn"`
	MaxConns         int32         `mapstructure:"max_conns" yaml:"max_conns"`
	MinConns         int32         `mapstructure:"min_conns" yaml:"min_conns"`
	MaxConnLifetime  time.Duration `mapstructure:"max_conn_lifetime" yaml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `mapstructure:"max_conn_idle_time" yaml:"max_conn_idle_time"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout" yaml:"statement_timeout"`
	PingAttempts     uint          `mapstructure:"ping_attempts" yaml:"ping_attempts"`
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Tesseract     string `mapstructure:"tesseract" yaml:"tesseract"`
	TesseractLang string `mapstructure:"tesseract_lang" yaml:"tesseract_lang"`
	TessdataDir   string `mapstructure:"tessdata_dir" yaml:"tessdata_dir"`
	Pdftotext     string `mapstructure:"pdftotext" yaml:"pdftotext"`
	Pdftoppm      string `mapstructure:"pdftoppm" yaml:"pdftoppm"`
	DPI           int    `mapstructure:"dpi" yaml:"dpi"`
	MaxPages      int    `mapstructure:"max_pages" yaml:"max_pages"`
	ScratchDir    string `mapstructure:"scratch_dir" yaml:"scratch_dir"`
}

// LLMConfig holds LLM-related configuration
type LLMConfig struct {
	Provider     string        `mapstructure:"provider" yaml:"provider"`
	Model        string        `mapstructure:"model" yaml:"model"`
	APIKey       string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL      string        `mapstructure:"base_url" yaml:"base_url"`
	GeminiAPIKey string        `mapstructure:"gemini_api_key" yaml:"gemini_api_key"`
	Temperature  float32       `mapstructure:"temperature" yaml:"temperature"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LimitsConfig holds request limits.
type LimitsConfig struct {
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

const envPrefix = "DOCEXTRACT"

// defaultValues is the single source of defaults, keyed by viper path.
func defaultValues() map[string]any {
	return map[string]any{
		"server.http_addr":       ":8080",
		"server.grpc_addr":       ":9090",
		"server.request_timeout": 3 * time.Minute,
		"server.read_timeout":    30 * time.Second,
		"server.write_timeout":   4 * time.Minute,

		"database.dsn":                "",
		"database.max_conns":          10,
		"database.min_conns":          1,
		"database.max_conn_lifetime":  30 * time.Minute,
		"database.max_conn_idle_time": 5 * time.Minute,
		"database.dial_timeout":       3 * time.Second,
		"database.statement_timeout":  0 * time.Second,
		"database.ping_attempts":      3,

		"ocr.tesseract":      "tesseract",
		"ocr.tesseract_lang": "eng",
		"ocr.tessdata_dir":   "",
		"ocr.pdftotext":      "pdftotext",
		"ocr.pdftoppm":       "pdftoppm",
		"ocr.dpi":            300,
		"ocr.max_pages":      0,
		"ocr.scratch_dir":    "",

		"llm.provider":       "openai",
		"llm.model":          "gpt-4o-mini",
		"llm.api_key":        "",
		"llm.base_url":       "",
		"llm.gemini_api_key": "",
		"llm.temperature":    0.0,
		"llm.timeout":        60 * time.Second,

		"limits.max_upload_bytes": 10 << 20,

		"log.level":  "info",
		"log.format": "json",
	}
}

// legacyEnv keeps the bare variable names older deployments already export.
var legacyEnv = map[string]string{
	"llm.api_key":        "OPENAI_API_KEY",
	"llm.model":          "OPENAI_MODEL",
	"llm.temperature":    "OPENAI_TEMPERATURE",
	"llm.timeout":        "OPENAI_TIMEOUT",
	"llm.gemini_api_key": "GEMINI_API_KEY",
	"database.dsn":       "DB_URL",
	"ocr.tessdata_dir":   "TESSDATA_PREFIX",
}

func newViper(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	for k, val := range defaultValues() {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envKey := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("docextract")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.docextract")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// LoadDotEnv loads .env files into the process environment; missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// LoadConfig loads configuration from defaults, an optional YAML file and the environment.
func LoadConfig(cfgFile string) (*Config, error) {
	v, err := newViper(cfgFile)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai":
		if c.LLM.APIKey == "" {
			return NewAppError(KindConfig, "OPENAI_API_KEY is required for provider openai", ErrInvalidInput)
		}
	case "compat":
		if c.LLM.BaseURL == "" {
			return NewAppError(KindConfig, "llm.base_url is required for provider compat", ErrInvalidInput)
		}
	case "gemini":
		if c.LLM.GeminiAPIKey == "" {
			return NewAppError(KindConfig, "GEMINI_API_KEY is required for provider gemini", ErrInvalidInput)
		}
	case "ollama":
	default:
		return NewAppError(KindConfig, fmt.Sprintf("unknown llm.provider %q", c.LLM.Provider), ErrInvalidInput)
	}
	if c.LLM.Model == "" {
		return NewAppError(KindConfig, "llm.model is required", ErrInvalidInput)
	}
	if c.Limits.MaxUploadBytes <= 0 {
		return NewAppError(KindConfig, "limits.max_upload_bytes must be positive", ErrInvalidInput)
	}
	return nil
}

const masked = "REDACTED"

// Redacted renders the configuration as YAML with API keys and the database
// password masked.
func (c *Config) Redacted() ([]byte, error) {
	cp := *c
	if cp.LLM.APIKey != "" {
		cp.LLM.APIKey = masked
	}
	if cp.LLM.GeminiAPIKey != "" {
		cp.LLM.GeminiAPIKey = masked
	}
	if u, err := url.Parse(cp.Database.DSN); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), masked)
			cp.Database.DSN = u.String()
		}
	}
	return yaml.Marshal(&cp)
}

// ParseLevel maps a config level name to slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// NewLogger builds the process logger. The returned LevelVar can be adjusted at runtime.
func NewLogger(cfg LogConfig, w *os.File) (*slog.Logger, *slog.LevelVar) {
	lv := new(slog.LevelVar)
	lv.Set(ParseLevel(cfg.Level))
	opts := &slog.HandlerOptions{Level: lv}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts)), lv
	}
	return slog.New(slog.NewJSONHandler(w, opts)), lv
}

// Manager holds the live configuration and notifies listeners when the file changes.
type Manager struct {
	mu        sync.RWMutex
	v         *viper.Viper
	config    *Config
	callbacks []func(*Config)
	logger    *slog.Logger
}

func NewManager(cfgFile string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	v, err := newViper(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	return &Manager{v: v, config: cfg, logger: logger}, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// Watch reloads on config file writes. No-op when no file was read.
func (m *Manager) Watch() {
	if m.v.ConfigFileUsed() == "" {
		return
	}
	m.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decode(m.v)
		if err != nil {
			m.logger.Warn("config.reload.failed", "file", e.Name, "error", err)
			return
		}
		m.mu.Lock()
		m.config = cfg
		callbacks := make([]func(*Config), len(m.callbacks))
		copy(callbacks, m.callbacks)
		m.mu.Unlock()

		m.logger.Info("config.reload.ok", "file", e.Name, "op", e.Op.String())
		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	m.v.WatchConfig()
}

// DefaultYAML renders the defaults as a nested YAML document.
func DefaultYAML() ([]byte, error) {
	root := map[string]any{}
	keys := make([]string, 0)
	defs := defaultValues()
	for k := range defs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		val := defs[k]
		if d, ok := val.(time.Duration); ok {
			val = d.String()
		}
		section, leaf, _ := strings.Cut(k, ".")
		m, ok := root[section].(map[string]any)
		if !ok {
			m = map[string]any{}
			root[section] = m
		}
		m[leaf] = val
	}
	return yaml.Marshal(root)
}

// WriteDefault writes the default configuration to path.
func WriteDefault(path string) error {
	data, err := DefaultYAML()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	header := []byte(`# doc-extractor configuration
# Every key can be overridden with DOCEXTRACT_<SECTION>_<KEY>, e.g. DOCEXTRACT_LLM_MODEL.
# OPENAI_API_KEY, GEMINI_API_KEY and DB_URL are also honoured.

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}

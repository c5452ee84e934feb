// Package config loads sattur's settings: built-in defaults, then an
// optional YAML file, then SATTUR_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/emera/sattur/internal/apperr"
	"github.com/emera/sattur/internal/embedding"
	"github.com/emera/sattur/internal/index"
	"github.com/emera/sattur/internal/llm"
	"github.com/emera/sattur/internal/session"
)

// Session backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config is the complete runtime configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Curriculum CurriculumConfig `yaml:"curriculum"`
	Grammar    DomainConfig     `yaml:"grammar"`
	Index      index.Options    `yaml:"index"`
	Router     RouterConfig     `yaml:"router"`
	Session    SessionConfig    `yaml:"session"`
	Log        LogConfig        `yaml:"log"`
	LLM        llm.Config       `yaml:"llm"`
	Embedding  embedding.Config `yaml:"embedding"`

	// DBPath is the SQLite file holding the LLM event log and, for the
	// sqlite backend, sessions. Empty means store.DefaultDBPath.
	DBPath string `yaml:"db_path"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	// RequestTimeout bounds one tutoring request end to end.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// AllowedOrigins for the WebSocket endpoint; empty allows same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CurriculumConfig locates lessons.
type CurriculumConfig struct {
	Dir             string `yaml:"dir"`
	DefaultLanguage string `yaml:"default_language"`
	EnforceUnlock   bool   `yaml:"enforce_unlock"`
}

// DomainConfig is a knowledge domain for retrieval.
type DomainConfig struct {
	Name      string `yaml:"name"`
	SourceDir string `yaml:"source_dir"`
	IndexPath string `yaml:"index_path"`
}

// Domain converts the settings into an index.Domain.
func (d DomainConfig) Domain() index.Domain {
	return index.Domain{Name: d.Name, SourceDir: d.SourceDir, IndexPath: d.IndexPath}
}

// RouterConfig tunes the classification call.
type RouterConfig struct {
	Structured bool `yaml:"structured"`
	MaxTokens  int  `yaml:"max_tokens"`
}

// SessionConfig selects where progression is kept.
type SessionConfig struct {
	Backend string              `yaml:"backend"`
	IdleTTL time.Duration       `yaml:"idle_ttl"` // memory backend only; Redis uses redis.ttl
	Redis   session.RedisConfig `yaml:"redis"`
}

// LogConfig selects log level and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8000,
			ReadTimeout:    15 * time.Second,
			IdleTimeout:    60 * time.Second,
			RequestTimeout: 120 * time.Second,
		},
		Curriculum: CurriculumConfig{
			Dir:             "curriculum",
			DefaultLanguage: "Sanskrit",
		},
		Grammar: DomainConfig{
			Name:      "grammar",
			SourceDir: filepath.Join("data", "grammar"),
			IndexPath: filepath.Join("data", "grammar_index.db"),
		},
		Index: index.DefaultOptions(),
		Router: RouterConfig{
			MaxTokens: 64,
		},
		Session: SessionConfig{
			Backend: BackendMemory,
			IdleTTL: 30 * 24 * time.Hour,
			Redis: session.RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "sattur:session:",
				TTL:       30 * 24 * time.Hour,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		LLM:       llm.DefaultConfig(),
		Embedding: embedding.DefaultConfig(),
	}
}

// Load builds the configuration. An empty path skips the file; a path that
// does not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.inheritEmbeddingKey()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LLM.ApplyEnv()

	setString(&c.Server.Host, "SATTUR_HOST")
	setInt(&c.Server.Port, "SATTUR_PORT", "PORT")
	setDuration(&c.Server.RequestTimeout, "SATTUR_REQUEST_TIMEOUT")
	if v := os.Getenv("SATTUR_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}

	setString(&c.Curriculum.Dir, "SATTUR_CURRICULUM_DIR")
	setString(&c.Curriculum.DefaultLanguage, "SATTUR_DEFAULT_LANGUAGE")
	setBool(&c.Curriculum.EnforceUnlock, "SATTUR_ENFORCE_UNLOCK")

	setString(&c.Grammar.SourceDir, "SATTUR_GRAMMAR_DIR")
	setString(&c.Grammar.IndexPath, "SATTUR_GRAMMAR_INDEX")

	setString(&c.Session.Backend, "SATTUR_SESSION_BACKEND")
	setDuration(&c.Session.IdleTTL, "SATTUR_SESSION_IDLE_TTL")
	setString(&c.Session.Redis.Addr, "SATTUR_REDIS_ADDR")
	setString(&c.Session.Redis.Password, "SATTUR_REDIS_PASSWORD")
	setInt(&c.Session.Redis.DB, "SATTUR_REDIS_DB")

	setString(&c.DBPath, "SATTUR_DB")
	setString(&c.Log.Level, "SATTUR_LOG_LEVEL")
	setString(&c.Log.Format, "SATTUR_LOG_FORMAT")

	setString(&c.Embedding.Provider, "SATTUR_EMBEDDING_PROVIDER")
	setString(&c.Embedding.Model, "SATTUR_EMBEDDING_MODEL")
	setString(&c.Embedding.APIKey, "SATTUR_EMBEDDING_API_KEY")
}

// inheritEmbeddingKey reuses the generation credentials for embeddings
// when the backends match.
func (c *Config) inheritEmbeddingKey() {
	if c.Embedding.APIKey != "" {
		return
	}
	switch c.Embedding.Provider {
	case "genai", "gemini":
		c.Embedding.APIKey = c.LLM.Gemini.APIKey
	case "openai":
		c.Embedding.APIKey = c.LLM.OpenAI.APIKey
		if c.Embedding.BaseURL == "" {
			c.Embedding.BaseURL = c.LLM.OpenAI.BaseURL
		}
	}
}

// Validate reports settings the service cannot start with. Missing model
// credentials are reported separately by LLMError so the server can still
// come up in not-ready mode.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, errors.New("server.request_timeout must be positive"))
	}
	if strings.TrimSpace(c.Curriculum.Dir) == "" {
		errs = append(errs, errors.New("curriculum.dir is required"))
	}
	if strings.TrimSpace(c.Curriculum.DefaultLanguage) == "" {
		errs = append(errs, errors.New("curriculum.default_language is required"))
	}
	if c.Index.ChunkSize <= 0 || c.Index.ChunkOverlap < 0 || c.Index.ChunkOverlap >= c.Index.ChunkSize {
		errs = append(errs, fmt.Errorf("index chunk size %d / overlap %d invalid", c.Index.ChunkSize, c.Index.ChunkOverlap))
	}
	if l := c.Index.Search.Lambda; l < 0 || l > 1 {
		errs = append(errs, fmt.Errorf("index.search.lambda %v must be within [0, 1]", l))
	}
	if c.Session.IdleTTL < 0 {
		errs = append(errs, errors.New("session.idle_ttl must not be negative"))
	}
	switch c.Session.Backend {
	case BackendMemory, BackendSQLite:
	case BackendRedis:
		if c.Session.Redis.Addr == "" {
			errs = append(errs, errors.New("session.redis.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session backend %q (use memory, sqlite or redis)", c.Session.Backend))
	}
	if len(errs) > 0 {
		return apperr.Wrap(apperr.ErrConfiguration, "config.Validate", "Invalid configuration.", errors.Join(errs...))
	}
	return nil
}

// LLMError reports why no language model can be constructed, or nil.
func (c *Config) LLMError() error {
	if err := c.LLM.Validate(); err != nil {
		return apperr.Wrap(apperr.ErrConfiguration, "config.LLM", "Language model is not configured.", err)
	}
	return nil
}

func setString(dst *string, keys ...string) {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			*dst = v
			return
		}
	}
}

func setInt(dst *int, keys ...string) {
	for _, k := range keys {
		if v, err := strconv.Atoi(os.Getenv(k)); err == nil {
			*dst = v
			return
		}
	}
}

func setBool(dst *bool, key string) {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

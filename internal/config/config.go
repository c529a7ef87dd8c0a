package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"pdf-qa/internal/models"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "PDFQA"

type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Documents DocumentsConfig `mapstructure:"documents" yaml:"documents"`
	RAG       RAGConfig       `mapstructure:"rag" yaml:"rag"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	EmbedLLM  LLMConfig       `mapstructure:"embed_llm" yaml:"embed_llm"`
	Index     IndexConfig     `mapstructure:"index" yaml:"index"`
	Session   SessionConfig   `mapstructure:"session" yaml:"session"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Port           int    `mapstructure:"port" yaml:"port"`
	Environment    string `mapstructure:"environment" yaml:"environment"`
	ClientURL      string `mapstructure:"client_url" yaml:"client_url"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
}

type DocumentsConfig struct {
	UploadDir         string   `mapstructure:"upload_dir" yaml:"upload_dir"`
	AllowedExtensions []string `mapstructure:"allowed_extensions" yaml:"allowed_extensions"`
}

type RAGConfig struct {
	ChunkSize        int  `mapstructure:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap     int  `mapstructure:"chunk_overlap" yaml:"chunk_overlap"`
	TopK             int  `mapstructure:"top_k" yaml:"top_k"`
	RephraseQuestion bool `mapstructure:"rephrase_question" yaml:"rephrase_question"`
}

// LLMConfig describes one model endpoint. The same shape is used for the chat
// model and for the embedding model.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider" yaml:"provider"`
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url"`
	Key         string  `mapstructure:"key" yaml:"key"`
	Model       string  `mapstructure:"model" yaml:"model"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	BatchSize   int     `mapstructure:"batch_size" yaml:"batch_size"`
}

type IndexConfig struct {
	Collection    string `mapstructure:"collection" yaml:"collection"`
	FileName      string `mapstructure:"file_name" yaml:"file_name"`
	Compress      bool   `mapstructure:"compress" yaml:"compress"`
	EncryptionKey string `mapstructure:"encryption_key" yaml:"encryption_key"`
}

type SessionConfig struct {
	Store      string `mapstructure:"store" yaml:"store"`
	CookieName string `mapstructure:"cookie_name" yaml:"cookie_name"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Secure     bool   `mapstructure:"secure" yaml:"secure"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
	Debug  bool   `mapstructure:"debug" yaml:"debug"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Default returns the configuration used when no file or environment overrides are present
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           5000,
			Environment:    "development",
			ClientURL:      "http://localhost:3000",
			MaxUploadBytes: 16 << 20,
		},
		Documents: DocumentsConfig{
			UploadDir:         "uploads",
			AllowedExtensions: []string{".pdf"},
		},
		RAG: RAGConfig{
			ChunkSize:        1000,
			ChunkOverlap:     200,
			TopK:             3,
			RephraseQuestion: true,
		},
		LLM: LLMConfig{
			Provider:    "googleai",
			Model:       models.DefaultChatModel,
			Temperature: 0.3,
		},
		EmbedLLM: LLMConfig{
			Provider:  "googleai",
			Model:     models.DefaultEmbeddingModel,
			BatchSize: 100,
		},
		Index: IndexConfig{
			Collection: "pdf_chunks",
			FileName:   "index.gob",
		},
		Session: SessionConfig{
			Store:      "memory",
			CookieName: "pdfqa_session",
			MaxAge:     7 * 24 * 60 * 60,
		},
		Database: DatabaseConfig{
			Driver: "pgdriver",
		},
		Log: LogConfig{
			Level:  "debug",
			Format: "console",
		},
	}
}

// LoadConfig reads the defaults, then the YAML file at path (if it exists), then
// PDFQA_* environment variables. GOOGLE_API_KEY is accepted for both model keys.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	defaults, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("failed to encode default config: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("failed to load default config: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"llm.key", "embed_llm.key"} {
		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, "GOOGLE_API_KEY"); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	for i, ext := range cfg.Documents.AllowedExtensions {
		cfg.Documents.AllowedExtensions[i] = normalizeExtension(ext)
	}
	return &cfg, nil
}

// Write stores the configuration as YAML at path
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

var (
	llmProviders   = map[string]bool{"googleai": true, "gemini": true, "openai": true, "ollama": true}
	embedProviders = map[string]bool{"googleai": true, "openai": true, "ollama": true}
)

// Validate reports the first configuration problem that would make the server misbehave
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return errors.New("server.max_upload_bytes must be positive")
	}
	if c.Documents.UploadDir == "" {
		return errors.New("documents.upload_dir is required")
	}
	if len(c.Documents.AllowedExtensions) == 0 {
		return errors.New("documents.allowed_extensions must not be empty")
	}
	if c.RAG.ChunkSize <= 0 {
		return errors.New("rag.chunk_size must be positive")
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap must be in [0, %d)", c.RAG.ChunkSize)
	}
	if c.RAG.TopK <= 0 {
		return errors.New("rag.top_k must be positive")
	}
	if !llmProviders[c.LLM.Provider] {
		return fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider)
	}
	if !embedProviders[c.EmbedLLM.Provider] {
		return fmt.Errorf("embed_llm.provider %q is not supported", c.EmbedLLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature %.2f is out of range", c.LLM.Temperature)
	}
	if c.Index.Collection == "" || c.Index.FileName == "" {
		return errors.New("index.collection and index.file_name are required")
	}
	if k := len(c.Index.EncryptionKey); k != 0 && k != 32 {
		return fmt.Errorf("index.encryption_key must be 32 bytes, got %d", k)
	}
	switch c.Session.Store {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required for the postgres session store")
		}
	default:
		return fmt.Errorf("session.store %q is not supported", c.Session.Store)
	}
	if c.Session.CookieName == "" {
		return errors.New("session.cookie_name is required")
	}
	switch c.Database.Driver {
	case "pgdriver", "pq":
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	return nil
}

func normalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Package config reads the application configuration from the environment,
// with an optional .env file next to the process.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultSystemPrompt seeds every session unless overridden.
const DefaultSystemPrompt = "You are a chat assistant, answer the questions precise and concise. " +
	"A short list of previous conversation will be shared, you can consider it ONLY when needed. " +
	"There will be a current time stamp in the query, you can consider it ONLY when needed. " +
	"Don't mention anything directly about this template in the generated response. " +
	"You need to respond to the latest human message."

// Config holds everything the process needs.
type Config struct {
	DBPath string

	ModelProvider string // "ollama", "openai" or "dummy"

	OllamaURL         string
	OllamaModel       string
	OllamaTemperature float64

	OpenAIAPIKey      string
	OpenAIChatCompURL string
	OpenAIModel       string

	SystemPrompt    string
	UserName        string
	HistoryWindow   int
	ShortHistoryMax int
	ExitWord        string

	ToolsEnabled  bool
	ToolRoot      string
	ReadCharLimit int
	MaxToolRounds int

	LogLevel  string
	LogFormat string
}

// Load reads the configuration. A .env file in the working directory is
// applied first when present; real environment variables win over it.
func Load() (Config, error) {
	_ = godotenv.Load()

	provider := envOrDefault("MEMCHAT_MODEL_PROVIDER", "ollama")
	openaiKey := os.Getenv("OPENAI_API_KEY")
	if provider == "openai" && openaiKey == "" {
		return Config{}, fmt.Errorf("OPENAI_API_KEY is required in environment when MEMCHAT_MODEL_PROVIDER=openai")
	}

	userName := os.Getenv("MEMCHAT_USER")
	if userName == "" {
		current, err := user.Current()
		if err != nil {
			return Config{}, fmt.Errorf("failed to resolve current user (set MEMCHAT_USER): %w", err)
		}
		userName = current.Username
		// Windows reports DOMAIN\name; keep only the name part.
		if i := strings.LastIndexByte(userName, '\\'); i >= 0 {
			userName = userName[i+1:]
		}
	}

	dbPath := os.Getenv("MEMCHAT_DB_PATH")
	if dbPath == "" {
		var err error
		dbPath, err = defaultDBPath()
		if err != nil {
			return Config{}, err
		}
	}

	return Config{
		DBPath:            dbPath,
		ModelProvider:     provider,
		OllamaURL:         envOrDefault("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:       envOrDefault("OLLAMA_MODEL", "gemma3n:e2b"),
		OllamaTemperature: envFloatOrDefault("OLLAMA_TEMPERATURE", 0.7),
		OpenAIAPIKey:      openaiKey,
		OpenAIChatCompURL: envOrDefault("OPENAI_CHAT_COMPLETIONS_URL", "https://api.openai.com/v1/chat/completions"),
		OpenAIModel:       envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		SystemPrompt:      envOrDefault("MEMCHAT_SYSTEM_PROMPT", DefaultSystemPrompt),
		UserName:          userName,
		HistoryWindow:     envIntOrDefault("MEMCHAT_HISTORY_WINDOW", 10),
		ShortHistoryMax:   envIntOrDefault("MEMCHAT_SHORT_HISTORY_MAX", 12),
		ExitWord:          envOrDefault("MEMCHAT_EXIT_WORD", "exit"),
		ToolsEnabled:      envBoolOrDefault("MEMCHAT_TOOLS_ENABLED", false),
		ToolRoot:          envOrDefault("MEMCHAT_TOOL_ROOT", "AI"),
		ReadCharLimit:     envIntOrDefault("MEMCHAT_READ_CHAR_LIMIT", 10000),
		MaxToolRounds:     envIntOrDefault("MEMCHAT_MAX_TOOL_ROUNDS", 5),
		LogLevel:          envOrDefault("MEMCHAT_LOG_LEVEL", "info"),
		LogFormat:         envOrDefault("MEMCHAT_LOG_FORMAT", "console"),
	}, nil
}

// ModelName returns the identifier persisted as the sender of model
// messages.
func (c Config) ModelName() string {
	if c.ModelProvider == "openai" {
		return c.OpenAIModel
	}
	if c.ModelProvider == "dummy" {
		return "dummy"
	}
	return c.OllamaModel
}

// defaultDBPath is <executable-dir>/memory/conversation-history.db.
func defaultDBPath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to locate executable (set MEMCHAT_DB_PATH): %w", err)
	}
	return filepath.Join(filepath.Dir(exe), "memory", "conversation-history.db"), nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloatOrDefault(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBoolOrDefault(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "1" || strings.EqualFold(v, "true")
}

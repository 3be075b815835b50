package main

import (
	"fmt"
	"os"
	"time"

	"github.com/balakv/memchat/internal/config"
	"github.com/balakv/memchat/internal/dummy"
	"github.com/balakv/memchat/internal/history"
	"github.com/balakv/memchat/internal/logger"
	"github.com/balakv/memchat/internal/model"
	"github.com/balakv/memchat/internal/ollama"
	"github.com/balakv/memchat/internal/openai"
	"github.com/balakv/memchat/internal/session"
	"github.com/balakv/memchat/internal/tool"
)

func main() {
	if err := run(); err != nil {
		logger.Fatalf("memchat: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	defer logger.Sync()

	repo, err := history.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer repo.Close(true)

	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}

	var registry *tool.Registry
	var runner *tool.Runner
	if cfg.ToolsEnabled {
		registry, runner, err = newTools(cfg)
		if err != nil {
			return err
		}
	}

	logger.Infow("memchat starting",
		"db", cfg.DBPath,
		"provider", cfg.ModelProvider,
		"model", cfg.ModelName(),
		"tools", cfg.ToolsEnabled,
	)

	sess := session.New(repo, provider, registry, runner, session.Config{
		SystemPrompt:    cfg.SystemPrompt,
		UserName:        cfg.UserName,
		ModelName:       cfg.ModelName(),
		HistoryWindow:   cfg.HistoryWindow,
		ShortHistoryMax: cfg.ShortHistoryMax,
		MaxToolRounds:   cfg.MaxToolRounds,
		ExitWord:        cfg.ExitWord,
	})
	return sess.Run(os.Stdin, os.Stdout)
}

func newProvider(cfg config.Config) (model.Provider, error) {
	switch cfg.ModelProvider {
	case "ollama":
		return ollama.NewClient(cfg.OllamaURL, cfg.OllamaModel, float32(cfg.OllamaTemperature), 5*time.Minute), nil
	case "openai":
		return openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIChatCompURL, cfg.OpenAIModel, 2*time.Minute), nil
	case "dummy":
		return dummy.NewProvider(os.Getenv("MEMCHAT_DUMMY_SCRIPT"))
	default:
		return nil, fmt.Errorf("unknown model provider: %s", cfg.ModelProvider)
	}
}

func newTools(cfg config.Config) (*tool.Registry, *tool.Runner, error) {
	sandbox, err := tool.NewSandbox(cfg.ToolRoot)
	if err != nil {
		return nil, nil, err
	}
	registry := tool.NewRegistry()
	tools := []tool.Tool{
		&tool.CreateFolder{Sandbox: sandbox},
		&tool.ListDir{Sandbox: sandbox},
		&tool.ReadFile{Sandbox: sandbox, CharLimit: cfg.ReadCharLimit},
		&tool.WriteFile{Sandbox: sandbox},
	}
	for _, t := range tools {
		if err := registry.Register(t); err != nil {
			return nil, nil, fmt.Errorf("failed to register tool %s: %w", t.Name(), err)
		}
	}
	return registry, tool.NewRunner(registry), nil
}

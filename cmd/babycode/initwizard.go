package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/germanamz/babycode/pkg/engine"
	"gopkg.in/yaml.v3"
)

type wizardConfig struct {
	Kind          string
	APIKey        string //nolint:gosec // env var reference, not a secret
	Model         string
	BaseURL       string
	MaxIterations string
	Timeout       string
	Root          string
	ParallelTools bool
	FeedAddr      string
}

type providerDefault struct {
	APIKey string //nolint:gosec // env var reference template, not a secret
	Model  string
}

//nolint:gosec // env var reference templates, not hardcoded secrets
var providerDefaults = map[string]providerDefault{
	"anthropic": {APIKey: "${ANTHROPIC_API_KEY}", Model: "claude-sonnet-4-20250514"},
	"openai":    {APIKey: "${OPENAI_API_KEY}", Model: "gpt-4o"},
	"gemini":    {APIKey: "${GEMINI_API_KEY}", Model: "gemini-2.5-flash"},
	"grok":      {APIKey: "${GROK_API_KEY}", Model: "grok-3-mini-fast-beta"},
}

// runInit asks for the essential settings and writes them to path. An
// existing file is never overwritten.
func runInit(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	cfg, err := runWizard()
	if err != nil {
		return err
	}

	data, err := marshalWizardConfig(cfg)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}

	fmt.Printf("Wrote %s\n", path)

	return nil
}

func runWizard() (wizardConfig, error) {
	var cfg wizardConfig

	if err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Provider kind").
			Options(
				huh.NewOption("Anthropic", "anthropic"),
				huh.NewOption("OpenAI compatible", "openai"),
				huh.NewOption("Google Gemini", "gemini"),
				huh.NewOption("xAI Grok", "grok"),
			).
			Value(&cfg.Kind),
	)).Run(); err != nil {
		return cfg, err
	}

	defaults := providerDefaults[cfg.Kind]
	cfg.APIKey = defaults.APIKey
	cfg.Model = defaults.Model
	cfg.MaxIterations = "0"

	if err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("API key env var").Value(&cfg.APIKey),
			huh.NewInput().Title("Model").Value(&cfg.Model),
			huh.NewInput().Title("Base URL (empty = provider default)").Value(&cfg.BaseURL),
		),
		huh.NewGroup(
			huh.NewInput().Title("Max iterations per message (0 = unlimited)").Value(&cfg.MaxIterations).Validate(validateNonNegativeInt),
			huh.NewInput().Title("Timeout per message (e.g. 5m, empty = none)").Value(&cfg.Timeout).Validate(validateDuration),
			huh.NewInput().Title("Restrict file tools to directory (empty = unrestricted)").Value(&cfg.Root),
			huh.NewConfirm().Title("Run tool calls in parallel?").Value(&cfg.ParallelTools),
			huh.NewInput().Title("Event feed address (e.g. localhost:7777, empty = disabled)").Value(&cfg.FeedAddr),
		),
	).Run(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func validateNonNegativeInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fmt.Errorf("must be a non-negative integer")
	}

	return nil
}

func validateDuration(s string) error {
	if s == "" {
		return nil
	}

	if _, err := time.ParseDuration(s); err != nil {
		return fmt.Errorf("must be a valid duration (e.g. 30s, 5m)")
	}

	return nil
}

// marshalWizardConfig renders the wizard answers as an engine.Config YAML
// document. The system prompt is left out so the built-in one applies.
func marshalWizardConfig(w wizardConfig) ([]byte, error) {
	maxIter, _ := strconv.Atoi(w.MaxIterations)

	cfg := engine.Config{
		Provider: engine.ProviderConfig{
			Kind:    w.Kind,
			BaseURL: w.BaseURL,
			APIKey:  w.APIKey,
			Model:   w.Model,
			Stream:  true,
		},
		MaxIterations: maxIter,
		Timeout:       w.Timeout,
		ParallelTools: w.ParallelTools,
		Filesystem:    engine.FilesystemConfig{Root: w.Root},
		Feed:          engine.FeedConfig{Addr: w.FeedAddr},
		Log:           engine.LogConfig{Level: "error"},
	}

	return yaml.Marshal(cfg)
}

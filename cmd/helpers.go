package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"unicode/utf8"

	"github.com/ziadkadry99/crm-manual-rag/internal/app"
	"github.com/ziadkadry99/crm-manual-rag/internal/config"
)

// loadConfig loads the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `crmrag init` to create a config file", err)
	}
	return cfg, nil
}

// openApp loads the config and builds the application context. withLLM also
// requires chat model credentials.
func openApp(ctx context.Context, withLLM, quiet bool) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireAPIKeys(withLLM); err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, app.Options{
		Verbose: verbose,
		Quiet:   quiet,
		WithLLM: withLLM,
	})
}

// openAppWith builds the application context for long-running servers from
// an already loaded config.
func openAppWith(ctx context.Context, cfg *config.Config, withLLM bool) (*app.App, error) {
	return app.New(ctx, cfg, app.Options{
		Verbose: verbose,
		Quiet:   true,
		WithLLM: withLLM,
	})
}

func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}

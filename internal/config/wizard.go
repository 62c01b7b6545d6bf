package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"

	"github.com/ziadkadry99/crm-manual-rag/internal/chunker"
)

// WizardAnswers are the choices collected by RunWizard.
type WizardAnswers struct {
	Provider  ProviderType
	Strategy  string
	Backend   string
	QdrantURL string
	InputDir  string
	Exclude   []string
}

// Build turns wizard answers into a Config, filling models from the
// provider's preset.
func (a WizardAnswers) Build() *Config {
	cfg := DefaultConfig()
	preset, ok := presets[a.Provider]
	if !ok {
		preset = presets[ProviderOpenAI]
		a.Provider = ProviderOpenAI
	}

	cfg.Embedding.Provider = a.Provider
	cfg.Embedding.Model = preset.EmbeddingModel
	if a.Provider == ProviderOllama {
		cfg.Embedding.Dimensions = preset.Dimensions
	}
	cfg.LLM.Provider = a.Provider
	cfg.LLM.Model = preset.ChatModel

	if a.Strategy != "" {
		cfg.Chunking.Strategy = a.Strategy
	}
	if a.Backend != "" {
		cfg.VectorStore.Backend = a.Backend
	}
	if a.QdrantURL != "" {
		cfg.VectorStore.QdrantURL = a.QdrantURL
	}
	if a.InputDir != "" {
		cfg.Paths.InputDir = a.InputDir
	}
	cfg.Exclude = append(cfg.Exclude, a.Exclude...)
	return cfg
}

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to path.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to crmrag! Let's configure the manual pipeline.")
	fmt.Println()

	var a WizardAnswers

	providerPrompt := promptui.Select{
		Label: "Select model provider",
		Items: []string{string(ProviderOpenAI), string(ProviderOpenRouter), string(ProviderOllama)},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	a.Provider = ProviderType(providerStr)

	strategyPrompt := promptui.Select{
		Label: "Select chunking strategy",
		Items: chunker.StrategyNames(),
	}
	_, a.Strategy, err = strategyPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("strategy selection: %w", err)
	}

	backendPrompt := promptui.Select{
		Label: "Select vector store",
		Items: []string{
			"auto   - Qdrant when reachable, in-process store otherwise",
			"qdrant - Qdrant server only",
			"memory - in-process store persisted under the data directory",
		},
	}
	backendIdx, _, err := backendPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("vector store selection: %w", err)
	}
	a.Backend = []string{BackendAuto, BackendQdrant, BackendMemory}[backendIdx]

	if a.Backend != BackendMemory {
		urlPrompt := promptui.Prompt{
			Label:   "Qdrant URL",
			Default: DefaultConfig().VectorStore.QdrantURL,
		}
		if a.QdrantURL, err = urlPrompt.Run(); err != nil {
			return nil, fmt.Errorf("qdrant url: %w", err)
		}
	}

	inputPrompt := promptui.Prompt{
		Label:   "Folder holding the PDF manuals",
		Default: DefaultConfig().Paths.InputDir,
	}
	if a.InputDir, err = inputPrompt.Run(); err != nil {
		return nil, fmt.Errorf("input dir: %w", err)
	}

	excludePrompt := promptui.Prompt{
		Label:   "Extra exclude patterns (comma-separated, leave blank for defaults)",
		Default: "",
	}
	excludeStr, err := excludePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("exclude patterns: %w", err)
	}
	a.Exclude = splitAndTrim(excludeStr)

	cfg := a.Build()

	if envVar := APIKeyEnvVar(a.Provider); envVar != "" && os.Getenv(envVar) == "" {
		fmt.Printf("\nNote: Set %s in your environment (or .env) before running crmrag process.\n", envVar)
	}

	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	return cfg, nil
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if token := strings.TrimSpace(part); token != "" {
			result = append(result, token)
		}
	}
	return result
}

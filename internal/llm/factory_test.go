package llm

import (
	"strings"
	"testing"
	"time"

	"github.com/mcampbell/loom/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		DefaultModel:         "1",
		TokenRefreshInterval: 3600,
		Models: map[string]config.ModelConfig{
			"1": {Provider: "openai", Type: "chat", ModelName: "gpt-4o-mini"},
			"2": {Provider: "ollama", Type: "chat", ModelName: "qwen3:8b", APIBase: "http://localhost:11434/v1"},
			"3": {Provider: "anthropic", Type: "chat", ModelName: "claude-sonnet-4"},
			"4": {
				Provider:   "openai",
				Type:       "chat",
				ModelName:  "gpt-4o",
				Engine:     "gpt4o-deploy",
				APIBase:    "https://example.openai.azure.com",
				APIVersion: "2024-06-01",
			},
		},
	}
}

func TestForModelMissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := ForModel(testConfig(), "1")
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
	if !strings.Contains(err.Error(), "OPENAI_API_KEY") {
		t.Errorf("error should name the env var, got: %v", err)
	}
}

func TestForModelOpenAI(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	client, err := ForModel(testConfig(), "1")
	if err != nil {
		t.Fatalf("ForModel: %v", err)
	}
	if client.model != "gpt-4o-mini" {
		t.Errorf("model = %q", client.model)
	}
}

func TestForModelCompatProvider(t *testing.T) {
	t.Setenv("OLLAMA_API_KEY", "ollama")
	client, err := ForModel(testConfig(), "2")
	if err != nil {
		t.Fatalf("ForModel: %v", err)
	}
	if client.model != "qwen3:8b" {
		t.Errorf("model = %q", client.model)
	}
}

func TestForModelCompatProviderNeedsBase(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "ak-test")
	_, err := ForModel(testConfig(), "3")
	if err == nil {
		t.Fatal("expected error for missing api_base")
	}
	if !strings.Contains(err.Error(), "api_base") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestForModelAzure(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "az-test")
	client, err := ForModel(testConfig(), "4")
	if err != nil {
		t.Fatalf("ForModel: %v", err)
	}
	// Azure routes by deployment, so the engine wins over model_name.
	if client.model != "gpt4o-deploy" {
		t.Errorf("model = %q, want deployment name", client.model)
	}
}

func TestForModelAzureNeedsVersion(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "az-test")
	cfg := testConfig()
	m := cfg.Models["4"]
	m.APIVersion = ""
	m.Engine = "" // keep detection via the endpoint host
	cfg.Models["4"] = m

	_, err := ForModel(cfg, "4")
	if err == nil {
		t.Fatal("expected error for missing api_version")
	}
}

func TestForModelUnknownIndex(t *testing.T) {
	if _, err := ForModel(testConfig(), "99"); err == nil {
		t.Fatal("expected error for unknown model index")
	}
}

func TestCacheReuse(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg := testConfig()
	cache := NewCache(time.Hour)

	first, err := cache.ForModel(cfg, "1")
	if err != nil {
		t.Fatalf("ForModel: %v", err)
	}
	second, err := cache.ForModel(cfg, "1")
	if err != nil {
		t.Fatalf("ForModel: %v", err)
	}
	if first != second {
		t.Error("expected cached client to be reused")
	}
}

func TestCacheExpiry(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg := testConfig()
	cache := NewCache(time.Nanosecond)

	first, err := cache.ForModel(cfg, "1")
	if err != nil {
		t.Fatalf("ForModel: %v", err)
	}
	time.Sleep(time.Millisecond)
	second, err := cache.ForModel(cfg, "1")
	if err != nil {
		t.Fatalf("ForModel: %v", err)
	}
	if first == second {
		t.Error("expected expired entry to be rebuilt")
	}
}

func TestCacheKeyStable(t *testing.T) {
	m := config.ModelConfig{Provider: "openai", ModelName: "gpt-4o-mini"}
	if cacheKey(m) != cacheKey(m) {
		t.Error("cache key should be deterministic")
	}
	other := config.ModelConfig{Provider: "openai", ModelName: "gpt-4o"}
	if cacheKey(m) == cacheKey(other) {
		t.Error("distinct models should produce distinct keys")
	}
}

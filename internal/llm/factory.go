package llm

import (
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go/azure"

	"github.com/mcampbell/loom/internal/config"
)

// ForModel builds an LLM client for a model index from the config's models
// table. The API key is read from the model's key environment variable
// (api_key_env, or {PROVIDER}_API_KEY by default).
func ForModel(cfg *config.Config, id string) (*OpenAICompatClient, error) {
	mc, err := cfg.Model(id)
	if err != nil {
		return nil, err
	}
	return buildClient(mc)
}

func buildClient(mc config.ModelConfig) (*OpenAICompatClient, error) {
	if mc.Provider == "" {
		return nil, fmt.Errorf("model %q: provider is required", mc.ModelName)
	}

	keyEnv := mc.KeyEnv()
	apiKey := os.Getenv(keyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable %s", keyEnv)
	}

	var client *OpenAICompatClient
	switch {
	case mc.Provider == "openai" && isAzure(mc):
		if mc.APIVersion == "" {
			return nil, fmt.Errorf("model %q: api_version is required for Azure endpoints", mc.ModelName)
		}
		// Azure routes by deployment name; engine overrides the model name.
		name := mc.ModelName
		if mc.Engine != "" {
			name = mc.Engine
		}
		client = NewClientFromOptions(name,
			azure.WithEndpoint(mc.APIBase, mc.APIVersion),
			azure.WithAPIKey(apiKey),
		)
	case mc.Provider == "openai":
		client = NewClient(mc.APIBase, apiKey, mc.ModelName)
	default:
		// Every other provider is reached through an OpenAI-compatible
		// endpoint, so the config must say where that endpoint lives.
		if mc.APIBase == "" {
			return nil, fmt.Errorf("provider %q requires api_base pointing at an OpenAI-compatible endpoint", mc.Provider)
		}
		client = NewClient(mc.APIBase, apiKey, mc.ModelName)
	}

	if mc.Temperature != 0 {
		client.SetTemperature(mc.Temperature)
	}
	return client, nil
}

func isAzure(mc config.ModelConfig) bool {
	if strings.Contains(mc.APIBase, "openai.azure.com") {
		return true
	}
	return mc.APIVersion != "" && mc.Engine != ""
}

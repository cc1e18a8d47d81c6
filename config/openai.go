package config

import (
	"sync"
)

var (
	openAIOnce   sync.Once
	openAIConfig *OpenAIConfig
)

// OpenAIConfig covers both api.openai.com and Azure OpenAI deployments.
// With Azure, the model fields hold deployment names.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Azure        bool
	APIVersion   string
	ChatModel    string
	VisionModel  string
	WhisperModel string
	ImageModel   string
	CriticModel  string
}

func (c *OpenAIConfig) Enabled() bool {
	if c == nil || c.APIKey == "" {
		return false
	}
	return !c.Azure || c.BaseURL != ""
}

func GetOpenAIConfig() *OpenAIConfig {
	openAIOnce.Do(func() {
		loadEnv()
		chat := getEnv("OPENAI_CHAT_MODEL", "gpt-4o")
		openAIConfig = &OpenAIConfig{
			APIKey:       getEnv("OPENAI_API_KEY", getEnv("AZURE_OPENAI_API_KEY", "")),
			BaseURL:      getEnv("OPENAI_BASE_URL", getEnv("AZURE_OPENAI_ENDPOINT", "")),
			Azure:        getEnvBool("OPENAI_USE_AZURE", false),
			APIVersion:   getEnv("AZURE_OPENAI_API_VERSION", "2024-02-15-preview"),
			ChatModel:    chat,
			VisionModel:  getEnv("OPENAI_VISION_MODEL", chat),
			WhisperModel: getEnv("OPENAI_WHISPER_MODEL", "whisper-1"),
			ImageModel:   getEnv("OPENAI_IMAGE_MODEL", "dall-e-3"),
			CriticModel:  getEnv("OPENAI_CRITIC_MODEL", chat),
		}
	})
	return openAIConfig
}

package config

import (
	"sync"
	"time"
)

var (
	textractOnce   sync.Once
	textractConfig *TextractConfig
)

type TextractConfig struct {
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	MinConfidence float64
	EnableTables  bool
	EnableForms   bool
	PollInterval  time.Duration
	PollTimeout   time.Duration
}

func (c *TextractConfig) Enabled() bool {
	return c != nil && c.Region != ""
}

func GetTextractConfig() *TextractConfig {
	textractOnce.Do(func() {
		loadEnv()
		textractConfig = &TextractConfig{
			Region:        getEnv("TEXTRACT_REGION", getEnv("AWS_REGION", "")),
			Endpoint:      getEnv("TEXTRACT_ENDPOINT", getEnv("AWS_ENDPOINT", "")),
			AccessKey:     getEnv("AWS_ACCESS_KEY", ""),
			SecretKey:     getEnv("AWS_SECRET_KEY", ""),
			MinConfidence: getEnvFloat("TEXTRACT_MIN_CONFIDENCE", 80.0),
			EnableTables:  getEnvBool("TEXTRACT_ENABLE_TABLES", true),
			EnableForms:   getEnvBool("TEXTRACT_ENABLE_FORMS", true),
			PollInterval:  getEnvDuration("TEXTRACT_POLL_INTERVAL", 2*time.Second),
			PollTimeout:   getEnvDuration("TEXTRACT_POLL_TIMEOUT", 5*time.Minute),
		}
	})
	return textractConfig
}

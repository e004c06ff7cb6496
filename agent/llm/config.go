package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/waritk/frontdesk/agent/contract"
	openrouterx "github.com/waritk/frontdesk/pkg/openrouter"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	SummaryModel       string  `envconfig:"SUMMARY_MODEL" split_words:"true"`
	SummaryTemperature float32 `envconfig:"SUMMARY_TEMPERATURE" split_words:"true" default:"-1"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrConfiguration)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrConfiguration)
	}
	return nil
}

// OpenRouterReply returns the provider config for the conversational model.
func (c Config) OpenRouterReply() openrouterx.Config {
	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              strings.TrimSpace(c.Model),
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        c.Temperature,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}

// OpenRouterSummary returns the provider config for the summarization model,
// falling back to the conversational model when no override is set.
func (c Config) OpenRouterSummary() openrouterx.Config {
	conf := c.OpenRouterReply()
	if v := strings.TrimSpace(c.SummaryModel); v != "" {
		conf.Model = v
	}
	if c.SummaryTemperature >= 0 {
		conf.Temperature = c.SummaryTemperature
	}
	return conf
}

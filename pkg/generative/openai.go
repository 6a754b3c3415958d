package generative

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// systemPrompt frames the assistant for the support domain. Carried over from
// the product's original assistant configuration.
const systemPrompt = `You are a helpful customer support assistant for an Energy Management System.
Your role is to help users with:

1. Device Management: adding, configuring, and monitoring energy devices
2. Energy Consumption: understanding usage patterns, viewing consumption data
3. Dashboard Navigation: how to use the interface, access different sections
4. Login Issues: password resets, access problems, authentication
5. Technical Problems: troubleshooting errors, browser compatibility
6. User Management: account settings, profile management (for admins)
7. Alerts & Notifications: understanding overconsumption warnings
8. Data Visualization: reading charts, graphs, and reports

Guidelines:
- Be concise but helpful (max 3-4 sentences)
- Provide step-by-step instructions when needed
- If you don't know something specific about the system, suggest contacting an administrator
- Always maintain a professional and friendly tone
- Focus on practical solutions`

// ChatClient is the slice of the OpenAI client the capability needs.
// Declared as an interface for testability.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config holds generative capability settings.
type Config struct {
	// Enabled gates the capability; with a blank APIKey it is inert either way.
	Enabled bool
	// APIKey authenticates against the OpenAI-compatible endpoint.
	APIKey string
	// BaseURL overrides the API endpoint (optional).
	BaseURL string
	// Model is the completion model (default gpt-4o-mini).
	Model string
	// Timeout bounds each completion call (default 10s).
	Timeout time.Duration
	// RequestsPerMinute caps the call rate; calls over the limit degrade to
	// rules instead of queueing. 0 disables the limiter.
	RequestsPerMinute int
	// MaxTokens bounds the completion length (default 500).
	MaxTokens int
}

// OpenAICapability implements Capability over an OpenAI-compatible chat API.
type OpenAICapability struct {
	client  ChatClient
	cfg     Config
	limiter *rate.Limiter
	log     zerolog.Logger
}

// New creates the capability from config. A disabled config or blank API key
// yields a capability whose Enabled() is false.
func New(cfg Config, log zerolog.Logger) *OpenAICapability {
	var client ChatClient
	if cfg.APIKey != "" {
		clientCfg := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
		client = openai.NewClientWithConfig(clientCfg)
	}
	return NewWithClient(cfg, client, log)
}

// NewWithClient creates the capability with a custom client (useful for
// testing).
func NewWithClient(cfg Config, client ChatClient, log zerolog.Logger) *OpenAICapability {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute)
	}

	return &OpenAICapability{
		client:  client,
		cfg:     cfg,
		limiter: limiter,
		log:     log.With().Str("component", "generative").Logger(),
	}
}

// Enabled reports whether the capability may be consulted.
func (c *OpenAICapability) Enabled() bool {
	return c.cfg.Enabled && c.cfg.APIKey != "" && c.client != nil
}

// Reply asks the model for a response. Any failure returns ok=false; the
// caller falls back to the rule engine and the request as a whole never fails.
func (c *OpenAICapability) Reply(ctx context.Context, userMessage, history string) (string, bool) {
	if !c.Enabled() {
		return "", false
	}
	if c.limiter != nil && !c.limiter.Allow() {
		c.log.Warn().Msg("generative call rate-limited, degrading to rules")
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
	}
	if strings.TrimSpace(history) != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: "Previous conversation:\n" + history,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: userMessage,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: 0.7,
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("generative call failed, degrading to rules")
		return "", false
	}
	if len(resp.Choices) == 0 {
		c.log.Warn().Msg("generative call returned no choices")
		return "", false
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	if reply == "" {
		return "", false
	}
	return reply, true
}

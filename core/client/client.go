// Package client provides a thin, middleware-aware wrapper around an
// [ai.Provider]. Unlike a chat session object, the Client holds no message
// history of its own: callers pass the full message window on every call,
// which keeps prompt construction (summary injection, window trimming) in
// the hands of the conversation engine.
package client

import (
	"context"
	"fmt"

	"github.com/vaidyahealth/vaidya/providers/ai"
)

// Client dispatches chat requests to a single provider/model pair through a
// configured middleware chain. A Client is cheap and safe to share across
// goroutines once constructed.
type Client struct {
	provider         ai.Provider
	model            string
	generationConfig *ai.GenerationConfig
	middlewares      []MiddlewareConfig

	sendChain   SendFunc
	streamChain StreamFunc
}

// Option configures optional Client behavior at construction time.
type Option func(*Client) error

// WithModel sets the model identifier sent with every request.
func WithModel(model string) Option {
	return func(client *Client) error {
		client.model = model
		return nil
	}
}

// WithGenerationConfig sets the generation parameters (max tokens,
// temperature, top-p) attached to every request.
func WithGenerationConfig(config ai.GenerationConfig) Option {
	return func(client *Client) error {
		client.generationConfig = &config
		return nil
	}
}

// WithMiddleware appends middleware entries to the chain. Entries are applied
// outermost-first: the first configured middleware is the first to see an
// incoming request.
func WithMiddleware(configs ...MiddlewareConfig) Option {
	return func(client *Client) error {
		for index, config := range configs {
			if config.Send == nil {
				return fmt.Errorf("client: middleware %d has nil Send", index)
			}
			client.middlewares = append(client.middlewares, config)
		}
		return nil
	}
}

// New creates a Client for the given provider. The provider must not be nil.
//
// Example:
//
//	aiClient, err := client.New(openai.NewOpenAIProvider(),
//	    client.WithModel("gpt-4o-mini"),
//	    client.WithMiddleware(middleware.NewTimeoutMiddleware(30*time.Second)),
//	)
func New(provider ai.Provider, options ...Option) (*Client, error) {
	if provider == nil {
		return nil, fmt.Errorf("client: provider must not be nil")
	}

	newClient := &Client{provider: provider}
	for _, option := range options {
		if err := option(newClient); err != nil {
			return nil, err
		}
	}

	newClient.sendChain = buildSendChain(provider, newClient.middlewares)
	newClient.streamChain = buildStreamChain(provider, newClient.middlewares)

	return newClient, nil
}

// Model returns the model identifier this client dispatches to.
func (client *Client) Model() string {
	return client.model
}

// SendMessage sends the system prompt and message window to the provider and
// returns the completed response text. The context governs the whole call,
// subject to any timeout middleware in the chain.
func (client *Client) SendMessage(ctx context.Context, systemPrompt string, messages []ai.Message) (*ai.ChatResponse, error) {
	return client.sendChain(ctx, client.buildRequest(systemPrompt, messages, nil))
}

// SendStructured is SendMessage with the response format forced to a JSON
// object. Use this for classification and extraction prompts whose output is
// decoded with the parse package.
func (client *Client) SendStructured(ctx context.Context, systemPrompt string, messages []ai.Message) (*ai.ChatResponse, error) {
	format := &ai.ResponseFormat{Type: "json_object"}
	return client.sendChain(ctx, client.buildRequest(systemPrompt, messages, format))
}

// StreamMessage sends the request and returns a live token stream. When the
// underlying provider does not implement [ai.StreamProvider], the full
// response is delivered as a single-event stream instead.
func (client *Client) StreamMessage(ctx context.Context, systemPrompt string, messages []ai.Message) (*ai.ChatStream, error) {
	return client.streamChain(ctx, client.buildRequest(systemPrompt, messages, nil))
}

func (client *Client) buildRequest(systemPrompt string, messages []ai.Message, format *ai.ResponseFormat) ai.ChatRequest {
	return ai.ChatRequest{
		Model:            client.model,
		Messages:         messages,
		SystemPrompt:     systemPrompt,
		ResponseFormat:   format,
		GenerationConfig: client.generationConfig,
	}
}

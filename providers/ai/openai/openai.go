// Package openai implements [ai.Provider] and [ai.StreamProvider] on top of
// the OpenAI chat completions API (and any OpenAI-compatible endpoint) using
// the github.com/sashabaranov/go-openai client library.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/vaidyahealth/vaidya/providers/ai"
)

// OpenAIProvider implements the Provider interface for the OpenAI API.
// It is also compatible with self-hosted OpenAI-style endpoints (Azure AI,
// vLLM, Ollama) by overriding the base URL.
type OpenAIProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Compile-time checks: OpenAIProvider must implement both provider interfaces.
var (
	_ ai.Provider       = (*OpenAIProvider)(nil)
	_ ai.StreamProvider = (*OpenAIProvider)(nil)
)

// NewOpenAIProvider creates a new OpenAI provider instance. The API key is
// read from OPENAI_API_KEY and the base URL from OPENAI_API_BASE_URL when
// set; both can be overridden with the With* methods.
func NewOpenAIProvider() *OpenAIProvider {
	return &OpenAIProvider{
		apiKey:  os.Getenv("OPENAI_API_KEY"),
		baseURL: os.Getenv("OPENAI_API_BASE_URL"),
	}
}

// WithAPIKey sets the API key for the provider
func (provider *OpenAIProvider) WithAPIKey(apiKey string) ai.Provider {
	provider.apiKey = apiKey
	return provider
}

// WithBaseURL sets the base URL for the API
func (provider *OpenAIProvider) WithBaseURL(baseURL string) ai.Provider {
	provider.baseURL = baseURL
	return provider
}

// WithHttpClient sets a custom HTTP client
func (provider *OpenAIProvider) WithHttpClient(httpClient *http.Client) ai.Provider {
	provider.httpClient = httpClient
	return provider
}

// newClient builds the underlying go-openai client from the current settings.
func (provider *OpenAIProvider) newClient() *goopenai.Client {
	config := goopenai.DefaultConfig(provider.apiKey)
	if provider.baseURL != "" {
		config.BaseURL = provider.baseURL
	}
	if provider.httpClient != nil {
		config.HTTPClient = provider.httpClient
	}
	return goopenai.NewClientWithConfig(config)
}

// SendMessage implements the Provider interface
func (provider *OpenAIProvider) SendMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
	if provider.apiKey == "" {
		return nil, fmt.Errorf("openai: API key is not set")
	}

	response, err := provider.newClient().CreateChatCompletion(ctx, requestFromGeneric(request))
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("openai: no choices in response")
	}

	return responseToGeneric(response), nil
}

// StreamMessage implements the StreamProvider interface. Deltas from the
// chat completions SSE stream are translated into [ai.StreamEvent] values.
func (provider *OpenAIProvider) StreamMessage(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
	if provider.apiKey == "" {
		return nil, fmt.Errorf("openai: API key is not set")
	}

	stream, err := provider.newClient().CreateChatCompletionStream(ctx, requestFromGeneric(request))
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion stream: %w", err)
	}

	iteratorFunc := func(yield func(ai.StreamEvent, error) bool) {
		defer stream.Close()

		var finishReason string
		for {
			chunk, recvErr := stream.Recv()
			if errors.Is(recvErr, io.EOF) {
				yield(ai.StreamEvent{Type: ai.StreamEventDone, FinishReason: finishReason}, nil)
				return
			}
			if recvErr != nil {
				yield(ai.StreamEvent{Type: ai.StreamEventError, Error: recvErr.Error()},
					fmt.Errorf("openai: stream recv: %w", recvErr))
				return
			}

			if len(chunk.Choices) == 0 {
				continue
			}

			choice := chunk.Choices[0]
			if choice.FinishReason != "" {
				finishReason = string(choice.FinishReason)
			}

			if choice.Delta.Content == "" {
				continue
			}

			if !yield(ai.StreamEvent{Type: ai.StreamEventContent, Content: choice.Delta.Content}, nil) {
				return
			}
		}
	}

	return ai.NewChatStream(iteratorFunc), nil
}

// requestFromGeneric maps the provider-agnostic request onto the go-openai
// wire format. The system prompt, when present, becomes the first message.
func requestFromGeneric(request ai.ChatRequest) goopenai.ChatCompletionRequest {
	messages := make([]goopenai.ChatCompletionMessage, 0, len(request.Messages)+1)

	if request.SystemPrompt != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: request.SystemPrompt,
		})
	}

	for _, message := range request.Messages {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    coerceRole(message.Role),
			Content: message.Content,
		})
	}

	wireRequest := goopenai.ChatCompletionRequest{
		Model:    request.Model,
		Messages: messages,
	}

	if request.GenerationConfig != nil {
		wireRequest.MaxTokens = request.GenerationConfig.MaxTokens
		wireRequest.Temperature = request.GenerationConfig.Temperature
		wireRequest.TopP = request.GenerationConfig.TopP
	}

	if request.ResponseFormat != nil && request.ResponseFormat.Type == "json_object" {
		wireRequest.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	return wireRequest
}

// responseToGeneric maps a go-openai response back to the provider-agnostic type.
func responseToGeneric(response goopenai.ChatCompletionResponse) *ai.ChatResponse {
	choice := response.Choices[0]

	return &ai.ChatResponse{
		Id:           response.ID,
		Model:        response.Model,
		Created:      response.Created,
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: &ai.Usage{
			PromptTokens:     response.Usage.PromptTokens,
			CompletionTokens: response.Usage.CompletionTokens,
			TotalTokens:      response.Usage.TotalTokens,
		},
	}
}

// coerceRole maps a generic role onto a role accepted by the chat API.
// Unknown roles degrade to "user" rather than failing the request.
func coerceRole(role ai.MessageRole) string {
	switch role {
	case ai.RoleSystem:
		return goopenai.ChatMessageRoleSystem
	case ai.RoleAssistant:
		return goopenai.ChatMessageRoleAssistant
	case ai.RoleUser:
		return goopenai.ChatMessageRoleUser
	default:
		return goopenai.ChatMessageRoleUser
	}
}

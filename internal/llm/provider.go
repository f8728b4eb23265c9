package llm

import (
	"context"
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// Client is the minimal chat interface needed by core logic. It mirrors the
// CreateChatCompletion method so any OpenAI-compatible backend can be
// adapted.
type Client interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Embedder is the minimal embedding interface used by the similarity
// classifier.
type Embedder interface {
	CreateEmbeddings(ctx context.Context, request openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Transcriber converts an audio file into text via an OpenAI-compatible
// transcription endpoint.
type Transcriber interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// OpenAIProvider adapts *openai.Client to the interfaces above.
type OpenAIProvider struct {
	Inner *openai.Client
}

func (p *OpenAIProvider) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return p.Inner.CreateChatCompletion(ctx, request)
}

func (p *OpenAIProvider) CreateEmbeddings(ctx context.Context, request openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	return p.Inner.CreateEmbeddings(ctx, request)
}

func (p *OpenAIProvider) CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error) {
	return p.Inner.CreateTranscription(ctx, request)
}

// IsQuotaError reports whether err is a rate-limit or quota-exhaustion
// response from the backend. Quota errors are never retried; callers map
// them to their stage's degraded default instead.
func IsQuotaError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}

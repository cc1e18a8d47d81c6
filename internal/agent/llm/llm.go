// Package llm wraps the chat, transcription and image generation services.
package llm

import (
	"context"

	"github.com/feichai0017/elearning-factory/internal/models"
)

// ImageAttachment is an image sent alongside a chat query.
type ImageAttachment struct {
	MIMEType string
	Data     []byte
}

// ChatRequest is one chat turn. History is sent before Query; SystemPrompt,
// when set, comes first.
type ChatRequest struct {
	History      []models.ConversationTurn
	SystemPrompt string
	Query        string
	Images       []ImageAttachment
	MaxTokens    int
	Temperature  float32
	// Model overrides the client's default chat model.
	Model string
	// OnDelta switches the call to streaming and receives each content delta.
	OnDelta func(delta string)
}

type ChatResponse struct {
	Content      string
	Usage        models.TokenUsage
	FinishReason string
}

type ChatClient interface {
	GenerateChatResponse(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

type ImageRequest struct {
	Prompt  string
	Quality string
	Style   string
	Size    string
}

type GeneratedImage struct {
	Data          []byte
	MIMEType      string
	RevisedPrompt string
}

type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageRequest) (*GeneratedImage, error)
}

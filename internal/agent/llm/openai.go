package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/feichai0017/elearning-factory/config"
	"github.com/feichai0017/elearning-factory/internal/models"
	"github.com/feichai0017/elearning-factory/pkg/logger"
)

// OpenAIClient talks to OpenAI or an Azure OpenAI resource. It implements
// ChatClient, Transcriber and ImageGenerator.
type OpenAIClient struct {
	client *openai.Client
	cfg    *config.OpenAIConfig
	logger logger.Logger
}

// NewOpenAIClient returns models.ErrNotConfigured when the API key (or, for
// Azure, the endpoint) is missing.
func NewOpenAIClient(cfg *config.OpenAIConfig, log logger.Logger) (*OpenAIClient, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("openai: %w", models.ErrNotConfigured)
	}

	var clientCfg openai.ClientConfig
	if cfg.Azure {
		clientCfg = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		if cfg.APIVersion != "" {
			clientCfg.APIVersion = cfg.APIVersion
		}
		// model fields already hold deployment names
		clientCfg.AzureModelMapperFunc = func(model string) string { return model }
	} else {
		clientCfg = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientCfg.BaseURL = cfg.BaseURL
		}
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: log.Named("openai"),
	}, nil
}

func (c *OpenAIClient) GenerateChatResponse(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.ChatModel
		if len(req.Images) > 0 {
			model = c.cfg.VisionModel
		}
	}

	messages, err := buildMessages(req)
	if err != nil {
		return nil, err
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	start := time.Now()
	var resp *ChatResponse
	if req.OnDelta != nil {
		resp, err = c.stream(ctx, chatReq, req.OnDelta)
	} else {
		resp, err = c.complete(ctx, chatReq)
	}
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Chat completion finished",
		logger.String("model", model),
		logger.Int("history", len(req.History)),
		logger.Int("images", len(req.Images)),
		logger.Int("totalTokens", resp.Usage.TotalTokens),
		logger.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

func (c *OpenAIClient) complete(ctx context.Context, chatReq openai.ChatCompletionRequest) (*ChatResponse, error) {
	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no response from chat model")
	}
	return &ChatResponse{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		Usage:        toUsage(resp.Usage),
	}, nil
}

func (c *OpenAIClient) stream(ctx context.Context, chatReq openai.ChatCompletionRequest, onDelta func(string)) (*ChatResponse, error) {
	chatReq.Stream = true
	if !c.cfg.Azure {
		chatReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("failed to open chat stream: %w", err)
	}
	defer stream.Close()

	var (
		sb     strings.Builder
		out    ChatResponse
		chunks int
	)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("chat stream interrupted: %w", err)
		}
		if chunk.Usage != nil {
			out.Usage = toUsage(*chunk.Usage)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		chunks++
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			sb.WriteString(delta)
			onDelta(delta)
		}
		if fr := chunk.Choices[0].FinishReason; fr != "" {
			out.FinishReason = string(fr)
		}
	}
	if chunks == 0 {
		return nil, errors.New("no response from chat model")
	}

	out.Content = sb.String()
	return &out, nil
}

func buildMessages(req ChatRequest) ([]openai.ChatCompletionMessage, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, turn := range req.History {
		role := openai.ChatMessageRoleUser
		if turn.Role == models.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}

	if len(req.Images) == 0 {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.Query,
		})
		return messages, nil
	}

	parts := []openai.ChatMessagePart{{
		Type: openai.ChatMessagePartTypeText,
		Text: req.Query,
	}}
	for _, img := range req.Images {
		mt := imageMIME(img.MIMEType)
		if mt == "" {
			return nil, fmt.Errorf("unsupported image type %q", img.MIMEType)
		}
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    fmt.Sprintf("data:%s;base64,%s", mt, base64.StdEncoding.EncodeToString(img.Data)),
				Detail: openai.ImageURLDetailHigh,
			},
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:         openai.ChatMessageRoleUser,
		MultiContent: parts,
	})
	return messages, nil
}

// imageMIME maps a declared image type to one the vision endpoint accepts.
func imageMIME(mt string) string {
	switch models.NormalizeMIME(mt) {
	case "image/jpeg", "image/jpg":
		return "image/jpeg"
	case "image/png":
		return "image/png"
	case "image/gif":
		return "image/gif"
	case "image/webp":
		return "image/webp"
	default:
		return ""
	}
}

func toUsage(u openai.Usage) models.TokenUsage {
	return models.TokenUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}

// Transcribe sends the audio file at path to the whisper model.
func (c *OpenAIClient) Transcribe(ctx context.Context, path string) (string, error) {
	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.cfg.WhisperModel,
		FilePath: path,
	})
	if err != nil {
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}
	return resp.Text, nil
}

// GenerateImage asks the image model for one base64 PNG.
func (c *OpenAIClient) GenerateImage(ctx context.Context, req ImageRequest) (*GeneratedImage, error) {
	imgReq := openai.ImageRequest{
		Prompt:         req.Prompt,
		Model:          c.cfg.ImageModel,
		N:              1,
		Size:           valueOr(req.Size, openai.CreateImageSize1024x1024),
		Quality:        valueOr(req.Quality, openai.CreateImageQualityStandard),
		Style:          valueOr(req.Style, openai.CreateImageStyleVivid),
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	}

	resp, err := c.client.CreateImage(ctx, imgReq)
	if err != nil {
		return nil, fmt.Errorf("failed to generate image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, errors.New("image model returned no image")
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return &GeneratedImage{
		Data:          data,
		MIMEType:      "image/png",
		RevisedPrompt: resp.Data[0].RevisedPrompt,
	}, nil
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// Package sketch generates images and refines them through a critic loop:
// each round the critic reviews the latest image and either accepts it or
// proposes a better prompt.
package sketch

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/feichai0017/elearning-factory/internal/agent/image"
	"github.com/feichai0017/elearning-factory/internal/agent/llm"
	"github.com/feichai0017/elearning-factory/internal/models"
	"github.com/feichai0017/elearning-factory/internal/prompts"
	"github.com/feichai0017/elearning-factory/internal/service/pipeline"
	"github.com/feichai0017/elearning-factory/pkg/logger"
)

const (
	DefaultMaxRounds = 3
	ThumbnailSize    = 300
)

var (
	ErrEmptyPrompt   = errors.New("prompt is required")
	ErrEmptyCriteria = errors.New("evaluation criteria are required")
)

type Request struct {
	Prompt    string `json:"prompt"`
	Criteria  string `json:"criteria"`
	Quality   string `json:"quality,omitempty"`
	Style     string `json:"style,omitempty"`
	Size      string `json:"size,omitempty"`
	MaxRounds int    `json:"maxRounds,omitempty"`
}

type Image struct {
	Round         int    `json:"round"`
	Prompt        string `json:"prompt"`
	RevisedPrompt string `json:"revisedPrompt,omitempty"`
	MIMEType      string `json:"mimeType"`
	Data          []byte `json:"data"`
	Thumbnail     []byte `json:"thumbnail,omitempty"`
}

type Message struct {
	Round   int    `json:"round"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Result struct {
	// Images are ordered newest first.
	Images     []Image       `json:"images"`
	Transcript []Message     `json:"transcript"`
	Rounds     int           `json:"rounds"`
	Terminated bool          `json:"terminated"`
	Duration   time.Duration `json:"duration"`
}

type Config struct {
	MaxRounds   int
	CriticModel string
}

type Service struct {
	images llm.ImageGenerator
	critic llm.ChatClient
	cfg    Config
	logger logger.Logger
}

func NewService(images llm.ImageGenerator, critic llm.ChatClient, cfg Config, log logger.Logger) *Service {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	return &Service{
		images: images,
		critic: critic,
		cfg:    cfg,
		logger: log.Named("sketch"),
	}
}

// Generate runs the loop. A failure in the first round is returned; later
// failures end the loop with the images produced so far.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	if s.images == nil || s.critic == nil {
		return nil, fmt.Errorf("image generation: %w", models.ErrNotConfigured)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	if strings.TrimSpace(req.Criteria) == "" {
		return nil, ErrEmptyCriteria
	}

	system, err := prompts.CriticSystemPrompt(req.Criteria)
	if err != nil {
		return nil, err
	}
	rounds := req.MaxRounds
	if rounds <= 0 || rounds > s.cfg.MaxRounds {
		rounds = s.cfg.MaxRounds
	}

	start := time.Now()
	log := logger.FromContext(ctx, s.logger)
	res := &Result{}
	prompt := strings.TrimSpace(req.Prompt)

	for round := 1; round <= rounds; round++ {
		img, err := s.images.GenerateImage(ctx, llm.ImageRequest{
			Prompt:  prompt,
			Quality: req.Quality,
			Style:   req.Style,
			Size:    req.Size,
		})
		if err != nil {
			if round == 1 {
				return nil, fmt.Errorf("%w: %w", pipeline.ErrGeneration, err)
			}
			log.Warn("Image generation failed, keeping earlier rounds", logger.Int("round", round), logger.Error(err))
			break
		}
		res.Rounds = round

		thumb, err := image.Thumbnail(img.Data, ThumbnailSize, ThumbnailSize)
		if err != nil {
			log.Warn("Thumbnail failed", logger.Int("round", round), logger.Error(err))
		}
		res.Images = append(res.Images, Image{
			Round:         round,
			Prompt:        prompt,
			RevisedPrompt: img.RevisedPrompt,
			MIMEType:      img.MIMEType,
			Data:          img.Data,
			Thumbnail:     thumb,
		})
		res.Transcript = append(res.Transcript, Message{Round: round, Role: "generator", Content: prompt})

		review, err := s.critic.GenerateChatResponse(ctx, llm.ChatRequest{
			SystemPrompt: system,
			Query:        "Evaluate this image. It was generated from the prompt: " + prompt,
			Images:       []llm.ImageAttachment{{MIMEType: img.MIMEType, Data: img.Data}},
			Model:        s.cfg.CriticModel,
		})
		if err != nil {
			log.Warn("Critic failed, keeping current image", logger.Int("round", round), logger.Error(err))
			break
		}
		res.Transcript = append(res.Transcript, Message{Round: round, Role: "critic", Content: review.Content})

		if Terminated(review.Content) {
			res.Terminated = true
			break
		}
		prompt = NextPrompt(review.Content)
	}

	// newest first
	for i, j := 0, len(res.Images)-1; i < j; i, j = i+1, j-1 {
		res.Images[i], res.Images[j] = res.Images[j], res.Images[i]
	}
	res.Duration = time.Since(start)

	log.Info("Sketch finished",
		logger.Int("rounds", res.Rounds),
		logger.Bool("terminated", res.Terminated),
		logger.Duration("duration", res.Duration),
	)
	return res, nil
}

// Terminated reports whether a critic reply accepts the image.
func Terminated(reply string) bool {
	return strings.HasSuffix(strings.TrimSpace(reply), prompts.TerminateToken)
}

var promptSection = regexp.MustCompile(`(?s)\bPROMPT\b[*_ ]*:?[*_ ]*(.+)$`)

// NextPrompt extracts the revised prompt from a critic reply, falling back to
// the whole reply.
func NextPrompt(reply string) string {
	reply = strings.TrimSpace(reply)
	m := promptSection.FindStringSubmatch(reply)
	if m == nil {
		return reply
	}
	next := strings.TrimSpace(strings.TrimLeft(m[1], ":*_ "))
	next = strings.Trim(next, `"“”`)
	if next == "" {
		return reply
	}
	return next
}

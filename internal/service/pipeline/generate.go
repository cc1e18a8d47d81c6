package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/feichai0017/elearning-factory/internal/agent/llm"
	"github.com/feichai0017/elearning-factory/internal/models"
	"github.com/feichai0017/elearning-factory/internal/prompts"
	"github.com/feichai0017/elearning-factory/pkg/logger"
)

type SummarizeRequest struct {
	Operation      prompts.Operation
	Instruction    string
	Topic          string
	MinTokens      int
	MaxTokens      int
	DocumentType   string
	FocusAreas     string
	TargetLanguage string
	Template       string
	// OnDelta streams the reply as it is generated.
	OnDelta func(delta string)
}

// Summarize issues one generation over agg. On success the session gains the
// query and the reply as two new turns; on failure it is left untouched.
func (e *Extractor) Summarize(ctx context.Context, sess *models.Session, agg *models.AggregateContext, req SummarizeRequest) (*models.GeneratedText, error) {
	if sess == nil {
		return nil, errors.New("session is required")
	}
	if agg.IsEmpty() {
		return nil, ErrEmptyContext
	}

	op := req.Operation
	if op == "" {
		op = prompts.OpGenerateDocumentation
	}
	minTokens := req.MinTokens
	if minTokens <= 0 {
		minTokens = e.cfg.DefaultMinTokens
	}

	system, query, err := prompts.Build(op, prompts.Data{
		Instruction:    req.Instruction,
		Context:        agg.Text,
		Topic:          req.Topic,
		MinTokens:      minTokens,
		DocumentType:   req.DocumentType,
		FocusAreas:     req.FocusAreas,
		TargetLanguage: req.TargetLanguage,
		Template:       req.Template,
	})
	if err != nil {
		return nil, err
	}

	out, err := e.converse(ctx, sess, system, query, req.MaxTokens, req.OnDelta)
	if err != nil {
		return nil, err
	}
	sess.Operation = string(op)
	out.ContextTokens = agg.TokenCount
	return out, nil
}

// Refine sends a feedback turn on top of the session history.
func (e *Extractor) Refine(ctx context.Context, sess *models.Session, feedback string, onDelta func(string)) (*models.GeneratedText, error) {
	if sess == nil {
		return nil, errors.New("session is required")
	}
	if strings.TrimSpace(feedback) == "" {
		return nil, ErrEmptyFeedback
	}
	if len(sess.History) == 0 {
		return nil, ErrNoConversation
	}
	return e.converse(ctx, sess, prompts.SystemPrompt(prompts.Operation(sess.Operation)), feedback, 0, onDelta)
}

func (e *Extractor) converse(ctx context.Context, sess *models.Session, system, query string, maxTokens int, onDelta func(string)) (*models.GeneratedText, error) {
	if e.deps.Chat == nil {
		return nil, fmt.Errorf("chat: %w", models.ErrNotConfigured)
	}
	if maxTokens <= 0 {
		maxTokens = e.cfg.DefaultMaxTokens
	}
	log := logger.FromContext(ctx, e.logger)

	resp, err := e.deps.Chat.GenerateChatResponse(ctx, llm.ChatRequest{
		History:      sess.History,
		SystemPrompt: system,
		Query:        query,
		MaxTokens:    maxTokens,
		OnDelta:      onDelta,
	})
	if err != nil {
		log.Error("Generation failed", logger.Int("historyTurns", len(sess.History)), logger.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		log.Error("Generation returned empty content", logger.String("finishReason", resp.FinishReason))
		return nil, fmt.Errorf("%w: empty response", ErrGeneration)
	}

	sess.AppendExchange(query, resp.Content, e.now())
	sess.Runs++

	log.Info("Generation finished",
		logger.Int("historyTurns", len(sess.History)),
		logger.Int("promptTokens", resp.Usage.PromptTokens),
		logger.Int("completionTokens", resp.Usage.CompletionTokens),
	)
	return &models.GeneratedText{Content: resp.Content, Usage: resp.Usage}, nil
}

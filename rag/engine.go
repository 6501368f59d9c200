// Package rag answers questions by condensing follow-ups, retrieving
// passages and conditioning an LLM on them.
//
// Information Hiding:
//   - Prompt rendering and the condense fallback policy
//   - Token usage accumulation across the condense and answer calls
//   - Whether the engine could be constructed at all (see Build)
package rag

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/GianmarcoBramucci/cri/index"
	"github.com/GianmarcoBramucci/cri/llm"
	"github.com/GianmarcoBramucci/cri/memory"
	"github.com/GianmarcoBramucci/cri/prompt"
)

var (
	// ErrEmptyQuestion is returned for blank questions.
	ErrEmptyQuestion = errors.New("empty question")
	// ErrEmptyCompletion is returned when the model produces no text.
	ErrEmptyCompletion = errors.New("empty completion")
	// ErrEngineUnavailable is returned by an engine that failed to build.
	ErrEngineUnavailable = errors.New("rag engine unavailable")
)

// Retriever is any passage source the engine can search.
type Retriever interface {
	Type() string
	Search(ctx context.Context, query string, topK int) ([]index.Hit, error)
}

var _ Retriever = (*index.Index)(nil)

// Answer is the outcome of one question.
type Answer struct {
	Text               string
	StandaloneQuestion string
	Sources            []index.Hit
	Condensed          bool
	Usage              llm.TokenUsage
	Duration           time.Duration
}

// Answerer is implemented by both a ready Engine and Unavailable.
type Answerer interface {
	Answer(ctx context.Context, question string, history []memory.Exchange) (Answer, error)
	Ready() bool
}

// Config tunes an Engine.
type Config struct {
	TopK    int
	Contact prompt.Contact
}

// Engine is a ready retrieval/generation pipeline.
type Engine struct {
	client    *llm.Client
	retriever Retriever
	cfg       Config
	logger    *zap.Logger
}

var _ Answerer = (*Engine)(nil)

// NewEngine wires a client and a retriever.
func NewEngine(client *llm.Client, retriever Retriever, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = index.DefaultOptions().TopK
	}
	return &Engine{
		client:    client,
		retriever: retriever,
		cfg:       cfg,
		logger:    logger,
	}
}

// Ready always reports true for a constructed engine.
func (e *Engine) Ready() bool { return true }

// Answer runs one question against history, oldest exchange first.
func (e *Engine) Answer(ctx context.Context, question string, history []memory.Exchange) (Answer, error) {
	start := time.Now()
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}

	var out Answer
	out.StandaloneQuestion = question
	if len(history) > 0 {
		standalone, usage, ok := e.condense(ctx, question, history)
		out.Usage.Add(usage)
		if ok {
			out.StandaloneQuestion = standalone
			out.Condensed = true
		}
	}

	hits, err := e.retriever.Search(ctx, out.StandaloneQuestion, e.cfg.TopK)
	if err != nil {
		return Answer{}, errors.Wrapf(err, "retrieve from %s", e.retriever.Type())
	}
	out.Sources = hits

	resp, err := e.client.Chat(ctx, []llm.ChatMessage{
		llm.SystemMessage(prompt.System),
		llm.UserMessage(prompt.Answer(history, question, hits, e.cfg.Contact)),
	})
	if err != nil {
		return Answer{}, errors.Wrap(err, "generate answer")
	}
	out.Usage.Add(resp.Usage)
	out.Text = strings.TrimSpace(resp.Content)
	if out.Text == "" {
		return Answer{}, ErrEmptyCompletion
	}

	out.Duration = time.Since(start)
	e.logger.Debug("question answered",
		zap.Bool("condensed", out.Condensed),
		zap.Int("sources", len(hits)),
		zap.Duration("elapsed", out.Duration))
	return out, nil
}

// condense rewrites a follow-up into a standalone question. ok is false
// when the original question should be used instead.
func (e *Engine) condense(ctx context.Context, question string, history []memory.Exchange) (string, *llm.TokenUsage, bool) {
	resp, err := e.client.Complete(ctx, "", prompt.CondenseQuestion(history, question))
	if err != nil {
		e.logger.Warn("condense failed, using original question", zap.Error(err))
		return "", nil, false
	}
	standalone := cleanCondensed(resp.Content)
	if standalone == "" {
		return "", resp.Usage, false
	}
	return standalone, resp.Usage, true
}

// cleanCondensed strips surrounding whitespace, quotes and a leading label
// the model sometimes echoes back.
func cleanCondensed(s string) string {
	s = strings.TrimSpace(s)
	for _, label := range []string{"Domanda riformulata:", "Domanda:"} {
		if rest, ok := strings.CutPrefix(s, label); ok {
			s = strings.TrimSpace(rest)
		}
	}
	return strings.TrimSpace(strings.Trim(s, "\"'«»"))
}

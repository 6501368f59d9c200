package rag

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/GianmarcoBramucci/cri/config"
	"github.com/GianmarcoBramucci/cri/llm"
	"github.com/GianmarcoBramucci/cri/memory"
	"github.com/GianmarcoBramucci/cri/prompt"
)

// Unavailable stands in for an engine that could not be built. Every
// Answer call fails with ErrEngineUnavailable wrapping Err.
type Unavailable struct {
	Err error
}

var _ Answerer = Unavailable{}

// Ready reports false.
func (u Unavailable) Ready() bool { return false }

// Answer always fails.
func (u Unavailable) Answer(context.Context, string, []memory.Exchange) (Answer, error) {
	if u.Err == nil {
		return Answer{}, ErrEngineUnavailable
	}
	return Answer{}, &unavailableError{cause: u.Err}
}

// unavailableError matches ErrEngineUnavailable and unwraps to the
// construction error.
type unavailableError struct {
	cause error
}

func (e *unavailableError) Error() string {
	return ErrEngineUnavailable.Error() + ": " + e.cause.Error()
}

func (e *unavailableError) Unwrap() error { return e.cause }

func (e *unavailableError) Is(target error) bool { return target == ErrEngineUnavailable }

// Build constructs the provider named by settings and returns a ready
// Engine, or Unavailable carrying the construction error. The server keeps
// running either way.
func Build(settings config.Settings, retriever Retriever, logger *zap.Logger) Answerer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retriever == nil {
		return Unavailable{Err: errors.New("no retriever configured")}
	}

	provider, err := newProvider(settings.LLM)
	if err != nil {
		logger.Error("rag engine unavailable", zap.String("provider", settings.LLM.Provider), zap.Error(err))
		return Unavailable{Err: err}
	}

	client := llm.NewClient(provider, settings.LLM.Timeout, logger.Named("llm"))
	logger.Info("rag engine ready",
		zap.String("provider", provider.Name()),
		zap.String("model", provider.Model()),
		zap.String("retriever", retriever.Type()))
	return NewEngine(client, retriever, Config{
		TopK: settings.Retrieval.TopK,
		Contact: prompt.Contact{
			Website: settings.Contact.Website,
			Email:   settings.Contact.Email,
			Phone:   settings.Contact.Phone,
		},
	}, logger)
}

func newProvider(cfg config.LLMConfig) (llm.Provider, error) {
	pt, err := llm.ParseProviderType(cfg.Provider)
	if err != nil {
		return nil, err
	}
	key, err := config.APIKeyFor(cfg.Provider)
	if err != nil {
		return nil, err
	}
	provider, err := llm.NewProviderBuilder(pt).
		Model(cfg.Model).
		BaseURL(cfg.BaseURL).
		MaxTokens(cfg.MaxTokens).
		Temperature(float32(cfg.Temperature)).
		APIKey(key)
	if err != nil {
		return nil, errors.Wrap(err, "build provider")
	}
	return provider, nil
}

// Client - thin wrapper adding timeouts and logging around a Provider.

package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Client wraps a Provider with a per-call timeout and structured logging.
type Client struct {
	provider Provider
	timeout  time.Duration
	logger   *zap.Logger
}

// NewClient creates a client. A zero timeout means calls are bounded only
// by the caller's context.
func NewClient(provider Provider, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		provider: provider,
		timeout:  timeout,
		logger:   logger.With(zap.String("provider", provider.Name()), zap.String("model", provider.Model())),
	}
}

// Complete sends a system prompt and a single user message.
func (c *Client) Complete(ctx context.Context, system, user string) (Response, error) {
	messages := make([]ChatMessage, 0, 2)
	if system != "" {
		messages = append(messages, SystemMessage(system))
	}
	messages = append(messages, UserMessage(user))
	return c.Chat(ctx, messages)
}

// Chat sends a chat completion request.
func (c *Client) Chat(ctx context.Context, messages []ChatMessage) (Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.provider.Chat(ctx, messages)
	if err != nil {
		c.logger.Warn("chat completion failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return Response{}, err
	}

	fields := []zap.Field{zap.Duration("elapsed", time.Since(start))}
	if resp.Usage != nil {
		fields = append(fields, zap.Uint32("total_tokens", resp.Usage.TotalTokens))
	}
	c.logger.Debug("chat completion", fields...)
	return resp, nil
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider {
	return c.provider
}

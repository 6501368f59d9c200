package rag

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GianmarcoBramucci/cri/config"
	"github.com/GianmarcoBramucci/cri/index"
	"github.com/GianmarcoBramucci/cri/llm"
	"github.com/GianmarcoBramucci/cri/memory"
)

// scriptedProvider replies with queued responses and records every request.
type scriptedProvider struct {
	mu       sync.Mutex
	replies  []llm.Response
	errs     []error
	requests [][]llm.ChatMessage
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "test" }

func (p *scriptedProvider) Chat(_ context.Context, messages []llm.ChatMessage) (llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, messages)
	n := len(p.requests) - 1
	if n < len(p.errs) && p.errs[n] != nil {
		return llm.Response{}, p.errs[n]
	}
	if n < len(p.replies) {
		return p.replies[n], nil
	}
	return llm.Response{Content: "ok"}, nil
}

func (p *scriptedProvider) StreamChat(ctx context.Context, messages []llm.ChatMessage, chunks chan<- string) (*llm.TokenUsage, error) {
	defer close(chunks)
	resp, err := p.Chat(ctx, messages)
	if err != nil {
		return nil, err
	}
	chunks <- resp.Content
	return resp.Usage, nil
}

type fakeRetriever struct {
	hits    []index.Hit
	err     error
	queries []string
}

func (r *fakeRetriever) Type() string { return "fake" }

func (r *fakeRetriever) Search(_ context.Context, query string, _ int) ([]index.Hit, error) {
	r.queries = append(r.queries, query)
	return r.hits, r.err
}

func newTestEngine(p *scriptedProvider, r *fakeRetriever) *Engine {
	return NewEngine(llm.NewClient(p, 0, nil), r, Config{TopK: 3}, nil)
}

func lastUserMessage(msgs []llm.ChatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == llm.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

func TestAnswerRejectsEmptyQuestion(t *testing.T) {
	e := newTestEngine(&scriptedProvider{}, &fakeRetriever{})
	_, err := e.Answer(context.Background(), "  \n", nil)
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestAnswerWithoutHistorySkipsCondense(t *testing.T) {
	p := &scriptedProvider{replies: []llm.Response{{
		Content: " La CRI è stata fondata nel 1864. ",
		Usage:   &llm.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}}}
	r := &fakeRetriever{hits: []index.Hit{{DocumentID: "storia", Text: "fondata il 15 giugno 1864"}}}

	ans, err := newTestEngine(p, r).Answer(context.Background(), "Quando è nata la CRI?", nil)
	require.NoError(t, err)

	assert.Equal(t, "La CRI è stata fondata nel 1864.", ans.Text)
	assert.False(t, ans.Condensed)
	assert.Equal(t, "Quando è nata la CRI?", ans.StandaloneQuestion)
	assert.Equal(t, []string{"Quando è nata la CRI?"}, r.queries)
	assert.Len(t, ans.Sources, 1)
	assert.Equal(t, uint32(15), ans.Usage.TotalTokens)

	require.Len(t, p.requests, 1)
	assert.Equal(t, llm.RoleSystem, p.requests[0][0].Role)
	assert.Contains(t, lastUserMessage(p.requests[0]), "fondata il 15 giugno 1864")
}

func TestAnswerCondensesFollowUp(t *testing.T) {
	p := &scriptedProvider{replies: []llm.Response{
		{Content: "Domanda riformulata: «Come posso diventare volontario della CRI?»", Usage: &llm.TokenUsage{TotalTokens: 4}},
		{Content: "Iscriviti al corso base.", Usage: &llm.TokenUsage{TotalTokens: 6}},
	}}
	r := &fakeRetriever{hits: []index.Hit{{DocumentID: "volontari", Text: "corso base"}}}
	history := []memory.Exchange{{Question: "Parlami della CRI", Answer: "È un'associazione."}}

	ans, err := newTestEngine(p, r).Answer(context.Background(), "e come divento volontario?", history)
	require.NoError(t, err)

	assert.True(t, ans.Condensed)
	assert.Equal(t, "Come posso diventare volontario della CRI?", ans.StandaloneQuestion)
	assert.Equal(t, []string{"Come posso diventare volontario della CRI?"}, r.queries)
	assert.Equal(t, uint32(10), ans.Usage.TotalTokens)

	require.Len(t, p.requests, 2)
	condensePrompt := lastUserMessage(p.requests[0])
	assert.Contains(t, condensePrompt, "Utente: Parlami della CRI")
	assert.Contains(t, condensePrompt, "e come divento volontario?")
	assert.Contains(t, lastUserMessage(p.requests[1]), "Assistente: È un'associazione.")
}

func TestAnswerFallsBackWhenCondenseFails(t *testing.T) {
	p := &scriptedProvider{errs: []error{errors.New("boom")}, replies: []llm.Response{{}, {Content: "risposta"}}}
	r := &fakeRetriever{}
	history := []memory.Exchange{{Question: "q", Answer: "a"}}

	ans, err := newTestEngine(p, r).Answer(context.Background(), "e poi?", history)
	require.NoError(t, err)
	assert.False(t, ans.Condensed)
	assert.Equal(t, []string{"e poi?"}, r.queries)
	assert.Equal(t, "risposta", ans.Text)
}

func TestAnswerFallsBackOnBlankCondense(t *testing.T) {
	p := &scriptedProvider{replies: []llm.Response{{Content: "  \"\" "}, {Content: "risposta"}}}
	r := &fakeRetriever{}

	ans, err := newTestEngine(p, r).Answer(context.Background(), "e poi?", []memory.Exchange{{Question: "q", Answer: "a"}})
	require.NoError(t, err)
	assert.False(t, ans.Condensed)
	assert.Equal(t, "e poi?", ans.StandaloneQuestion)
}

func TestAnswerUsesNoContextPromptWithoutHits(t *testing.T) {
	p := &scriptedProvider{}
	e := NewEngine(llm.NewClient(p, 0, nil), &fakeRetriever{}, Config{}, nil)
	e.cfg.Contact.Email = "info@cri.it"

	_, err := e.Answer(context.Background(), "Qual è il numero di emergenza?", nil)
	require.NoError(t, err)
	msg := lastUserMessage(p.requests[0])
	assert.Contains(t, msg, "Informazione non disponibile")
	assert.Contains(t, msg, "info@cri.it")
}

func TestAnswerPropagatesFailures(t *testing.T) {
	retrieveErr := errors.New("index closed")
	_, err := newTestEngine(&scriptedProvider{}, &fakeRetriever{err: retrieveErr}).
		Answer(context.Background(), "domanda", nil)
	assert.ErrorIs(t, err, retrieveErr)

	genErr := errors.New("rate limited")
	_, err = newTestEngine(&scriptedProvider{errs: []error{genErr}}, &fakeRetriever{}).
		Answer(context.Background(), "domanda", nil)
	assert.ErrorIs(t, err, genErr)

	_, err = newTestEngine(&scriptedProvider{replies: []llm.Response{{Content: "   "}}}, &fakeRetriever{}).
		Answer(context.Background(), "domanda", nil)
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestUnavailable(t *testing.T) {
	cause := errors.New("OPENAI_API_KEY environment variable not set")
	u := Unavailable{Err: cause}
	assert.False(t, u.Ready())

	_, err := u.Answer(context.Background(), "domanda", nil)
	assert.ErrorIs(t, err, ErrEngineUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.True(t, strings.Contains(err.Error(), "OPENAI_API_KEY"))

	_, err = Unavailable{}.Answer(context.Background(), "domanda", nil)
	assert.ErrorIs(t, err, ErrEngineUnavailable)
}

func TestBuild(t *testing.T) {
	settings := config.Defaults()
	settings.LLM.Provider = "openai"

	t.Setenv("OPENAI_API_KEY", "")
	a := Build(settings, &fakeRetriever{}, nil)
	assert.False(t, a.Ready())
	_, err := a.Answer(context.Background(), "Chi siete?", nil)
	assert.ErrorIs(t, err, ErrEngineUnavailable)
	assert.ErrorContains(t, err, "OPENAI_API_KEY")

	assert.False(t, Build(settings, nil, nil).Ready())

	t.Setenv("OPENAI_API_KEY", "sk-test")
	a = Build(settings, &fakeRetriever{}, nil)
	require.True(t, a.Ready())
	assert.IsType(t, &Engine{}, a)
}

func TestBuildReadsKeyForConfiguredProvider(t *testing.T) {
	settings := config.Defaults()
	settings.LLM.Provider = "anthropic"
	settings.LLM.Model = "claude-sonnet-4-20250514"

	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("ANTHROPIC_API_KEY", "")
	assert.False(t, Build(settings, &fakeRetriever{}, nil).Ready())

	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	assert.True(t, Build(settings, &fakeRetriever{}, nil).Ready())
}

func TestCleanCondensed(t *testing.T) {
	tests := map[string]string{
		"  Come?  ":               "Come?",
		"\"Come?\"":               "Come?",
		"Domanda: Dove si trova?": "Dove si trova?",
		"«Chi è il presidente?»":  "Chi è il presidente?",
		"":                        "",
	}
	for in, want := range tests {
		assert.Equal(t, want, cleanCondensed(in), "input %q", in)
	}
}

// Command execution for CLI commands.
//
// Information Hiding:
// - Settings, logger and index wiring hidden
// - Server lifecycle and graceful shutdown hidden
// - Output formatting hidden

package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/GianmarcoBramucci/cri/config"
	"github.com/GianmarcoBramucci/cri/httpapi"
	"github.com/GianmarcoBramucci/cri/index"
	"github.com/GianmarcoBramucci/cri/logging"
	"github.com/GianmarcoBramucci/cri/memory"
	"github.com/GianmarcoBramucci/cri/metrics"
	"github.com/GianmarcoBramucci/cri/rag"
	"github.com/GianmarcoBramucci/cri/session"
)

// Options holds CLI execution options.
type Options struct {
	ConfigPath string
	Provider   string
	Verbose    bool
}

// env bundles what every command needs.
type env struct {
	settings config.Settings
	logger   *zap.Logger
}

func setup(opts Options) (*env, error) {
	settings, err := config.Load(opts.ConfigPath, opts.Provider)
	if err != nil {
		return nil, err
	}
	level := settings.Log.Level
	if opts.Verbose {
		level = "debug"
	}
	logger, err := logging.New(level, settings.Log.Format)
	if err != nil {
		return nil, err
	}
	return &env{settings: settings, logger: logger}, nil
}

func (e *env) openIndex(ctx context.Context) (*index.Index, error) {
	store, err := index.OpenSqlite(e.settings.Index.DBPath)
	if err != nil {
		return nil, err
	}
	idx, err := index.Open(ctx, store, index.Options{
		ChunkSize:    e.settings.Index.ChunkSize,
		ChunkOverlap: e.settings.Index.ChunkOverlap,
		TopK:         e.settings.Retrieval.TopK,
		MinScore:     e.settings.Retrieval.MinScore,
	}, e.logger.Named("index"))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return idx, nil
}

// Serve runs the HTTP server until ctx is cancelled or the process
// receives SIGINT or SIGTERM.
func Serve(ctx context.Context, opts Options) error {
	e, err := setup(opts)
	if err != nil {
		return err
	}
	defer func() { _ = e.logger.Sync() }()

	idx, err := e.openIndex(ctx)
	if err != nil {
		return err
	}
	defer idx.Close()

	sessions := session.NewStore(e.settings.Memory.WindowSize, e.logger.Named("session"))
	engine := rag.Build(e.settings, idx, e.logger.Named("rag"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg, sessions.Len)
	if err != nil {
		return err
	}

	if !opts.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	api := httpapi.New(httpapi.Deps{
		Engine:   engine,
		Sessions: sessions,
		Index:    idx,
		Metrics:  m,
		Gatherer: reg,
		Contact:  e.settings.Contact,
		Logger:   e.logger.Named("httpapi"),
	})
	srv := &http.Server{
		Addr:              e.settings.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		e.logger.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.Bool("engine_ready", engine.Ready()),
			zap.Int("documents", idx.Stats().Documents))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	case <-ctx.Done():
	}

	e.logger.Info("shutting down", zap.Duration("timeout", e.settings.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), e.settings.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	return nil
}

// Search prints the passages the index returns for query.
func Search(ctx context.Context, query string, topK int, out io.Writer, opts Options) error {
	e, err := setup(opts)
	if err != nil {
		return err
	}
	idx, err := e.openIndex(ctx)
	if err != nil {
		return err
	}
	defer idx.Close()

	hits, err := idx.Search(ctx, query, topK)
	if err != nil {
		return err
	}
	printHits(out, hits, opts.Verbose)
	return nil
}

// Ask starts an interactive question/answer session backed by the index.
func Ask(ctx context.Context, in io.Reader, out io.Writer, opts Options) error {
	e, err := setup(opts)
	if err != nil {
		return err
	}
	idx, err := e.openIndex(ctx)
	if err != nil {
		return err
	}
	defer idx.Close()

	engine := rag.Build(e.settings, idx, e.logger.Named("rag"))
	if u, ok := engine.(rag.Unavailable); ok {
		return u.Err
	}
	conv := memory.NewConversation(e.settings.Memory.WindowSize)
	fmt.Fprintf(out, "CRI assistant (%d documents). Commands: /reset, /transcript, exit.\n\n", idx.Stats().Documents)
	return chatLoop(ctx, in, out, engine, conv, opts.Verbose)
}

// chatLoop reads questions line by line until EOF or exit.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, engine rag.Answerer, conv *memory.Conversation, verbose bool) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "/reset":
			conv.Reset()
			fmt.Fprintln(out, "Conversazione resettata con successo.")
			continue
		case "/transcript":
			printTranscript(out, conv.Transcript())
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		answer, err := engine.Answer(ctx, input, conv.History())
		if err != nil {
			fmt.Fprintf(out, "\nError: %v\n\n", err)
			continue
		}
		conv.AddExchange(input, answer.Text)

		fmt.Fprintf(out, "\n%s\n\n", answer.Text)
		if verbose {
			if answer.Condensed {
				fmt.Fprintf(out, "(standalone: %s)\n", answer.StandaloneQuestion)
			}
			printHits(out, answer.Sources, false)
			fmt.Fprintf(out, "(%d tokens, %s)\n\n", answer.Usage.TotalTokens, answer.Duration.Round(time.Millisecond))
		}
	}
	return scanner.Err()
}

const maxExcerptLen = 160

func printHits(out io.Writer, hits []index.Hit, full bool) {
	if len(hits) == 0 {
		fmt.Fprintln(out, "No matching passages.")
		return
	}
	for i, h := range hits {
		name := h.Title
		if name == "" {
			name = h.DocumentID
		}
		text := strings.Join(strings.Fields(h.Text), " ")
		if !full {
			text = truncateString(text, maxExcerptLen)
		}
		fmt.Fprintf(out, "[%d] %s #%d (%.3f)\n    %s\n", i+1, name, h.Ordinal, h.Score, text)
	}
	fmt.Fprintln(out)
}

func printTranscript(out io.Writer, records []memory.Record) {
	if len(records) == 0 {
		fmt.Fprintln(out, "(empty transcript)")
		return
	}
	for i, r := range records {
		fmt.Fprintf(out, "%d. Utente: %s\n   Assistente: %s\n", i+1, r.User, truncateString(r.Assistant, maxExcerptLen))
	}
	fmt.Fprintln(out)
}

// truncateString truncates a string to maxLen runes, preserving UTF-8 boundaries.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// Package main provides the cri CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/GianmarcoBramucci/cri/cli"
	"github.com/GianmarcoBramucci/cri/config"
)

var (
	// Global flags
	configPath string
	provider   string
	verbose    bool
)

func options() cli.Options {
	return cli.Options{
		ConfigPath: configPath,
		Provider:   provider,
		Verbose:    verbose,
	}
}

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "cri",
		Short: "Conversational assistant for the Croce Rossa Italiana document base",
		Long: `A retrieval-augmented question answering service with session memory.

Commands:
- serve:  HTTP API (query, reset, transcript, contact, health, metrics)
- ingest: add text, markdown or JSONL documents to the index
- search: query the index without calling a model
- ask:    interactive session in the terminal`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider ("+strings.Join(config.SupportedProviders(), ", ")+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(askCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Serve(context.Background(), options())
		},
	}
}

func ingestCmd() *cobra.Command {
	fields := cli.DefaultFields()

	cmd := &cobra.Command{
		Use:   "ingest [path...]",
		Short: "Add documents to the index",
		Long: `Add documents to the index.

Directories are walked for .txt, .md and .jsonl files. Each JSONL line is one
document; the --*-field flags are gjson paths into the record.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Ingest(cmd.Context(), args, fields, cmd.OutOrStdout(), options())
		},
	}

	cmd.Flags().StringVar(&fields.ID, "id-field", fields.ID, "JSONL path of the document id")
	cmd.Flags().StringVar(&fields.Content, "content-field", fields.Content, "JSONL path of the document text")
	cmd.Flags().StringVar(&fields.Title, "title-field", fields.Title, "JSONL path of the document title")
	cmd.Flags().StringVar(&fields.Source, "source-field", fields.Source, "JSONL path of the document source")

	return cmd
}

func searchCmd() *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Search(cmd.Context(), args[0], topK, cmd.OutOrStdout(), options())
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of passages (default from config)")

	return cmd
}

func askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask",
		Short: "Start an interactive question session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Ask(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), options())
		},
	}
}

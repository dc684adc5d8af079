package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"groundedrag/internal/config"
	"groundedrag/internal/logging"
	"groundedrag/internal/service"
	"groundedrag/internal/tui"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// app carries the state shared by all subcommands once flags are parsed.
type app struct {
	configPath string
	logLevel   string
	indexPath  string

	cfg    *config.AppConfig
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "rag",
		Short:         "Answer questions grounded on your own documents",
		Long:          "rag chunks and embeds text documents into a vector index, retrieves the passages closest to a question and asks a language model to answer from them.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to config.yaml (default: ./config.yaml, then ~/.config/rag/config.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.indexPath, "index", "", "override vector_store.index_path (.db/.sqlite for SQLite, anything else for gob)")

	root.AddCommand(a.indexCmd())
	root.AddCommand(a.askCmd())
	root.AddCommand(a.searchCmd())
	root.AddCommand(a.chatCmd())
	return root
}

func (a *app) setup(stderr io.Writer) error {
	var err error
	if a.configPath == "" {
		a.cfg, _, err = config.LoadDefault()
	} else {
		a.cfg, err = config.Load(a.configPath)
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.logLevel != "" {
		a.cfg.Log.Level = a.logLevel
	}
	if a.indexPath != "" {
		a.cfg.VectorStore.IndexPath = a.indexPath
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	a.logger, err = logging.New(stderr, a.cfg.Log.Level, a.cfg.Log.Format)
	return err
}

func (a *app) indexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index PATH...",
		Short: "Build the index from files, directories or globs",
		Long:  "Build the index from .txt, .md and .pdf files. With the memory store the index is written to vector_store.index_path when one is set.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPipeline(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer p.Close()

			summary, err := p.service.IngestDocuments(cmd.Context(), args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if path := a.cfg.VectorStore.IndexPath; path != "" {
				if err := p.service.SaveIndex(cmd.Context(), path); err != nil {
					return err
				}
				color.New(color.FgGreen).Fprintf(out, "Index written to %s\n", path)
			} else {
				color.New(color.FgGreen).Fprintln(out, "Index built")
			}
			if summary != "" {
				color.New(color.Faint).Fprintln(out, summary)
			}
			return nil
		},
	}
}

// sourceFlags are the flags shared by commands that need an index.
type sourceFlags struct {
	docs    []string
	rebuild bool
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&f.docs, "docs", "d", nil, "documents to index when no saved index is used")
	cmd.Flags().BoolVar(&f.rebuild, "rebuild", false, "build and save the index from --docs when the index file is missing")
}

func (a *app) open(ctx context.Context, f sourceFlags) (*pipeline, string, error) {
	p, err := buildPipeline(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, "", err
	}
	summary, err := p.service.Open(ctx, service.OpenOptions{
		Paths:     f.docs,
		IndexPath: a.cfg.VectorStore.IndexPath,
		Rebuild:   f.rebuild,
	})
	if err != nil {
		p.Close()
		return nil, "", err
	}
	return p, summary, nil
}

func (a *app) askCmd() *cobra.Command {
	var (
		src        sourceFlags
		showPrompt bool
	)
	cmd := &cobra.Command{
		Use:   "ask QUESTION",
		Short: "Answer a question from the indexed documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, _, err := a.open(cmd.Context(), src)
			if err != nil {
				return err
			}
			defer p.Close()

			answer, err := p.service.Ask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if showPrompt {
				color.New(color.Faint).Fprintln(out, answer.Prompt)
				fmt.Fprintln(out)
			}
			fmt.Fprintln(out, answer.Text)
			fmt.Fprintln(out)
			printSources(out, answer.Sources)
			return nil
		},
	}
	src.register(cmd)
	cmd.Flags().BoolVar(&showPrompt, "show-prompt", false, "print the assembled prompt before the answer")
	return cmd
}

func (a *app) searchCmd() *cobra.Command {
	var (
		src sourceFlags
		k   int
	)
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Show the chunks closest to a query without generating an answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, _, err := a.open(cmd.Context(), src)
			if err != nil {
				return err
			}
			defer p.Close()

			results, err := p.service.Retrieve(cmd.Context(), args[0], k)
			if err != nil {
				return err
			}
			printSources(cmd.OutOrStdout(), results)
			return nil
		},
	}
	src.register(cmd)
	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "number of chunks to return (default: retrieval.top_k)")
	return cmd
}

func (a *app) chatCmd() *cobra.Command {
	var src sourceFlags
	cmd := &cobra.Command{
		Use:   "chat [PATH...]",
		Short: "Interactive chat over the indexed documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			src.docs = append(src.docs, args...)
			// The TUI owns the terminal from here on.
			a.logger = slog.New(slog.DiscardHandler)
			p, summary, err := a.open(cmd.Context(), src)
			if err != nil {
				return err
			}
			defer p.Close()

			m := tui.New(cmd.Context(), p.service, summary)
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
	src.register(cmd)
	return cmd
}

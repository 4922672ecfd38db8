package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"supportrag/internal/config"
	"supportrag/internal/httpapi"
	"supportrag/internal/loader"
	"supportrag/internal/logger"
	"supportrag/internal/service"
)

func main() {
	_ = godotenv.Load()

	log := logger.New()
	slog.SetDefault(log)

	if err := rootCmd(log).Execute(); err != nil {
		log.Error("command failed", "error", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	docsPath   string
	ticketPath string
}

func rootCmd(log *slog.Logger) *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "rag",
		Short:         "Support knowledge retrieval and ranking",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to YAML config file (uses ./config.yaml or ~/.config/supportrag/config.yaml if not provided)")
	root.PersistentFlags().StringVar(&flags.docsPath, "docs", "", "Path to product docs JSON (overrides config)")
	root.PersistentFlags().StringVar(&flags.ticketPath, "tickets", "", "Path to support tickets JSON (overrides config)")

	root.AddCommand(
		ingestCmd(flags, log),
		searchCmd(flags, log),
		serveCmd(flags, log),
	)
	return root
}

func ingestCmd(flags *globalFlags, log *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Chunk, embed and index the corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd.Context(), flags, log)
			if err != nil {
				return err
			}
			defer a.Close()
			return json.NewEncoder(cmd.OutOrStdout()).Encode(a.stats)
		},
	}
}

func searchCmd(flags *globalFlags, log *slog.Logger) *cobra.Command {
	var version string
	var k int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Rank the corpus for a query and print the results as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context(), flags, log)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.svc.Search(cmd.Context(), service.SearchRequest{
				Query:   args[0],
				Version: version,
				K:       k,
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "Keep only results for this product version when any match")
	cmd.Flags().IntVar(&k, "k", 0, "Number of results (defaults to ranking.final_results_k)")
	return cmd
}

func serveCmd(flags *globalFlags, log *slog.Logger) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd.Context(), flags, log)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			e := httpapi.NewServer(httpapi.NewHandler(a.svc, log), a.svc.Metrics().Registry)
			go func() {
				log.Info("Starting server", "addr", addr)
				if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server stopped", "error", err)
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return e.Shutdown(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to server.addr)")
	return cmd
}

func loadConfig(flags *globalFlags) (*config.AppConfig, error) {
	var cfg *config.AppConfig
	var err error
	if flags.configPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(flags.configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if flags.docsPath != "" {
		cfg.Data.ProductDocs = flags.docsPath
	}
	if flags.ticketPath != "" {
		cfg.Data.SupportTickets = flags.ticketPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup assembles the service and ingests the corpus. Stores are rebuilt on
// every run so the memory store behaves the same as the remote ones.
func setup(ctx context.Context, flags *globalFlags, log *slog.Logger) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	docs, err := loader.LoadAll(cfg.Data.ProductDocs, cfg.Data.SupportTickets)
	if err != nil {
		return nil, err
	}
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.stats, err = a.svc.Ingest(ctx, docs)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("ingest failed: %w", err)
	}
	return a, nil
}

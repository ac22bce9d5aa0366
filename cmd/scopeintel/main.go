// Package main provides the scopeintel command line entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/scopelabs/scopeintel/internal/ai"
	"github.com/scopelabs/scopeintel/internal/config"
	"github.com/scopelabs/scopeintel/internal/db/gorm"
	"github.com/scopelabs/scopeintel/internal/pipeline"
	"github.com/scopelabs/scopeintel/internal/server"
	"github.com/scopelabs/scopeintel/pkg/models"
)

// Version is set at build time via ldflags.
var Version = "dev"

var debug bool

func main() {
	// .env is optional; real deployments use the environment directly
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "scopeintel",
		Short: "Semantic clustering and trend analysis for support tickets",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
			if debug {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})
		},
	}
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(systemsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Shutting down")
		cancel()
	}()
	return ctx, cancel
}

func openStore(cfg *config.Config) (*gorm.Store, error) {
	if err := config.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("ensure data directory: %w", err)
	}
	return gorm.NewStore(gorm.Config{
		Path:     cfg.DBPath,
		MaxConns: cfg.MaxConns,
	})
}

func buildPipeline(cfg *config.Config, store *gorm.Store) (*pipeline.Pipeline, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	client := ai.NewOpenAIClient(ai.OpenAIConfig{
		APIKey:     cfg.OpenAIAPIKey,
		EmbedModel: cfg.EmbedModel,
		ChatModel:  cfg.ChatModel,
		Dimensions: cfg.EmbedDimensions,
	}, log.Logger)
	return pipeline.New(store, client, client, pipeline.Config{
		EmbedModel: cfg.EmbedModel,
	}, log.Logger), nil
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				log.Warn().Err(err).Msg("Failed to load config, using defaults")
				cfg = config.Default()
			}
			if addr != "" {
				cfg.Addr = addr
			}

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			pipe, err := buildPipeline(cfg, store)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			svc := server.NewService(pipe, store, server.Options{
				Addr:              cfg.Addr,
				Version:           Version,
				DefaultPeriodDays: cfg.PeriodDays,
			}, log.Logger)

			log.Info().Str("addr", cfg.Addr).Str("version", Version).Msg("Starting server")
			return svc.Start(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}

func importCmd() *cobra.Command {
	var system string
	cmd := &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import tickets from a JSON export file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				cfg = config.Default()
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read export file: %w", err)
			}
			var tickets []models.Ticket
			if err := json.Unmarshal(data, &tickets); err != nil {
				return fmt.Errorf("parse export file: %w", err)
			}
			if system != "" {
				for i := range tickets {
					tickets[i].System = system
				}
			}

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := signalContext()
			defer cancel()

			if err := store.UpsertTickets(ctx, tickets); err != nil {
				return fmt.Errorf("store tickets: %w", err)
			}
			log.Info().Int("count", len(tickets)).Msg("Imported tickets")
			return nil
		},
	}
	cmd.Flags().StringVar(&system, "system", "", "Override the system name on all imported tickets")
	return cmd
}

func analyzeCmd() *cobra.Command {
	var periodDays int
	var outFile string
	cmd := &cobra.Command{
		Use:   "analyze <system>",
		Short: "Run one analysis for a system and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				cfg = config.Default()
			}
			if periodDays <= 0 {
				periodDays = cfg.PeriodDays
			}

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			pipe, err := buildPipeline(cfg, store)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			result, runID, err := pipe.Run(ctx, args[0], periodDays)
			if err != nil {
				return fmt.Errorf("analysis failed: %w", err)
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			if outFile != "" {
				if err := os.WriteFile(outFile, out, 0o644); err != nil {
					return fmt.Errorf("write result: %w", err)
				}
			} else {
				fmt.Println(string(out))
			}
			log.Info().
				Uint("run_id", runID).
				Int("groups", result.Metadata.TotalGroups).
				Msg("Analysis complete")
			return nil
		},
	}
	cmd.Flags().IntVar(&periodDays, "period-days", 0, "Analysis window in days (default from config)")
	cmd.Flags().StringVar(&outFile, "out", "", "Write the result JSON to a file instead of stdout")
	return cmd
}

func systemsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "systems",
		Short: "List systems with stored tickets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				cfg = config.Default()
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()
			systems, err := store.ListSystems(ctx)
			if err != nil {
				return err
			}
			for _, s := range systems {
				count, err := store.CountTickets(ctx, s)
				if err != nil {
					return err
				}
				fmt.Printf("%s\t%d\n", s, count)
			}
			return nil
		},
	}
}

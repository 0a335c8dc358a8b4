package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/dossier/internal"
	pkgconfig "github.com/starford/dossier/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func reindex(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	stats, err := internal.Reindex(ctx, internal.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	fmt.Printf("indexed %d, removed %d, unchanged %d, failed %d\n",
		stats.Indexed, stats.Removed, stats.Skipped, stats.Failed)
	return nil
}

func ask(ctx context.Context, cmd *cli.Command) error {
	question := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if question == "" {
		return errors.New("ask: a question is required")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Ask(ctx, question, os.Stdout,
		internal.WithConfig(cfg),
		internal.WithLogOutput(os.Stderr),
	)
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

func main() {
	cmd := &cli.Command{
		Name:   "dossier",
		Usage:  "Watched-folder document assistant: incremental indexing, metadata-filtered retrieval and streamed answers",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Sync, watch the document root and serve the HTTP API (default)",
				Action: serve,
			},
			{
				Name:   "reindex",
				Usage:  "Synchronise the index with the document root once and exit",
				Action: reindex,
			},
			{
				Name:      "ask",
				Usage:     "Answer a question and print the NDJSON stream",
				ArgsUsage: "<question>",
				Action:    ask,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the document tools over MCP on stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samvad-hq/report-enhancer/internal/config"
	"github.com/samvad-hq/report-enhancer/internal/logger"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "enhancer failed: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:   "enhancer",
		Usage:  "enrich threat-intel reports with the article behind their source URL",
		Action: RunAction,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "poll the platform and enhance new reports",
				Action: RunAction,
			},
			{
				Name:      "extract",
				Usage:     "extract an article and print it as JSON",
				ArgsUsage: "<url>",
				Action:    ExtractAction,
			},
			{
				Name:      "render",
				Usage:     "render a URL to PDF",
				ArgsUsage: "<url>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Value: "article.pdf", Usage: "output file"},
					&cli.StringFlag{Name: "strategy", Value: "", Usage: "auto, extract or minimal (defaults to ad_removal_strategy)"},
					&cli.BoolFlag{Name: "no-images", Usage: "render without images"},
				},
				Action: RenderAction,
			},
		},
	}
}

// bootstrap loads config and the logger shared by every command.
func bootstrap() (*config.Config, logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.Init(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/samvad-hq/report-enhancer/internal/app"
	"github.com/samvad-hq/report-enhancer/internal/domain"
	"github.com/samvad-hq/report-enhancer/internal/logger"
	"github.com/urfave/cli/v2"
)

// RunAction starts the polling loop.
func RunAction(c *cli.Context) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Close()

	logger.InfoObj("enhancer starting", "config", map[string]any{
		"app_name":            cfg.AppName,
		"env":                 cfg.Env,
		"opencti_url":         cfg.OpenCTIURL,
		"processed_label":     cfg.ProcessedLabel,
		"ad_removal_strategy": cfg.AdRemovalStrategy,
		"storage_type":        cfg.StorageType,
	})

	ctx, stop := signalContext(c.Context)
	defer stop()

	enhancer, err := app.NewEnhancer(ctx, cfg, log)
	if err != nil {
		logger.ErrorObj("failed to initialize enhancer", "error", err)
		return err
	}
	if err := enhancer.Run(ctx); err != nil {
		return fmt.Errorf("enhancer run: %w", err)
	}
	return nil
}

// ExtractAction prints the extracted article for one URL.
func ExtractAction(c *cli.Context) error {
	url := strings.TrimSpace(c.Args().First())
	if url == "" {
		return cli.Exit("extract requires a url", 2)
	}
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signalContext(c.Context)
	defer stop()

	pipeline, err := app.NewPipeline(cfg, log)
	if err != nil {
		return err
	}
	article, ok := pipeline.Extractor.Extract(ctx, url)
	if !ok {
		return cli.Exit(fmt.Sprintf("no article could be extracted from %s", url), 1)
	}

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(article)
}

// RenderAction writes a PDF of one URL to --out.
func RenderAction(c *cli.Context) error {
	url := strings.TrimSpace(c.Args().First())
	if url == "" {
		return cli.Exit("render requires a url", 2)
	}
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signalContext(c.Context)
	defer stop()

	pipeline, err := app.NewPipeline(cfg, log)
	if err != nil {
		return err
	}

	strategy := cfg.AdRemovalStrategy
	if c.IsSet("strategy") {
		strategy = c.String("strategy")
	}

	article, ok := pipeline.Extractor.Extract(ctx, url)
	if !ok {
		return cli.Exit(fmt.Sprintf("could not fetch %s", url), 1)
	}
	pdf, ok := pipeline.Renderer.Render(ctx, domain.RenderRequest{
		RawHTML:        article.HTML,
		SourceURL:      url,
		PreserveLayout: cfg.PreserveLayout,
		IncludeImages:  cfg.IncludeImages && !c.Bool("no-images"),
		ImageQuality:   cfg.ImageQuality,
		Strategy:       domain.ParseStrategy(strategy),
		Article:        article,
	})
	if !ok {
		return cli.Exit("pdf rendering failed", 1)
	}

	out := c.String("out")
	if err := os.WriteFile(out, pdf, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Fprintf(c.App.Writer, "wrote %d bytes to %s\n", len(pdf), out)
	return nil
}

package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/samvad-hq/report-enhancer/internal/classifier"
	"github.com/samvad-hq/report-enhancer/internal/config"
	"github.com/samvad-hq/report-enhancer/internal/domain"
	"github.com/samvad-hq/report-enhancer/internal/extractor"
	"github.com/samvad-hq/report-enhancer/internal/logger"
	"github.com/samvad-hq/report-enhancer/internal/processor"
	"github.com/samvad-hq/report-enhancer/internal/renderer"
	"github.com/samvad-hq/report-enhancer/internal/storage"
	"github.com/samvad-hq/report-enhancer/pkg/command"
	"github.com/samvad-hq/report-enhancer/pkg/opencti"
	"github.com/samvad-hq/report-enhancer/pkg/publishers"
	"github.com/samvad-hq/report-enhancer/pkg/sites"
)

const (
	startScanBatch = 100
	startScanPause = 500 * time.Millisecond
)

// ReportSource lists reports from the platform.
type ReportSource interface {
	TestConnection(ctx context.Context) (string, error)
	LatestReports(ctx context.Context, first int) ([]domain.Report, error)
	AllReports(ctx context.Context, batch, limit int) ([]domain.Report, error)
}

// BatchProcessor handles fetched reports.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, reports []domain.Report) int
	ProcessPaced(ctx context.Context, reports []domain.Report, pause time.Duration) int
}

// Enhancer is the connector runtime. It polls the platform for new reports
// and hands them to the processor.
type Enhancer struct {
	cfg       *config.Config
	reports   ReportSource
	processor BatchProcessor
	fanout    *publishers.Fanout
	store     storage.Store
	log       logger.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// Pipeline bundles the article extractor and renderer shared by the
// connector and the one-shot CLI commands.
type Pipeline struct {
	Sites     *sites.Registry
	Extractor *extractor.Extractor
	Renderer  *renderer.Renderer
}

// NewPipeline builds the extraction ladder and renderer from config.
func NewPipeline(cfg *config.Config, log logger.Logger) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)

	siteReg, err := sites.Load(cfg.SitesFile)
	if err != nil {
		return nil, fmt.Errorf("load sites registry: %w", err)
	}
	log.InfoObj("sites registry loaded", "sites_meta", map[string]any{
		"count":     len(siteReg.All()),
		"deny_list": siteReg.LayoutDenyList(),
	})

	runner := command.NewExecRunner()
	ext := extractor.NewDefault(extractor.Options{
		UserAgent:     cfg.UserAgent,
		WgetPath:      cfg.WgetPath,
		TempDir:       os.TempDir(),
		RespectRobots: cfg.RespectRobotsTxt,
		Runner:        runner,
		Sites:         siteReg,
	}, log)

	sc := classifier.NewMemo(classifier.New(siteReg.LayoutDenyList(), log), cfg.ClassifierCacheTTL)
	raster := renderer.NewWkhtmltopdf(cfg.WkhtmltopdfPath, cfg.PDFTimeout, cfg.PDFRuntimeDir, runner, log)

	return &Pipeline{
		Sites:     siteReg,
		Extractor: ext,
		Renderer:  renderer.New(sc, ext, raster, log),
	}, nil
}

// NewEnhancer wires the platform client, pipeline, ledger, publishers and
// processor from config.
func NewEnhancer(ctx context.Context, cfg *config.Config, log logger.Logger) (*Enhancer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	log = logger.Ensure(log)

	client := opencti.New(cfg.OpenCTIURL, cfg.OpenCTIToken, opencti.Options{}, log)

	pipeline, err := NewPipeline(cfg, log)
	if err != nil {
		return nil, err
	}

	publisherReg, err := publishers.LoadRegistry(cfg.PublishersFile)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}
	enabledPublishers := publisherReg.Enabled()
	pubClients, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabledPublishers, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}
	fanout := publishers.NewFanout(pubClients)
	publisherSummaries := make([]map[string]string, 0, len(enabledPublishers))
	for _, pubCfg := range enabledPublishers {
		publisherSummaries = append(publisherSummaries, map[string]string{
			"id":   pubCfg.ID,
			"type": pubCfg.Type,
		})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(publisherSummaries),
		"publishers": publisherSummaries,
	})

	store, err := storage.NewStore(cfg.StorageType, cfg.BBoltPath, storage.Options{
		ReportTTL:       cfg.StorageTTL,
		CleanupInterval: cfg.StorageCleanupInterval,
	})
	if err != nil {
		fanout.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":                     cfg.StorageType,
		"path":                     cfg.BBoltPath,
		"report_ttl_seconds":       int(cfg.StorageTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.StorageCleanupInterval.Seconds()),
	})

	if labelID, err := client.EnsureLabel(ctx, cfg.ProcessedLabel, cfg.ProcessedLabelColor); err != nil {
		log.WarnObj("processed label not available yet", "label", map[string]any{
			"value": cfg.ProcessedLabel,
			"error": err.Error(),
		})
	} else {
		log.InfoObj("processed label ready", "label", map[string]any{
			"value": cfg.ProcessedLabel,
			"id":    labelID,
		})
	}

	proc := processor.New(client, pipeline.Extractor, pipeline.Renderer, store, fanout, processor.Options{
		ProcessedLabel:      cfg.ProcessedLabel,
		ProcessedLabelColor: cfg.ProcessedLabelColor,
		ProcessAllReports:   cfg.ProcessAllReports,
		TargetReportTypes:   cfg.TargetReportTypes,
		PreserveLayout:      cfg.PreserveLayout,
		IncludeImages:       cfg.IncludeImages,
		ImageQuality:        cfg.ImageQuality,
		Strategy:            domain.ParseStrategy(cfg.AdRemovalStrategy),
		TextPDFFallback:     cfg.TextPDFFallback,
		Sites:               pipeline.Sites,
	}, log)

	return &Enhancer{
		cfg:       cfg,
		reports:   client,
		processor: proc,
		fanout:    fanout,
		store:     store,
		log:       log,
		sleep:     extractor.SleepContext,
	}, nil
}

// Run polls for reports until ctx is cancelled.
func (e *Enhancer) Run(ctx context.Context) error {
	if e == nil || e.reports == nil || e.processor == nil {
		return fmt.Errorf("enhancer is not initialized")
	}
	defer e.close()

	if version, err := e.reports.TestConnection(ctx); err != nil {
		e.log.ErrorObj("platform connection test failed", "opencti", map[string]any{
			"url":   e.cfg.OpenCTIURL,
			"error": err.Error(),
		})
	} else {
		e.log.InfoObj("platform connection ok", "opencti", map[string]any{
			"url":     e.cfg.OpenCTIURL,
			"version": version,
		})
	}

	e.log.InfoObj("enhancer loop starting", "enhancer_state", map[string]any{
		"wait_time":         e.cfg.WaitTime.String(),
		"reports_per_cycle": e.cfg.ReportsPerCycle,
		"publishers_count":  e.fanout.Size(),
		"process_on_start":  e.cfg.ProcessAllOnStart,
		"image_quality":     e.cfg.ImageQuality,
		"max_images":        e.cfg.MaxImages,
	})

	if e.cfg.ProcessAllOnStart {
		e.startScan(ctx)
	}

	for {
		if ctx.Err() != nil {
			e.log.InfoObj("enhancer loop exiting", "reason", ctx.Err())
			return nil
		}
		wait := e.cfg.WaitTime
		if err := e.runOnce(ctx); err != nil {
			e.log.ErrorObj("poll cycle failed", "poll_error", map[string]any{
				"error":         err.Error(),
				"retry_seconds": int(e.cfg.ErrorBackoff.Seconds()),
			})
			wait = e.cfg.ErrorBackoff
		}
		if err := e.sleep(ctx, wait); err != nil {
			e.log.InfoObj("enhancer loop exiting", "reason", err)
			return nil
		}
	}
}

// runOnce fetches the latest reports and processes them.
func (e *Enhancer) runOnce(ctx context.Context) error {
	start := time.Now()
	reports, err := e.reports.LatestReports(ctx, e.cfg.ReportsPerCycle)
	if err != nil {
		return fmt.Errorf("fetch latest reports: %w", err)
	}
	processed := e.processor.ProcessBatch(ctx, reports)
	e.log.InfoObj("poll cycle completed", "poll_meta", map[string]any{
		"fetched":    len(reports),
		"processed":  processed,
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
	return nil
}

// startScan processes the existing backlog once before polling begins.
func (e *Enhancer) startScan(ctx context.Context) {
	reports, err := e.reports.AllReports(ctx, startScanBatch, e.cfg.MaxReportsOnStart)
	if err != nil {
		e.log.ErrorObj("startup scan failed", "startup_scan", map[string]any{"error": err.Error()})
		return
	}
	processed := e.processor.ProcessPaced(ctx, reports, startScanPause)
	e.log.InfoObj("startup scan completed", "startup_scan", map[string]any{
		"fetched":   len(reports),
		"processed": processed,
	})
}

func (e *Enhancer) close() {
	e.fanout.Close()
	if e.store == nil {
		return
	}
	if err := e.store.Close(); err != nil {
		e.log.ErrorObj("storage close failed", "error", err)
	}
}

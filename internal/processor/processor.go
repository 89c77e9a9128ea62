package processor

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/samvad-hq/report-enhancer/internal/domain"
	"github.com/samvad-hq/report-enhancer/internal/logger"
	"github.com/samvad-hq/report-enhancer/internal/renderer"
	"github.com/samvad-hq/report-enhancer/pkg/publishers"
	"github.com/samvad-hq/report-enhancer/pkg/sites"
)

const (
	// maxDescriptionText keeps description patches under the platform's request limits.
	maxDescriptionText = 90000
	truncationNotice   = "\n\n[... Content truncated due to length limits ...]"
	pdfMime            = "application/pdf"
)

// Options carries the processing switches taken from configuration.
type Options struct {
	ProcessedLabel      string
	ProcessedLabelColor string
	ProcessAllReports   bool
	TargetReportTypes   []string

	PreserveLayout  bool
	IncludeImages   bool
	ImageQuality    int
	Strategy        domain.Strategy
	TextPDFFallback bool

	// Sites supplies per-domain strategy and image overrides. Optional.
	Sites *sites.Registry
}

// Processor enhances one report at a time: it extracts the source article,
// rewrites the description, attaches a PDF and labels the report.
type Processor struct {
	platform  Platform
	articles  ArticleExtractor
	renderer  PDFRenderer
	ledger    Ledger
	publisher EventPublisher
	opts      Options
	targets   map[string]struct{}
	log       logger.Logger

	now     func() time.Time
	textPDF func(*domain.ArticleResult, string) ([]byte, error)
	sleep   func(ctx context.Context, d time.Duration) error
}

// New wires a processor. publisher may be nil.
func New(platform Platform, articles ArticleExtractor, r PDFRenderer, ledger Ledger, publisher EventPublisher, opts Options, log logger.Logger) *Processor {
	targets := make(map[string]struct{}, len(opts.TargetReportTypes))
	for _, t := range opts.TargetReportTypes {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			targets[t] = struct{}{}
		}
	}
	return &Processor{
		platform:  platform,
		articles:  articles,
		renderer:  r,
		ledger:    ledger,
		publisher: publisher,
		opts:      opts,
		targets:   targets,
		log:       logger.Ensure(log),
		now:       time.Now,
		textPDF:   renderer.TextPDF,
		sleep:     sleepCtx,
	}
}

// Processable decides whether report should be processed and returns its
// source URL. reason explains a skip.
func (p *Processor) Processable(report domain.Report) (string, bool, string) {
	seen, err := p.ledger.SeenReport(report.ID)
	if err != nil {
		p.log.WarnObj("ledger lookup failed", "processor", map[string]any{
			"report_id": report.ID,
			"error":     err.Error(),
		})
	}
	if seen {
		return "", false, "already processed"
	}

	if report.HasLabel(p.opts.ProcessedLabel) {
		if err := p.ledger.MarkReport(report.ID); err != nil {
			p.log.WarnObj("ledger update failed", "processor", map[string]any{
				"report_id": report.ID,
				"error":     err.Error(),
			})
		}
		return "", false, "processed label present"
	}

	url := report.SourceURL()
	if url == "" {
		return "", false, "no source url"
	}

	types := report.NormalizedTypes()
	if !p.opts.ProcessAllReports && len(types) > 0 && !p.matchesTarget(types) {
		return "", false, "not a target report type"
	}
	return url, true, ""
}

func (p *Processor) matchesTarget(types []string) bool {
	for _, t := range types {
		if _, ok := p.targets[t]; ok {
			return true
		}
	}
	return false
}

// Process enhances a single report. Extraction and rendering failures are
// logged and never prevent the report from being labelled and recorded.
func (p *Processor) Process(ctx context.Context, report domain.Report, url string) (err error) {
	name := report.DisplayName()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("process report %s: panic: %v", report.ID, rec)
		}
	}()

	evt := publishers.NewEvent(report.ID, name, url)
	evt.Strategy = string(p.opts.Strategy)

	p.log.InfoObj("processing report", "processor", map[string]any{
		"report_id":      report.ID,
		"report_name":    name,
		"url":            url,
		"layout":         layoutTag(p.opts.PreserveLayout),
		"include_images": p.opts.IncludeImages,
	})

	article, ok := p.articles.Extract(ctx, url)
	if ok {
		evt.Extracted = true
		evt.ExtractionMethod = article.ExtractionMethod
		p.updateDescription(ctx, report, article)
		if filename, attached := p.attachPDF(ctx, report, url, article); attached {
			evt.PDFAttached = true
			evt.PDFFilename = filename
		}
	} else {
		p.log.InfoObj("article extraction failed; description and pdf left unchanged", "processor", map[string]any{
			"report_id": report.ID,
			"url":       url,
		})
	}

	p.addLabel(ctx, report)

	if markErr := p.ledger.MarkReport(report.ID); markErr != nil {
		err = fmt.Errorf("mark report %s processed: %w", report.ID, markErr)
	}

	p.publish(ctx, evt)

	p.log.InfoObj("report processed", "processor", map[string]any{
		"report_id":    report.ID,
		"extracted":    evt.Extracted,
		"pdf_attached": evt.PDFAttached,
		"method":       evt.ExtractionMethod,
	})
	return err
}

// ProcessBatch processes every processable report and returns how many
// were handled. A failing report never stops the batch.
func (p *Processor) ProcessBatch(ctx context.Context, reports []domain.Report) int {
	return p.ProcessPaced(ctx, reports, 0)
}

// ProcessPaced is ProcessBatch with a pause after each processed report.
func (p *Processor) ProcessPaced(ctx context.Context, reports []domain.Report, pause time.Duration) int {
	processed := 0
	for _, report := range reports {
		if ctx.Err() != nil {
			break
		}
		url, ok, reason := p.Processable(report)
		if !ok {
			p.log.DebugObj("skipping report", "processor_skip", map[string]any{
				"report_id":   report.ID,
				"report_name": report.DisplayName(),
				"reason":      reason,
			})
			continue
		}
		if err := p.Process(ctx, report, url); err != nil {
			p.log.ErrorObj("report processing failed", "processor", map[string]any{
				"report_id": report.ID,
				"error":     err.Error(),
			})
			continue
		}
		processed++
		if pause > 0 {
			if err := p.sleep(ctx, pause); err != nil {
				break
			}
		}
	}
	return processed
}

func (p *Processor) updateDescription(ctx context.Context, report domain.Report, article *domain.ArticleResult) {
	desc := Description(article)
	if err := p.platform.UpdateDescription(ctx, report.ID, desc); err != nil {
		p.log.ErrorObj("description update failed", "processor", map[string]any{
			"report_id": report.ID,
			"error":     err.Error(),
		})
		return
	}
	p.log.DebugObj("description updated", "processor", map[string]any{
		"report_id":    report.ID,
		"old_length":   len(report.Description),
		"new_length":   len(desc),
		"text_length":  len(article.Text),
		"images_found": len(article.Images),
	})
}

func (p *Processor) attachPDF(ctx context.Context, report domain.Report, url string, article *domain.ArticleResult) (string, bool) {
	req := p.renderRequest(url, article)
	pdf, ok := p.renderer.Render(ctx, req)
	if !ok && p.opts.TextPDFFallback {
		var err error
		if pdf, err = p.textPDF(article, url); err != nil {
			p.log.WarnObj("text pdf fallback failed", "processor", map[string]any{
				"report_id": report.ID,
				"error":     err.Error(),
			})
		} else {
			ok = true
		}
	}
	if !ok || len(pdf) == 0 {
		p.log.ErrorObj("pdf conversion failed", "processor", map[string]any{"report_id": report.ID})
		return "", false
	}

	filename := p.filename(report.DisplayName(), req.IncludeImages)
	if err := p.platform.UploadFile(ctx, report.ID, filename, pdfMime, pdf); err != nil {
		p.log.ErrorObj("pdf upload failed", "processor", map[string]any{
			"report_id": report.ID,
			"filename":  filename,
			"error":     err.Error(),
		})
		return "", false
	}
	return filename, true
}

func (p *Processor) addLabel(ctx context.Context, report domain.Report) {
	labelID, err := p.platform.EnsureLabel(ctx, p.opts.ProcessedLabel, p.opts.ProcessedLabelColor)
	if err == nil {
		err = p.platform.AddLabel(ctx, report.ID, labelID)
	}
	if err != nil {
		p.log.ErrorObj("adding processed label failed", "processor", map[string]any{
			"report_id": report.ID,
			"label":     p.opts.ProcessedLabel,
			"error":     err.Error(),
		})
	}
}

func (p *Processor) publish(ctx context.Context, evt publishers.Event) {
	if p.publisher == nil {
		return
	}
	if _, err := p.publisher.Publish(ctx, evt); err != nil {
		p.log.WarnObj("event publish failed", "processor", map[string]any{
			"report_id": evt.ReportID,
			"error":     err.Error(),
		})
	}
}

// renderRequest applies the configured render switches and any site override.
func (p *Processor) renderRequest(url string, article *domain.ArticleResult) domain.RenderRequest {
	req := domain.RenderRequest{
		RawHTML:        article.HTML,
		SourceURL:      url,
		PreserveLayout: p.opts.PreserveLayout,
		IncludeImages:  p.opts.IncludeImages,
		ImageQuality:   p.opts.ImageQuality,
		Strategy:       p.opts.Strategy,
		Article:        article,
	}
	if p.opts.Sites == nil {
		return req
	}
	site, ok := p.opts.Sites.Match(url)
	if !ok {
		return req
	}
	if s := domain.ParseStrategy(site.Strategy); s != domain.StrategyAuto {
		req.Strategy = s
	}
	if site.IncludeImages != nil {
		req.IncludeImages = *site.IncludeImages
	}
	return req
}

// filename builds <safe_name>_<layout>_<images>_<timestamp>.pdf.
func (p *Processor) filename(reportName string, includeImages bool) string {
	images := "text_only"
	if includeImages {
		images = "with_images"
	}
	return fmt.Sprintf("%s_%s_%s_%s.pdf",
		SafeName(reportName),
		layoutTag(p.opts.PreserveLayout),
		images,
		p.now().Format("20060102_150405"),
	)
}

func layoutTag(preserve bool) string {
	if preserve {
		return "original"
	}
	return "simple"
}

// Description formats the extracted article as a report description.
func Description(a *domain.ArticleResult) string {
	var meta strings.Builder
	if a.Title != "" {
		fmt.Fprintf(&meta, "Title: %s\n", a.Title)
	}
	if a.PublishDate != nil && !a.PublishDate.IsZero() {
		fmt.Fprintf(&meta, "Published: %s\n", a.PublishDate.Format("2006-01-02 15:04:05-07:00"))
	}
	if len(a.Authors) > 0 {
		fmt.Fprintf(&meta, "Authors: %s\n", strings.Join(a.Authors, ", "))
	}

	var b strings.Builder
	if meta.Len() > 0 {
		b.WriteString(meta.String())
		b.WriteString("\n")
	}
	text := []rune(a.Text)
	if len(text) > maxDescriptionText {
		b.WriteString(string(text[:maxDescriptionText]))
		b.WriteString(truncationNotice)
	} else {
		b.WriteString(a.Text)
	}
	return b.String()
}

// SafeName replaces every rune that is not a letter, digit, space, '-' or
// '_' with '_'.
func SafeName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, name)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package renderer

import (
	"context"
	"fmt"
	"time"

	"github.com/samvad-hq/report-enhancer/internal/classifier"
	"github.com/samvad-hq/report-enhancer/internal/domain"
	"github.com/samvad-hq/report-enhancer/internal/extractor"
	"github.com/samvad-hq/report-enhancer/internal/logger"
	"github.com/samvad-hq/report-enhancer/internal/sanitizer"
)

// ArticleSource supplies an extracted article for the extract transform.
type ArticleSource interface {
	Extract(ctx context.Context, url string) (*domain.ArticleResult, bool)
}

// Renderer prepares page HTML and hands it to a Rasterizer.
type Renderer struct {
	classifier classifier.SiteClassifier
	articles   ArticleSource
	raster     Rasterizer
	log        logger.Logger
}

// New builds a renderer. articles may be nil, in which case the extract
// transform only uses articles already present on the request.
func New(sc classifier.SiteClassifier, articles ArticleSource, raster Rasterizer, log logger.Logger) *Renderer {
	return &Renderer{
		classifier: sc,
		articles:   articles,
		raster:     raster,
		log:        logger.Ensure(log),
	}
}

// Render produces PDF bytes for req. Every failure, panics included, is
// logged and reported as ok=false.
func (r *Renderer) Render(ctx context.Context, req domain.RenderRequest) (pdf []byte, ok bool) {
	started := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.log.ErrorObj("render panicked", "render", map[string]any{
				"url":   req.SourceURL,
				"panic": fmt.Sprint(rec),
			})
			pdf, ok = nil, false
		}
	}()

	doc, strategy := r.Prepare(ctx, req)

	meta := map[string]any{
		"url":             req.SourceURL,
		"strategy":        string(strategy),
		"preserve_layout": req.PreserveLayout,
		"include_images":  req.IncludeImages,
		"image_quality":   req.Quality(),
		"html_bytes":      len(doc),
	}
	out, err := r.raster.Rasterize(ctx, doc, req.IncludeImages)
	meta["duration_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		meta["error"] = err.Error()
		r.log.WarnObj("render failed", "render", meta)
		return nil, false
	}
	meta["pdf_bytes"] = len(out)
	r.log.InfoObj("render finished", "render", meta)
	return out, true
}

// Prepare runs every stage before rasterizing and returns the final document
// together with the strategy that was applied.
func (r *Renderer) Prepare(ctx context.Context, req domain.RenderRequest) (string, domain.Strategy) {
	doc := req.RawHTML
	strategy := domain.ParseStrategy(string(req.Strategy))

	blog := r.classifier.Classify(doc, req.SourceURL)
	if blog.IsTemplatedBlog {
		doc = sanitizer.RebuildTemplatedBlog(doc, req.SourceURL)
		strategy = domain.StrategyExtract
	} else if strategy == domain.StrategyAuto {
		strategy = r.classifier.ChooseStrategy(doc, req.SourceURL)
	}
	r.log.DebugObj("render strategy resolved", "render", map[string]any{
		"url":            req.SourceURL,
		"requested":      string(req.Strategy),
		"strategy":       string(strategy),
		"templated_blog": blog.IsTemplatedBlog,
		"theme":          blog.Theme,
	})

	if req.IncludeImages {
		doc = sanitizer.ProtectImages(doc)
	}

	switch strategy {
	case domain.StrategyExtract:
		if rebuilt, ok := r.extractDocument(ctx, req, doc, blog.IsTemplatedBlog); ok {
			doc = rebuilt
		} else {
			r.log.WarnObj("extraction unavailable, using minimal cleaning", "render", map[string]any{"url": req.SourceURL})
			doc = sanitizer.Minimal(doc, req.SourceURL, req.IncludeImages)
		}
	default:
		cleaned := sanitizer.Minimal(doc, req.SourceURL, req.IncludeImages)
		if !sanitizer.QualityOK(cleaned) {
			r.log.InfoObj("minimal output failed quality gate", "render", map[string]any{"url": req.SourceURL})
			if rebuilt, ok := r.extractDocument(ctx, req, doc, false); ok {
				cleaned = rebuilt
			}
		}
		doc = cleaned
	}

	return sanitizer.InjectRepairCSS(doc), strategy
}

// extractDocument rebuilds the page from an extracted article. A rebuilt
// templated blog is parsed locally first; then the request's article; then
// the extractor.
func (r *Renderer) extractDocument(ctx context.Context, req domain.RenderRequest, doc string, local bool) (string, bool) {
	article, source := r.article(ctx, req, doc, local)
	if article == nil {
		return "", false
	}
	r.log.DebugObj("article resolved for rebuild", "render", map[string]any{
		"url":    req.SourceURL,
		"source": source,
		"chars":  len(article.Text),
	})
	return sanitizer.Extract(article.Title, article.Text, article.TopImage, article.Images, req.SourceURL, req.IncludeImages), true
}

func (r *Renderer) article(ctx context.Context, req domain.RenderRequest, doc string, local bool) (*domain.ArticleResult, string) {
	if local {
		if a, err := extractor.Parse([]byte(doc), "text/html; charset=utf-8", req.SourceURL); err == nil && a.Valid() {
			return a, "templated_blog"
		}
	}
	if req.Article.Valid() {
		return req.Article, "request"
	}
	if r.articles != nil && req.SourceURL != "" {
		if a, ok := r.articles.Extract(ctx, req.SourceURL); ok && a.Valid() {
			return a, a.ExtractionMethod
		}
	}
	return nil, ""
}

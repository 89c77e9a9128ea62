package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/samvad-hq/report-enhancer/internal/config"
	"github.com/samvad-hq/report-enhancer/internal/domain"
	"github.com/samvad-hq/report-enhancer/internal/logger"
	"github.com/samvad-hq/report-enhancer/pkg/command"
	"github.com/samvad-hq/report-enhancer/pkg/httpclient"
	"github.com/samvad-hq/report-enhancer/pkg/sites"
)

// errTextTooShort is recorded on attempts whose text fails the length check.
const errTextTooShort = "extracted text too short"

// Technique is one way of fetching and parsing an article.
type Technique interface {
	Name() string
	Attempt(ctx context.Context, url string) (*domain.ArticleResult, error)
}

// Extractor runs techniques in order and returns the first valid result.
type Extractor struct {
	techniques []Technique
	robots     *RobotsPolicy
	log        logger.Logger
}

// Options configures the default technique ladder.
type Options struct {
	UserAgent string
	WgetPath  string
	TempDir   string
	// RespectRobots skips extraction for URLs disallowed by robots.txt.
	RespectRobots bool

	HTTP    httpclient.Client
	Session func() httpclient.Client
	Runner  command.Runner
	Sleep   Sleeper
	Jitter  func(min, max time.Duration) time.Duration
	Sites   *sites.Registry
}

// New builds an extractor over an explicit technique list.
func New(log logger.Logger, techniques ...Technique) *Extractor {
	return &Extractor{techniques: techniques, log: logger.Ensure(log)}
}

// NewDefault builds the standard, direct and advanced ladder.
func NewDefault(opts Options, log logger.Logger) *Extractor {
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = config.DefaultUserAgent
	}
	if opts.HTTP == nil {
		opts.HTTP = httpclient.NewRestyClient(0)
	}
	if opts.Session == nil {
		opts.Session = func() httpclient.Client { return httpclient.NewSession() }
	}
	if opts.Runner == nil {
		opts.Runner = command.NewExecRunner()
	}
	if opts.WgetPath == "" {
		opts.WgetPath = "wget"
	}
	if opts.Sleep == nil {
		opts.Sleep = SleepContext
	}
	if opts.Jitter == nil {
		opts.Jitter = UniformJitter
	}
	log = logger.Ensure(log)

	e := New(log,
		&standardTechnique{client: opts.HTTP, userAgent: opts.UserAgent, sites: opts.Sites},
		&directTechnique{runner: opts.Runner, wget: opts.WgetPath, userAgent: opts.UserAgent, tempDir: opts.TempDir},
		&advancedTechnique{newSession: opts.Session, userAgent: opts.UserAgent, sleep: opts.Sleep, jitter: opts.Jitter, log: log},
	)
	if opts.RespectRobots {
		e.robots = NewRobotsPolicy(opts.HTTP, opts.UserAgent)
	}
	return e
}

// WithRobots enables the robots.txt policy on an extractor.
func (e *Extractor) WithRobots(p *RobotsPolicy) *Extractor {
	e.robots = p
	return e
}

// Extract walks the ladder. Every failure, panics included, is logged and
// turned into absence; the boolean is false when no technique produced a
// valid result.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (*domain.ArticleResult, bool) {
	if err := validateURL(rawURL); err != nil {
		e.log.WarnObj("article url rejected", "extraction", map[string]any{
			"url":   rawURL,
			"error": err.Error(),
		})
		return nil, false
	}
	if e.robots != nil && !e.robots.Allowed(ctx, rawURL) {
		e.log.InfoObj("article disallowed by robots.txt", "extraction", map[string]any{"url": rawURL})
		return nil, false
	}

	for _, t := range e.techniques {
		if ctx.Err() != nil {
			return nil, false
		}
		res, err := e.attempt(ctx, t, rawURL)
		if err != nil {
			e.log.WarnObj("extraction attempt failed", "extraction_attempt", map[string]any{
				"url":       rawURL,
				"technique": t.Name(),
				"error":     err.Error(),
			})
			continue
		}
		if !res.Valid() {
			res.ExtractionMethod = t.Name()
			res.Error = errTextTooShort
			e.log.WarnObj("extraction produced too little text", "extraction_attempt", map[string]any{
				"url":       rawURL,
				"technique": t.Name(),
				"chars":     len([]rune(strings.TrimSpace(res.Text))),
				"error":     res.Error,
			})
			continue
		}
		res.ExtractionMethod = t.Name()
		e.log.InfoObj("article extracted", "extraction_success", map[string]any{
			"url":       rawURL,
			"technique": t.Name(),
			"title":     res.Title,
			"chars":     len([]rune(res.Text)),
		})
		return res, true
	}

	e.log.ErrorObj("all extraction techniques failed", "extraction", map[string]any{"url": rawURL})
	return nil, false
}

func (e *Extractor) attempt(ctx context.Context, t Technique, rawURL string) (res *domain.ArticleResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	res, err = t.Attempt(ctx, rawURL)
	if err == nil && res == nil {
		err = errors.New("no result")
	}
	return res, err
}

func validateURL(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("unsupported url %q", rawURL)
	}
	return nil
}

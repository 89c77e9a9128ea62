package extractor

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/samvad-hq/report-enhancer/internal/domain"
	"github.com/samvad-hq/report-enhancer/internal/logger"
	"github.com/samvad-hq/report-enhancer/pkg/command"
	"github.com/samvad-hq/report-enhancer/pkg/httpclient"
	"github.com/samvad-hq/report-enhancer/pkg/sites"
)

const (
	minHTMLBytes = 100

	standardTimeout = 30 * time.Second
	homepageTimeout = 30 * time.Second
	articleTimeout  = 45 * time.Second

	wgetTimeout = 30
	wgetTries   = 2

	// directTimeout bounds a hung wget; wget retries on its own.
	directTimeout = time.Duration(wgetTimeout*wgetTries+15) * time.Second
)

// Sleeper pauses for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the real Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// UniformJitter returns a duration drawn uniformly from [min, max].
func UniformJitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min+1)
}

type standardTechnique struct {
	client    httpclient.Client
	userAgent string
	sites     *sites.Registry
}

func (s *standardTechnique) Name() string { return domain.MethodStandard }

func (s *standardTechnique) Attempt(ctx context.Context, rawURL string) (*domain.ArticleResult, error) {
	ctx, cancel := context.WithTimeout(ctx, standardTimeout)
	defer cancel()

	headers := CommonHeaders(s.userAgent)
	if s.sites != nil {
		headers = mergeHeaders(headers, s.sites.Headers(rawURL))
	}
	resp, err := s.client.Get(ctx, rawURL, headers)
	if err != nil {
		return nil, fmt.Errorf("http fetch: %w", err)
	}
	return parseResponse(resp, rawURL)
}

type directTechnique struct {
	runner    command.Runner
	wget      string
	userAgent string
	tempDir   string
}

func (d *directTechnique) Name() string { return domain.MethodDirect }

func (d *directTechnique) Attempt(ctx context.Context, rawURL string) (*domain.ArticleResult, error) {
	tmp, err := os.CreateTemp(d.tempDir, "article-*.html")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	path := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(path)

	ctx, cancel := context.WithTimeout(ctx, directTimeout)
	defer cancel()

	args := []string{
		"--user-agent=" + d.userAgent,
		fmt.Sprintf("--timeout=%d", wgetTimeout),
		fmt.Sprintf("--tries=%d", wgetTries),
		"--quiet",
		"-O", path,
		rawURL,
	}
	res, err := d.runner.Run(ctx, command.Command{Path: d.wget, Args: args})
	if err != nil {
		return nil, fmt.Errorf("wget: %w (stderr: %s)", err, command.Snippet(res.Stderr, 200))
	}

	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wget output: %w", err)
	}
	if len(body) < minHTMLBytes {
		return nil, fmt.Errorf("wget output too short (%d bytes)", len(body))
	}
	return Parse(body, "", rawURL)
}

type advancedTechnique struct {
	newSession func() httpclient.Client
	userAgent  string
	sleep      Sleeper
	jitter     func(min, max time.Duration) time.Duration
	log        logger.Logger
}

func (a *advancedTechnique) Name() string { return domain.MethodAdvanced }

func (a *advancedTechnique) Attempt(ctx context.Context, rawURL string) (*domain.ArticleResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	origin := u.Scheme + "://" + u.Host
	session := a.newSession()
	headers := AdvancedHeaders(a.userAgent)

	// Homepage visit collects cookies; its failure does not stop the attempt.
	hctx, cancel := context.WithTimeout(ctx, homepageTimeout)
	_, err = session.Get(hctx, origin, headers)
	cancel()
	if err != nil {
		a.log.DebugObj("homepage visit failed", "extraction_attempt", map[string]any{
			"url":   origin,
			"error": err.Error(),
		})
	}

	if err := a.sleep(ctx, a.jitter(2*time.Second, 4*time.Second)); err != nil {
		return nil, err
	}

	headers["Referer"] = origin
	headers["Sec-Fetch-Site"] = "same-origin"
	headers["Purpose"] = "prefetch"
	headers["Sec-Purpose"] = "prefetch"

	actx, cancel := context.WithTimeout(ctx, articleTimeout)
	defer cancel()
	resp, err := session.Get(actx, rawURL, headers)
	if err != nil {
		return nil, fmt.Errorf("http fetch: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode())
	}

	if err := a.sleep(ctx, a.jitter(time.Second, 2*time.Second)); err != nil {
		return nil, err
	}
	return parseResponse(resp, rawURL)
}

func parseResponse(resp httpclient.Response, rawURL string) (*domain.ArticleResult, error) {
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode())
	}
	body := resp.Body()
	if len(body) < minHTMLBytes {
		return nil, fmt.Errorf("html too short (%d bytes)", len(body))
	}
	contentType := ""
	if h := resp.Header(); h != nil {
		contentType = strings.TrimSpace(h.Get("Content-Type"))
	}
	return Parse(body, contentType, rawURL)
}

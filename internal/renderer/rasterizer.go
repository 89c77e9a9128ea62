package renderer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/samvad-hq/report-enhancer/internal/logger"
	"github.com/samvad-hq/report-enhancer/pkg/command"
)

const (
	DefaultTimeout    = 120 * time.Second
	DefaultRuntimeDir = "/tmp/runtime-pdf"

	qtLoggingRules = "qt.qpa.xcb=false;*.debug=false"
	logSnippetSize = 500
)

// Rasterizer turns a prepared HTML document into PDF bytes.
type Rasterizer interface {
	Rasterize(ctx context.Context, doc string, includeImages bool) ([]byte, error)
}

// Wkhtmltopdf rasterizes through the wkhtmltopdf binary using file in, file out.
type Wkhtmltopdf struct {
	Path       string
	Timeout    time.Duration
	RuntimeDir string
	// TempDir holds the per-call input and output files; empty means os.TempDir().
	TempDir string
	Runner  command.Runner
	log     logger.Logger
}

// NewWkhtmltopdf returns a rasterizer with defaults applied for zero values.
func NewWkhtmltopdf(path string, timeout time.Duration, runtimeDir string, runner command.Runner, log logger.Logger) *Wkhtmltopdf {
	if path == "" {
		path = "wkhtmltopdf"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if runtimeDir == "" {
		runtimeDir = DefaultRuntimeDir
	}
	if runner == nil {
		runner = command.NewExecRunner()
	}
	return &Wkhtmltopdf{
		Path:       path,
		Timeout:    timeout,
		RuntimeDir: runtimeDir,
		Runner:     runner,
		log:        logger.Ensure(log),
	}
}

// Rasterize writes doc to a temporary file and converts it. Both temporary
// files are removed before returning, whatever the outcome.
func (w *Wkhtmltopdf) Rasterize(ctx context.Context, doc string, includeImages bool) ([]byte, error) {
	in, err := os.CreateTemp(w.TempDir, "render-*.html")
	if err != nil {
		return nil, fmt.Errorf("create html temp file: %w", err)
	}
	inPath := in.Name()
	defer os.Remove(inPath)
	if _, err := in.WriteString(doc); err != nil {
		in.Close()
		return nil, fmt.Errorf("write html temp file: %w", err)
	}
	if err := in.Close(); err != nil {
		return nil, fmt.Errorf("close html temp file: %w", err)
	}

	out, err := os.CreateTemp(w.TempDir, "render-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create pdf temp file: %w", err)
	}
	outPath := out.Name()
	defer os.Remove(outPath)
	out.Close()

	ctx, cancel := context.WithTimeout(ctx, w.Timeout)
	defer cancel()

	started := time.Now()
	res, runErr := w.Runner.Run(ctx, command.Command{
		Path: w.Path,
		Args: w.args(inPath, outPath, includeImages),
		Env:  w.env(),
	})
	meta := map[string]any{
		"exit_code":   res.ExitCode,
		"duration_ms": time.Since(started).Milliseconds(),
		"html_bytes":  len(doc),
	}
	if len(res.Stdout) > 0 {
		meta["stdout"] = command.Snippet(res.Stdout, logSnippetSize)
	}
	if len(res.Stderr) > 0 {
		meta["stderr"] = command.Snippet(res.Stderr, logSnippetSize)
	}
	if runErr != nil {
		meta["error"] = runErr.Error()
		w.log.WarnObj("wkhtmltopdf failed", "rasterize", meta)
		return nil, fmt.Errorf("wkhtmltopdf: %w", runErr)
	}
	w.log.DebugObj("wkhtmltopdf finished", "rasterize", meta)

	pdf, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read pdf output: %w", err)
	}
	if len(pdf) == 0 {
		return nil, fmt.Errorf("wkhtmltopdf produced an empty file")
	}
	return pdf, nil
}

func (w *Wkhtmltopdf) args(inPath, outPath string, includeImages bool) []string {
	args := []string{
		"--quiet",
		"--page-size", "A4",
		"--encoding", "UTF-8",
		"--enable-local-file-access",
		"--margin-top", "10mm",
		"--margin-right", "10mm",
		"--margin-bottom", "15mm",
		"--margin-left", "10mm",
		"--disable-javascript",
		"--load-error-handling", "ignore",
		"--load-media-error-handling", "ignore",
		"--no-stop-slow-scripts",
		"--disable-smart-shrinking",
	}
	if includeImages {
		args = append(args, "--images")
	} else {
		args = append(args, "--no-images")
	}
	return append(args, inPath, outPath)
}

// env builds the subprocess environment for one call. The process
// environment itself is never modified.
func (w *Wkhtmltopdf) env() []string {
	env := append(os.Environ(), "QT_LOGGING_RULES="+qtLoggingRules)
	if err := os.MkdirAll(w.RuntimeDir, 0o700); err != nil {
		w.log.WarnObj("runtime dir unavailable", "rasterize", map[string]any{
			"dir":   w.RuntimeDir,
			"error": err.Error(),
		})
		return env
	}
	return append(env, "XDG_RUNTIME_DIR="+w.RuntimeDir)
}

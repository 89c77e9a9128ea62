package domain

import (
	"strings"
	"time"
)

// Domain contains core models shared by the pipeline and the connector.

// MinTextLength is the trimmed text length an extraction must exceed to count.
const MinTextLength = 100

const summaryLength = 200

// Extraction technique tags recorded on ArticleResult.ExtractionMethod.
const (
	MethodStandard = "standard"
	MethodDirect   = "direct_wget"
	MethodAdvanced = "advanced"
)

// ArticleResult is the outcome of one extraction attempt.
type ArticleResult struct {
	Title            string     `json:"title,omitempty"`
	Text             string     `json:"text,omitempty"`
	HTML             string     `json:"-"`
	Authors          []string   `json:"authors,omitempty"`
	PublishDate      *time.Time `json:"publish_date,omitempty"`
	TopImage         string     `json:"top_image,omitempty"`
	Images           []string   `json:"images,omitempty"`
	Keywords         []string   `json:"keywords,omitempty"`
	Summary          string     `json:"summary,omitempty"`
	ExtractionMethod string     `json:"extraction_method,omitempty"`
	Error            string     `json:"error,omitempty"`
}

// Valid reports whether the result carries enough text to be used.
func (a *ArticleResult) Valid() bool {
	if a == nil {
		return false
	}
	return len([]rune(strings.TrimSpace(a.Text))) > MinTextLength
}

// PublishedDay renders the publish date as YYYY-MM-DD, or "" when unknown.
func (a *ArticleResult) PublishedDay() string {
	if a == nil || a.PublishDate == nil || a.PublishDate.IsZero() {
		return ""
	}
	return a.PublishDate.Format("2006-01-02")
}

// Summarize returns the first 200 characters of text with an ellipsis when truncated.
func Summarize(text string) string {
	r := []rune(text)
	if len(r) > summaryLength {
		return string(r[:summaryLength]) + "..."
	}
	return text
}

// Strategy selects the content-preparation transform applied before rasterizing.
type Strategy string

const (
	StrategyAuto    Strategy = "auto"
	StrategyExtract Strategy = "extract"
	StrategyMinimal Strategy = "minimal"
)

// ParseStrategy maps a config value to a Strategy, defaulting to auto.
func ParseStrategy(s string) Strategy {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyExtract:
		return StrategyExtract
	case StrategyMinimal:
		return StrategyMinimal
	default:
		return StrategyAuto
	}
}

// RenderRequest is the input to PDF rendering.
type RenderRequest struct {
	RawHTML        string
	SourceURL      string
	PreserveLayout bool
	IncludeImages  bool
	ImageQuality   int
	Strategy       Strategy
	// Article is an optional, already extracted article reused by the extract transform.
	Article *ArticleResult
}

// Quality clamps ImageQuality into 1-100.
func (r RenderRequest) Quality() int {
	switch {
	case r.ImageQuality < 1:
		return 1
	case r.ImageQuality > 100:
		return 100
	default:
		return r.ImageQuality
	}
}

// SiteClassification is derived per render call from the page HTML and URL.
type SiteClassification struct {
	IsTemplatedBlog bool
	Theme           string
}

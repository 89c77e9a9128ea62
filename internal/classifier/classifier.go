package classifier

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/samvad-hq/report-enhancer/internal/domain"
	"github.com/samvad-hq/report-enhancer/internal/logger"
)

const (
	maxDivTags      = 100
	maxScriptTags   = 15
	maxFamilyTags   = 50
	minDeepFamilies = 2
)

var (
	gridRe = regexp.MustCompile(`display\s*:\s*grid`)
	flexRe = regexp.MustCompile(`display\s*:\s*flex`)

	familyRes = []*regexp.Regexp{
		regexp.MustCompile(`<div[^>]*>`),
		regexp.MustCompile(`<section[^>]*>`),
		regexp.MustCompile(`<article[^>]*>`),
	}
)

// Classifier decides whether a page is a templated blog and which
// content-preparation strategy suits it.
type Classifier struct {
	denyList []string
	log      logger.Logger
}

// New builds a classifier with the given layout deny-list (domain fragments).
func New(denyList []string, log logger.Logger) *Classifier {
	cleaned := make([]string, 0, len(denyList))
	for _, d := range denyList {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			cleaned = append(cleaned, d)
		}
	}
	return &Classifier{denyList: cleaned, log: logger.Ensure(log)}
}

// IsTemplatedBlog runs the ordered signal battery; any single hit is enough.
func (c *Classifier) IsTemplatedBlog(html, url string) bool {
	name, ok := matchBlogSignal(html, url)
	if ok {
		c.log.DebugObj("templated blog detected", "classifier_signal", map[string]any{
			"url":    url,
			"signal": name,
		})
	}
	return ok
}

// Classify returns the per-call site classification.
func (c *Classifier) Classify(html, url string) domain.SiteClassification {
	sc := domain.SiteClassification{IsTemplatedBlog: c.IsTemplatedBlog(html, url)}
	if sc.IsTemplatedBlog {
		sc.Theme = DetectTheme(html)
	}
	return sc
}

// ChooseStrategy resolves auto into extract or minimal.
func (c *Classifier) ChooseStrategy(html, url string) domain.Strategy {
	if c.IsTemplatedBlog(html, url) {
		return domain.StrategyExtract
	}

	complexLayout := gridRe.MatchString(html) ||
		flexRe.MatchString(html) ||
		strings.Count(html, "<div") > maxDivTags ||
		strings.Count(html, "<script") > maxScriptTags

	nested := 0
	for _, re := range familyRes {
		if len(re.FindAllStringIndex(html, maxFamilyTags+1)) > maxFamilyTags {
			nested++
		}
	}

	domainMatch := c.matchesDenyList(url)

	strategy := domain.StrategyMinimal
	if (complexLayout && nested >= minDeepFamilies) || domainMatch {
		strategy = domain.StrategyExtract
	}
	c.log.DebugObj("strategy evaluated", "classifier_strategy", map[string]any{
		"url":            url,
		"complex_layout": complexLayout,
		"nested_level":   nested,
		"domain_match":   domainMatch,
		"strategy":       string(strategy),
	})
	return strategy
}

func (c *Classifier) matchesDenyList(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Host)
	for _, d := range c.denyList {
		if strings.Contains(host, d) {
			return true
		}
	}
	return false
}

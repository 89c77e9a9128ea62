package classifier

import (
	"regexp"
	"strings"
)

// signal is one weak templated-blog indicator. Signals are evaluated in order
// and the first hit decides.
type signal struct {
	name  string
	match func(html, url string) bool
}

var (
	generatorRe  = regexp.MustCompile(`(?i)<meta[^>]*name=["']generator["'][^>]*content=["']WordPress`)
	resourceRe   = regexp.MustCompile(`wp-(?:content|includes)`)
	bloggerImgRe = regexp.MustCompile(`blogger\.googleusercontent\.com/img/`)
	permalinkRe  = regexp.MustCompile(`/(20\d{2})/(0[1-9]|1[0-2])/[\w-]+\.html`)
	mdLinkRe     = regexp.MustCompile(`\[[\w\s]+\]\(https?://[^\)]+\)`)
	themeRe      = regexp.MustCompile(`wp-content/themes/([^/]+)`)

	blogClassFragments = []string{
		"wp-block-", "entry-content", "post-content", "the-content",
		"widget-area", "site-header", "site-footer", "wp-caption",
	}
	blogClassRes = compileClassPatterns(blogClassFragments)

	structureRes = compileAll(
		`(?i)<article[^>]*class=["'][^"']*(?:post|entry|blog-post)`,
		`(?i)<h\d[^>]*class=["'][^"']*(?:post-title|entry-title)`,
		`(?i)<div[^>]*class=["'][^"']*(?:post-meta|entry-meta)`,
		`(?i)<div[^>]*id=["'](?:comments|respond)`,
		`(?i)<div[^>]*class=["'][^"']*(?:share-buttons|social-share)`,
		`(?i)<link[^>]*rel=["']alternate["'][^>]*type=["']application/(?:rss\+xml|atom\+xml)`,
	)
	scriptRes = compileAll(
		`wp-embed\.min\.js`,
		`wp-emoji-release\.min\.js`,
		`jquery/jquery\.js\?ver=`,
		`wp-includes/js/`,
		`_wpnonce`,
	)
	blockRes = compileAll(
		`(?is)<div[^>]*(?:author|byline)[^>]*>.*?</div>`,
		`(?is)<div[^>]*(?:related|more-stories)[^>]*>.*?</div>`,
		`(?is)<div[^>]*(?:meta|article-info)[^>]*>.*?</div>`,
	)
	chromeRes = compileAll(
		`(?i)<header[^>]*class=["'][^"']*(?:site-header|main-header)`,
		`(?i)<footer[^>]*class=["'][^"']*(?:site-footer|main-footer)`,
		`(?i)<div[^>]*class=["'][^"']*(?:copyright|site-info)`,
	)
)

var blogSignals = []signal{
	{name: "meta_generator", match: func(h, _ string) bool { return generatorRe.MatchString(h) }},
	{name: "resource_path", match: func(h, _ string) bool { return resourceRe.MatchString(h) }},
	{name: "theme_class", match: func(h, _ string) bool { return anyMatch(blogClassRes, h) }},
	{name: "url_path", match: func(_, u string) bool {
		return strings.Contains(u, "/wp-content/") || strings.Contains(u, "/wp-includes/")
	}},
	{name: "blogger_image", match: func(h, _ string) bool { return bloggerImgRe.MatchString(h) }},
	{name: "permalink", match: func(_, u string) bool { return u != "" && permalinkRe.MatchString(u) }},
	{name: "article_structure", match: func(h, _ string) bool { return anyMatch(structureRes, h) }},
	{name: "script_fingerprint", match: func(h, _ string) bool { return anyMatch(scriptRes, h) }},
	{name: "markdown_link", match: func(h, _ string) bool { return mdLinkRe.MatchString(h) }},
	{name: "byline_block", match: func(h, _ string) bool { return anyMatch(blockRes, h) }},
	{name: "header_footer", match: func(h, _ string) bool { return anyMatch(chromeRes, h) }},
}

// matchBlogSignal returns the name of the first matching signal.
func matchBlogSignal(html, url string) (string, bool) {
	for _, s := range blogSignals {
		if s.match(html, url) {
			return s.name, true
		}
	}
	return "", false
}

// DetectTheme returns the theme directory name referenced by the page, if any.
func DetectTheme(html string) string {
	if m := themeRe.FindStringSubmatch(html); len(m) == 2 {
		return m[1]
	}
	return ""
}

func compileClassPatterns(fragments []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(fragments))
	for _, f := range fragments {
		out = append(out, regexp.MustCompile(`class=["'][^"']*`+regexp.QuoteMeta(f)))
	}
	return out
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

func anyMatch(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

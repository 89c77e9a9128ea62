package sanitizer

import (
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/samvad-hq/report-enhancer/internal/classifier"
)

var (
	blogBoilerplate = []string{
		".comments-area", "#comments", ".comment-respond",
		".sidebar", ".widget-area", ".widgets-list",
		".related-posts", ".yarpp", ".jp-relatedposts",
		".sharedaddy", ".share-buttons", ".social-share",
		".post-navigation", ".nav-links", ".prev-next",
		".advertisement", ".adsbygoogle", `[id*="gpt"]`, `[class*="ads-"]`,
		".popup", ".modal", ".cookie-notice", ".gdpr",
		"script", `iframe[src*="ads"]`, `iframe[src*="doubleclick"]`,
	}
	blogMainSelectors = []string{
		"article.post",
		"article .entry-content",
		".post-content",
		".post .entry-content",
		".the-content",
		"#content .post",
		".entry-content",
		"article",
		".post",
		".content",
		"main",
		".main-content",
		"#primary",
		".site-content article",
	}
	blogTitleSelectors  = []string{"h1.entry-title", "h1.post-title", ".post h1", "h1.title", "header h1"}
	blogDateSelectors   = []string{".posted-on time", ".entry-date", ".post-date", "time.entry-date", "meta time"}
	blogAuthorSelectors = []string{".author", ".byline", ".post-author", ".entry-author"}
	blogImageSelectors  = []string{".post-thumbnail img", ".featured-image img", ".post-image img", "article img:first-child"}

	authorPrefixRe = regexp.MustCompile(`(?i)^(By|Posted by|Author:?)\s*`)
	shortcodeRe    = regexp.MustCompile(`\[/?[a-zA-Z0-9_-]+(?:\s[^\]]+)?\]`)
)

// RebuildTemplatedBlog rebuilds a blog page around its main content region
// with a theme-like stylesheet. When no main region is found the input is
// returned unchanged.
func RebuildTemplatedBlog(src, pageURL string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return src
	}
	base, _ := url.Parse(pageURL)

	doc.Find(strings.Join(blogBoilerplate, ", ")).Remove()

	theme := classifier.DetectTheme(src)
	region := firstMatch(doc, mainSelectorsFor(theme))
	if region == nil {
		return src
	}

	title := firstText(doc, blogTitleSelectors)
	if title == "" {
		title = "Article"
	}
	published := firstText(doc, blogDateSelectors)
	author := authorPrefixRe.ReplaceAllString(firstText(doc, blogAuthorSelectors), "")
	author = strings.TrimSpace(author)

	featured := ""
	if img := firstMatch(doc, blogImageSelectors); img != nil {
		if srcAttr, ok := img.Attr("src"); ok {
			img.SetAttr("src", resolve(base, srcAttr))
		}
		featured, _ = goquery.OuterHtml(img)
	}

	region.Find("img").Each(func(_ int, img *goquery.Selection) {
		srcAttr := strings.TrimSpace(img.AttrOr("src", ""))
		if srcAttr == "" {
			srcAttr = strings.TrimSpace(img.AttrOr("data-src", ""))
		}
		if srcAttr != "" {
			img.SetAttr("src", resolve(base, srcAttr))
		}
		img.SetAttr("style", "max-width: 100%; height: auto;")
	})
	region.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := a.AttrOr("href", "")
		if strings.HasPrefix(href, "#") || strings.HasPrefix(href, "mailto:") {
			return
		}
		a.SetAttr("href", resolve(base, href))
	})

	mainHTML, err := goquery.OuterHtml(region)
	if err != nil {
		return src
	}
	mainHTML = shortcodeRe.ReplaceAllString(mainHTML, "")

	bodyTheme := theme
	if bodyTheme == "" {
		bodyTheme = "default"
	}
	safeTitle := html.EscapeString(title)
	safeURL := html.EscapeString(pageURL)

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	b.WriteString(`<meta charset="UTF-8">` + "\n")
	b.WriteString("<title>" + safeTitle + "</title>\n")
	b.WriteString(themeCSS(theme) + "\n</head>\n")
	b.WriteString(`<body class="wordpress-theme ` + html.EscapeString(bodyTheme) + `">` + "\n")
	b.WriteString(`<div id="page" class="site">` + "\n" + `<div id="content" class="site-content">` + "\n")
	b.WriteString(`<article class="post">` + "\n")
	b.WriteString(`<header class="entry-header">` + "\n")
	b.WriteString(`<h1 class="entry-title">` + safeTitle + "</h1>\n")
	b.WriteString(`<div class="entry-meta">`)
	if published != "" {
		b.WriteString(`<span class="posted-on">` + html.EscapeString(published) + "</span>")
	}
	if author != "" {
		b.WriteString(`<span class="byline">` + html.EscapeString(author) + "</span>")
	}
	b.WriteString("</div>\n</header>\n")
	if featured != "" {
		b.WriteString(`<div class="post-thumbnail">` + featured + "</div>\n")
	}
	b.WriteString(`<div class="entry-content">` + "\n" + mainHTML + "\n</div>\n")
	b.WriteString(`<footer class="entry-footer">` + "\n")
	b.WriteString(`<div class="source-link">Source: <a href="` + safeURL + `">` + safeURL + "</a></div>\n")
	b.WriteString("</footer>\n</article>\n</div>\n</div>\n</body>\n</html>\n")
	return b.String()
}

// mainSelectorsFor prepends theme-specific content selectors.
func mainSelectorsFor(theme string) []string {
	var extra []string
	switch {
	case twentyTwentyThemes[theme]:
		extra = []string{"article .entry", ".entry-content"}
	case builderThemes[theme]:
		extra = []string{".content-area", ".ast-article-single"}
	}
	return append(extra, blogMainSelectors...)
}

func firstMatch(doc *goquery.Document, selectors []string) *goquery.Selection {
	for _, sel := range selectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return s
		}
	}
	return nil
}

func firstText(doc *goquery.Document, selectors []string) string {
	if s := firstMatch(doc, selectors); s != nil {
		return strings.Join(strings.Fields(s.Text()), " ")
	}
	return ""
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if base == nil || ref == "" || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(r).String()
}

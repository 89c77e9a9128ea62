package sanitizer

import (
	"html"
	"net/url"
	"regexp"
	"strings"
)

var (
	cleanRemovals = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<div[^>]*(?:\bads?\b|advert|banner|sponsor|promo)[^>]*>.*?</div>`),
		regexp.MustCompile(`(?is)<aside[^>]*>.*?</aside>`),
		regexp.MustCompile(`(?is)<div[^>]*(?:social|share|related|recommend)[^>]*>.*?</div>`),
		regexp.MustCompile(`(?is)<iframe[^>]*(?:\bads?\b|advert|banner)[^>]*>.*?</iframe>`),
	}
	displayRe  = regexp.MustCompile(`display\s*:\s*(?:grid|flex)[^;]*;`)
	positionRe = regexp.MustCompile(`position\s*:\s*(?:fixed|sticky)[^;]*;`)
	scriptRe   = regexp.MustCompile(`(?s)<script\b[^>]*>.*?</script>`)
	handlerRe  = regexp.MustCompile(` (?:onclick|onload|onscroll|onmouseover|onmouseout)="[^"]*"`)

	trackingScriptRe = regexp.MustCompile(`(?is)<script[^>]*(?:google-analytics|gtm\.js|facebook|twitter|ads|analytics|tracker)[^>]*>.*?</script>`)
	embedIframeRe    = regexp.MustCompile(`(?is)<iframe[^>]*(?:advertisement|ads|youtube|vimeo)[^>]*>.*?</iframe>`)
	imgTagRe         = regexp.MustCompile(`(?is)<img\b[^>]*>`)

	htmlWrapperRe = regexp.MustCompile(`(?is)<html.*?>.*?</html>`)
	htmlOpenRe    = regexp.MustCompile(`(?i)<html(?:\s[^>]*)?>`)
	headOpenRe    = regexp.MustCompile(`(?i)<head(?:\s[^>]*)?>`)
	headBlockRe   = regexp.MustCompile(`(?is)<head(?:\s[^>]*)?>(.*?)</head>`)
	bodyBlockRe   = regexp.MustCompile(`(?is)<body([^>]*)>(.*?)</body>`)
	headCloseRe   = regexp.MustCompile(`(?i)</head>`)
	bodyCloseRe   = regexp.MustCompile(`(?i)</body>`)
)

// Minimal cleans a page in place and normalizes it for rasterizing.
func Minimal(doc, pageURL string, includeImages bool) string {
	return PrepareLayout(CleanLayout(doc), pageURL, includeImages)
}

// CleanLayout strips ad, sidebar and social containers plus inline scripts and
// event handlers, and flattens grid/flex and fixed/sticky positioning.
func CleanLayout(doc string) string {
	for _, re := range cleanRemovals {
		doc = re.ReplaceAllString(doc, "")
	}
	doc = displayRe.ReplaceAllString(doc, "display: block;")
	doc = positionRe.ReplaceAllString(doc, "position: static;")
	doc = scriptRe.ReplaceAllString(doc, "")
	doc = handlerRe.ReplaceAllString(doc, "")
	return doc
}

// PrepareLayout drops tracking scripts and embeds, then makes sure the page has
// an html/head/body wrapper carrying a base tag, the PDF stylesheet and a
// source footer.
func PrepareLayout(doc, pageURL string, includeImages bool) string {
	if doc == "" {
		return doc
	}
	lower := strings.ToLower(doc)
	hasHTML := htmlWrapperRe.MatchString(doc)
	hasHead := headOpenRe.MatchString(doc) && strings.Contains(lower, "</head>")
	hasBody := strings.Contains(lower, "<body") && strings.Contains(lower, "</body>")

	doc = trackingScriptRe.ReplaceAllString(doc, "")
	doc = embedIframeRe.ReplaceAllString(doc, "")
	if !includeImages {
		doc = imgTagRe.ReplaceAllString(doc, "")
	}

	base := baseTag(pageURL)
	footer := ""
	if pageURL != "" {
		footer = `<div class="pdf-footer">Source: ` + html.EscapeString(pageURL) + "</div>\n"
	}

	if !hasHTML {
		return wrapDocument(doc, pageURL, base, footer, hasHead, hasBody)
	}

	if hasHead {
		if base != "" && !strings.Contains(strings.ToLower(doc), "<base") {
			doc = insertBefore(doc, headCloseRe, base+"\n", false)
		}
		doc = insertBefore(doc, headCloseRe, pdfCSS+"\n", false)
	} else {
		head := "<head>\n" + `<meta charset="UTF-8">` + "\n"
		if base != "" {
			head += base + "\n"
		}
		doc = insertAfter(doc, htmlOpenRe, head+pdfCSS+"\n</head>\n")
	}
	if hasBody && footer != "" {
		doc = insertBefore(doc, bodyCloseRe, footer, true)
	}
	return doc
}

func wrapDocument(doc, pageURL, base, footer string, hasHead, hasBody bool) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")

	headContent := ""
	if hasHead {
		if m := headBlockRe.FindStringSubmatch(doc); m != nil {
			headContent = m[1]
		}
	}
	if !strings.Contains(strings.ToLower(headContent), "<meta charset") {
		b.WriteString(`  <meta charset="UTF-8">` + "\n")
	}
	if !strings.Contains(headContent, `<meta name="viewport"`) {
		b.WriteString(`  <meta name="viewport" content="width=device-width, initial-scale=1.0">` + "\n")
	}
	if !hasHead {
		title := "Article"
		if pageURL != "" {
			title = "Article from " + pageURL
		}
		b.WriteString("  <title>" + html.EscapeString(title) + "</title>\n")
	}
	if base != "" {
		b.WriteString(base + "\n")
	}
	if headContent != "" {
		b.WriteString(headContent + "\n")
	}
	b.WriteString(pdfCSS + "\n</head>\n")

	if m := bodyBlockRe.FindStringSubmatch(doc); hasBody && m != nil {
		b.WriteString("<body" + m[1] + ">\n" + m[2] + "\n")
	} else {
		b.WriteString("<body>\n" + headBlockRe.ReplaceAllString(doc, "") + "\n")
	}
	b.WriteString(footer)
	b.WriteString("</body>\n</html>")
	return b.String()
}

// baseTag returns <base href="scheme://host/"> for absolute URLs.
func baseTag(pageURL string) string {
	u, err := url.Parse(strings.TrimSpace(pageURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return `<base href="` + html.EscapeString(u.Scheme+"://"+u.Host) + `/">`
}

// insertBefore places snippet before the first (or last) match of re; the
// document is returned unchanged when there is no match.
func insertBefore(doc string, re *regexp.Regexp, snippet string, last bool) string {
	locs := re.FindAllStringIndex(doc, -1)
	if len(locs) == 0 {
		return doc
	}
	at := locs[0][0]
	if last {
		at = locs[len(locs)-1][0]
	}
	return doc[:at] + snippet + doc[at:]
}

// insertAfter places snippet right after the first match of re.
func insertAfter(doc string, re *regexp.Regexp, snippet string) string {
	loc := re.FindStringIndex(doc)
	if loc == nil {
		return doc
	}
	return doc[:loc[1]] + snippet + doc[loc[1]:]
}

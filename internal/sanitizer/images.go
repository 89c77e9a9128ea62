package sanitizer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	preserveClass = "content-image-preserve"
	preserveStyle = "max-width: 100% !important; height: auto !important;"
	minImageWidth = 50
)

var (
	contentRegions = `article, .article, .content, main, .main, .post, .entry, [itemprop="articleBody"], .story`
	adImageRe      = regexp.MustCompile(`\bads?\b|banner|icon|logo`)
)

// ProtectImages tags content images inside article-like regions so later
// stylesheets keep them visible and scaled. Small images and ad, banner,
// icon or logo images are left alone. Unparseable input is returned as is.
func ProtectImages(src string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return src
	}

	doc.Find(contentRegions).Find("img").Each(func(_ int, img *goquery.Selection) {
		class := img.AttrOr("class", "")
		if strings.Contains(class, preserveClass) {
			return
		}
		if w, err := strconv.Atoi(strings.TrimSpace(img.AttrOr("width", ""))); err == nil && w < minImageWidth {
			return
		}
		if adImageRe.MatchString(strings.ToLower(class)) || adImageRe.MatchString(strings.ToLower(img.AttrOr("src", ""))) {
			return
		}

		img.SetAttr("class", strings.TrimSpace(class+" "+preserveClass))
		style := strings.TrimSpace(img.AttrOr("style", ""))
		if style != "" && !strings.HasSuffix(style, ";") {
			style += ";"
		}
		img.SetAttr("style", strings.TrimSpace(style+" "+preserveStyle))
	})

	out, err := doc.Html()
	if err != nil {
		return src
	}
	return out
}

package sanitizer

import (
	"html"
	"net/url"
	"strings"
)

const maxInlineImages = 5

const paragraphEnd = "</p>\n"

// Extract builds a standalone article document from extracted fields. The
// output depends only on its arguments.
func Extract(title, text, topImage string, images []string, pageURL string, includeImages bool) string {
	var content strings.Builder
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			content.WriteString("<p>" + html.EscapeString(p) + paragraphEnd)
		}
	}
	body := content.String()
	if includeImages && len(images) > 0 {
		body = interleaveImages(body, topImage, images, pageURL)
	}

	if strings.TrimSpace(title) == "" {
		title = "Article"
	}
	safeTitle := html.EscapeString(title)
	source := "Unknown source"
	if pageURL != "" {
		source = html.EscapeString(pageURL)
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	b.WriteString(`<meta charset="UTF-8">` + "\n")
	b.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1.0">` + "\n")
	b.WriteString("<title>" + safeTitle + "</title>\n")
	b.WriteString(articleCSS + "\n</head>\n<body>\n")
	b.WriteString(`<div class="article-container">` + "\n")
	b.WriteString(`<h1 class="article-title">` + safeTitle + "</h1>\n")
	if topImage != "" && includeImages {
		b.WriteString(`<img src="` + html.EscapeString(topImage) + `" alt="` + safeTitle + `" class="main-image" />` + "\n")
	}
	b.WriteString(`<div class="article-content">` + "\n" + body + "</div>\n")
	b.WriteString(`<div class="article-footer">Source: ` + source + "</div>\n")
	b.WriteString("</div>\n</body>\n</html>\n")
	return b.String()
}

// interleaveImages inserts up to five images (other than the top image) at
// offsets proportional to the body length, moved forward to the next
// paragraph end so no image splits a paragraph.
func interleaveImages(body, topImage string, images []string, pageURL string) string {
	used := map[string]bool{}
	if topImage != "" {
		used[topImage] = true
	}
	base, _ := url.Parse(pageURL)

	count := 0
	for _, img := range images {
		if count >= maxInlineImages {
			break
		}
		img = strings.TrimSpace(img)
		if img == "" || used[img] {
			continue
		}
		abs := img
		if pageURL != "" && base != nil && !strings.HasPrefix(img, "http://") && !strings.HasPrefix(img, "https://") {
			if ref, err := url.Parse(img); err == nil {
				abs = base.ResolveReference(ref).String()
			}
		}
		if used[abs] {
			continue
		}

		n := len(body)
		pos := 0
		if n > 0 {
			pos = min(n/2+count*(n/10), n-1)
		}
		pos = snapToParagraph(body, pos)
		tag := `<img src="` + html.EscapeString(abs) + `" alt="" class="article-image" />` + "\n"
		body = body[:pos] + tag + body[pos:]

		used[img] = true
		used[abs] = true
		count++
	}
	return body
}

// snapToParagraph returns the first line boundary at or after pos.
func snapToParagraph(body string, pos int) int {
	if pos <= 0 || body[pos-1] == '\n' {
		return max(pos, 0)
	}
	idx := strings.Index(body[pos:], paragraphEnd)
	if idx < 0 {
		return len(body)
	}
	return pos + idx + len(paragraphEnd)
}

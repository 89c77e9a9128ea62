package extractor

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	readability "github.com/go-shiori/go-readability"
	"github.com/samvad-hq/report-enhancer/internal/domain"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/unicode/norm"
)

var (
	bylinePrefixRe = regexp.MustCompile(`(?i)^(by|posted by|written by|author:?)\s+`)
	authorSplitRe  = regexp.MustCompile(`\s*(?:,|&|\band\b)\s*`)
)

var blockTags = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Li: true, atom.Ul: true, atom.Ol: true, atom.Dd: true, atom.Dt: true,
	atom.Blockquote: true, atom.Pre: true, atom.Table: true, atom.Tr: true,
	atom.Header: true, atom.Footer: true, atom.Figure: true, atom.Figcaption: true,
}

// Parse turns a fetched page into an ArticleResult. contentType may be empty,
// in which case the encoding is sniffed from the document.
func Parse(raw []byte, contentType, pageURL string) (*domain.ArticleResult, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	decoded, err := decode(raw, contentType)
	if err != nil {
		return nil, err
	}

	article, err := readability.FromReader(strings.NewReader(decoded), base)
	if err != nil {
		return nil, fmt.Errorf("readability: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(decoded))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	meta := readMeta(doc)

	text := contentText(article.Content)
	if text == "" {
		text = strings.TrimSpace(article.TextContent)
	}
	text = norm.NFC.String(text)

	res := &domain.ArticleResult{
		Title:       norm.NFC.String(firstNonEmpty(strings.TrimSpace(article.Title), meta.title)),
		Text:        text,
		HTML:        decoded,
		Authors:     authors(article.Byline, meta.authors),
		PublishDate: publishDate(article.PublishedTime, meta.published),
		TopImage:    absolute(base, firstNonEmpty(article.Image, meta.image)),
		Images:      collectImages(doc, base),
		Keywords:    meta.keywords,
		Summary:     domain.Summarize(text),
	}
	return res, nil
}

func decode(raw []byte, contentType string) (string, error) {
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	r, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return "", fmt.Errorf("decode charset: %w", err)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decode charset: %w", err)
	}
	return string(b), nil
}

// contentText flattens readability's content tree into paragraphs separated
// by a blank line.
func contentText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	root, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return ""
	}

	var paras []string
	var buf strings.Builder
	flush := func() {
		if t := strings.Join(strings.Fields(buf.String()), " "); t != "" {
			paras = append(paras, t)
		}
		buf.Reset()
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			buf.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			case atom.Br:
				buf.WriteString(" ")
				return
			}
		}
		block := n.Type == html.ElementNode && blockTags[n.DataAtom]
		if block {
			flush()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			flush()
		}
	}
	walk(root)
	flush()
	return strings.Join(paras, "\n\n")
}

type pageMeta struct {
	title     string
	image     string
	published string
	authors   []string
	keywords  []string
}

func readMeta(doc *goquery.Document) pageMeta {
	content := func(sel string) string {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			if val, ok := node.Attr("content"); ok {
				return strings.TrimSpace(val)
			}
		}
		return ""
	}
	all := func(sel string) []string {
		var out []string
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if v := strings.TrimSpace(s.AttrOr("content", "")); v != "" {
				out = append(out, v)
			}
		})
		return out
	}

	pm := pageMeta{
		title: firstNonEmpty(
			content(`meta[property="og:title"]`),
			strings.TrimSpace(doc.Find("title").First().Text()),
		),
		image: firstNonEmpty(
			content(`meta[property="og:image"]`),
			content(`meta[name="twitter:image"]`),
		),
		published: firstNonEmpty(
			content(`meta[property="article:published_time"]`),
			content(`meta[name="pubdate"]`),
			content(`meta[itemprop="datePublished"]`),
			strings.TrimSpace(doc.Find("time[datetime]").First().AttrOr("datetime", "")),
		),
	}
	pm.authors = append(all(`meta[name="author"]`), all(`meta[property="article:author"]`)...)

	var keywords []string
	for _, v := range all(`meta[name="keywords"]`) {
		keywords = append(keywords, strings.Split(v, ",")...)
	}
	keywords = append(keywords, all(`meta[property="article:tag"]`)...)
	pm.keywords = dedupe(keywords)
	return pm
}

func authors(byline string, metaAuthors []string) []string {
	var names []string
	byline = bylinePrefixRe.ReplaceAllString(strings.TrimSpace(byline), "")
	if byline != "" {
		names = append(names, authorSplitRe.Split(byline, -1)...)
	}
	for _, a := range metaAuthors {
		if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
			continue
		}
		names = append(names, a)
	}
	return dedupe(names)
}

func publishDate(parsed *time.Time, raw string) *time.Time {
	if parsed != nil && !parsed.IsZero() {
		d := day(*parsed)
		return &d
	}
	if raw == "" {
		return nil
	}
	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return nil
	}
	d := day(t)
	return &d
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// collectImages returns every image URL on the page, absolute, duplicates kept.
func collectImages(doc *goquery.Document, base *url.URL) []string {
	var out []string
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" {
			src = strings.TrimSpace(s.AttrOr("data-src", ""))
		}
		if src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		out = append(out, absolute(base, src))
	})
	return out
}

func absolute(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || base == nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(r).String()
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

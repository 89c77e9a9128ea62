package sanitizer

// pdfCSS is injected into layout-preserving documents.
const pdfCSS = `<style>
@page { size: A4; margin: 10mm 10mm 15mm 10mm; }
a { color: inherit; text-decoration: inherit; }
img { max-width: 100%; height: auto; page-break-inside: avoid; }
h1, h2, h3, h4, h5, h6 { page-break-after: avoid; page-break-inside: avoid; }
table { border-collapse: collapse; width: 100%; page-break-inside: avoid; }
.pdf-footer { text-align: center; font-size: 9pt; color: #666; margin-top: 20px; padding-top: 10px; border-top: 1px solid #ccc; }
</style>`

// articleCSS styles documents rebuilt from extracted fields.
const articleCSS = `<style>
@page { size: A4; margin: 10mm 10mm 15mm 10mm; }
body { font-family: Arial, Helvetica, sans-serif; font-size: 12pt; line-height: 1.5; color: #000; background-color: #fff; margin: 0; padding: 20px; }
.article-container { max-width: 100%; margin: 0 auto; }
.article-title { font-size: 24pt; font-weight: bold; margin-bottom: 20px; line-height: 1.2; color: #333; }
.main-image { max-width: 100%; height: auto; margin: 20px 0; display: block; }
.article-content { margin-top: 20px; font-size: 12pt; line-height: 1.6; }
.article-content p { margin: 12px 0; }
.article-content img { max-width: 100%; height: auto; margin: 15px 0; display: block; }
.article-footer { margin-top: 30px; padding-top: 10px; border-top: 1px solid #ccc; font-size: 10pt; color: #666; text-align: center; }
</style>`

// repairMarker identifies the layout-repair block so injection runs once.
const repairMarker = `data-layout-repair`

const repairCSS = `<style ` + repairMarker + `="true">
article, .article, main, .main, .content, .post, .entry, [itemprop="articleBody"], .story {
  display: block !important; width: 100% !important; max-width: 100% !important;
  position: static !important; overflow: visible !important; padding: 10px 0 !important;
  margin: 0 auto !important; float: none !important;
}
.content-image-preserve { display: block !important; max-width: 90% !important; height: auto !important; margin: 10px auto !important; page-break-inside: avoid !important; }
h1, h2, h3 { page-break-after: avoid !important; margin-top: 20px !important; margin-bottom: 10px !important; }
p { margin: 10px 0 !important; line-height: 1.5 !important; }
img { page-break-inside: avoid !important; }
.pdf-footer { text-align: center; font-size: 9pt; color: #666; margin-top: 20px; padding-top: 10px; border-top: 1px solid #ccc; }
</style>`

const blogBaseCSS = `<style>
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Oxygen-Sans, Ubuntu, Cantarell, "Helvetica Neue", sans-serif; font-size: 16px; line-height: 1.8; color: #333; margin: 0; padding: 0; background: #fff; }
#page { max-width: 1200px; margin: 0 auto; padding: 2em; }
#content { width: 100%; }
.entry-title { font-size: 2.5em; line-height: 1.2; margin-bottom: 0.5em; color: #222; font-weight: 700; }
.entry-meta { font-size: 0.9em; color: #666; margin-bottom: 2em; }
.byline, .posted-on { margin-right: 1em; }
.post-thumbnail { margin-bottom: 2em; text-align: center; }
.post-thumbnail img { max-width: 100%; height: auto; border-radius: 4px; }
.entry-content { font-size: 1.1em; line-height: 1.8; }
.entry-content p { margin-bottom: 1.5em; }
.entry-content h2 { font-size: 1.8em; margin-top: 1.5em; margin-bottom: 0.8em; padding-bottom: 0.3em; border-bottom: 1px solid #eee; }
.entry-content h3 { font-size: 1.5em; margin-top: 1.5em; margin-bottom: 0.8em; }
.entry-content ul, .entry-content ol { margin-bottom: 1.5em; padding-left: 2em; }
.entry-content li { margin-bottom: 0.5em; }
.entry-content a { color: #0066cc; text-decoration: none; }
.entry-content img { max-width: 100%; height: auto; margin: 1.5em 0; border-radius: 4px; }
.entry-content blockquote { border-left: 4px solid #eee; padding-left: 1.5em; margin-left: 0; color: #666; font-style: italic; }
.entry-content pre, .entry-content code { background: #f5f5f5; border-radius: 3px; padding: 0.2em 0.4em; font-family: monospace; }
.entry-content pre { padding: 1em; overflow-x: auto; }
.entry-footer { margin-top: 3em; padding-top: 1em; border-top: 1px solid #eee; font-size: 0.9em; color: #666; }
.source-link { margin-top: 1em; }
@page { margin: 1.5cm; }
@media print {
  body { font-size: 12pt; }
  a { text-decoration: none; color: #000; }
  .entry-title { font-size: 24pt; }
  .entry-content { font-size: 12pt; }
}
</style>`

const twentyTwentyCSS = `<style>
body.wordpress-theme { font-family: "Inter", -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Oxygen-Sans, Ubuntu, Cantarell, "Helvetica Neue", sans-serif; }
.entry-title { font-weight: 800; }
.entry-content h2 { font-weight: 700; }
</style>`

const astraCSS = `<style>
body.wordpress-theme { font-size: 17px; line-height: 1.7; }
.entry-title { font-weight: 600; }
</style>`

var (
	twentyTwentyThemes = map[string]bool{"twentytwenty": true, "twentytwentyone": true, "twentytwentytwo": true}
	builderThemes      = map[string]bool{"astra": true, "generatepress": true, "oceanwp": true}
)

// themeCSS returns the base blog stylesheet tinted for known themes.
func themeCSS(theme string) string {
	switch {
	case twentyTwentyThemes[theme]:
		return blogBaseCSS + "\n" + twentyTwentyCSS
	case theme == "astra" || theme == "generatepress":
		return blogBaseCSS + "\n" + astraCSS
	default:
		return blogBaseCSS
	}
}

package sanitizer

import "strings"

const (
	minAlnumDensity = 0.05
	maxDocumentSize = 500000
)

var contentContainers = []string{`<article`, `<div class="content"`, `<div class="article"`, `<main`}

// QualityOK reports whether a minimal-cleaned document looks usable: enough
// alphanumeric text, a recognizable content container and a sane size.
func QualityOK(doc string) bool {
	alnum := 0
	for i := 0; i < len(doc); i++ {
		c := doc[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') {
			alnum++
		}
	}
	if float64(alnum)/float64(max(len(doc), 1)) < minAlnumDensity {
		return false
	}

	found := false
	for _, c := range contentContainers {
		if strings.Contains(doc, c) {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	return len(doc) <= maxDocumentSize
}

// InjectRepairCSS adds the layout-repair stylesheet right before </head>.
// Documents that already carry it, or have no </head>, are returned unchanged.
func InjectRepairCSS(doc string) string {
	if strings.Contains(doc, repairMarker) {
		return doc
	}
	return insertBefore(doc, headCloseRe, repairCSS, false)
}

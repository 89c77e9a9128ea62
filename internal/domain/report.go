package domain

import "strings"

// Report is a platform report entity as seen by the connector.
type Report struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	ReportTypes  []string `json:"report_types"`
	Labels       []Label  `json:"labels"`
	ExternalURLs []string `json:"external_urls"`
}

// Label is a platform label attached to a report.
type Label struct {
	ID    string `json:"id"`
	Value string `json:"value"`
	Color string `json:"color"`
}

// SourceURL returns the first external reference that points at a public article.
func (r Report) SourceURL() string {
	for _, u := range r.ExternalURLs {
		u = strings.TrimSpace(u)
		if u == "" || strings.HasPrefix(u, "http://localhost") || strings.Contains(u, "storage/get") {
			continue
		}
		return u
	}
	return ""
}

// HasLabel reports whether the report carries a label with the given value.
func (r Report) HasLabel(value string) bool {
	for _, l := range r.Labels {
		if l.Value == value {
			return true
		}
	}
	return false
}

// NormalizedTypes returns the report types lower-cased and trimmed.
func (r Report) NormalizedTypes() []string {
	out := make([]string, 0, len(r.ReportTypes))
	for _, t := range r.ReportTypes {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// DisplayName falls back to a placeholder for unnamed reports.
func (r Report) DisplayName() string {
	if strings.TrimSpace(r.Name) == "" {
		return "Unknown report"
	}
	return r.Name
}

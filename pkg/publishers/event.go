package publishers

import "time"

// EventReportEnhanced is emitted once per processed report.
const EventReportEnhanced = "report.enhanced"

// Event represents the payload published downstream.
type Event struct {
	Type             string    `json:"type"`
	ReportID         string    `json:"report_id"`
	ReportName       string    `json:"report_name"`
	SourceURL        string    `json:"source_url,omitempty"`
	ExtractionMethod string    `json:"extraction_method,omitempty"`
	Strategy         string    `json:"strategy,omitempty"`
	Extracted        bool      `json:"extracted"`
	PDFAttached      bool      `json:"pdf_attached"`
	PDFFilename      string    `json:"pdf_filename,omitempty"`
	ProcessedAt      time.Time `json:"processed_at"`
}

// NewEvent constructs a report.enhanced event stamped with the current time.
func NewEvent(reportID, reportName, sourceURL string) Event {
	return Event{
		Type:        EventReportEnhanced,
		ReportID:    reportID,
		ReportName:  reportName,
		SourceURL:   sourceURL,
		ProcessedAt: time.Now().UTC(),
	}
}

// attributes returns the routing attributes attached to queue messages.
func (e Event) attributes() map[string]string {
	return map[string]string{
		"event_type": e.Type,
		"report_id":  e.ReportID,
	}
}

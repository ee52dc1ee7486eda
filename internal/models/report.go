package models

import (
	"fmt"
	"time"
)

// ReportStatus is the lifecycle state of a Report.
type ReportStatus int

const (
	ReportDraft ReportStatus = iota
	ReportPendingReview
	ReportPublished
)

var reportStatusNames = [...]string{
	ReportDraft:         "DRAFT",
	ReportPendingReview: "PENDING_REVIEW",
	ReportPublished:     "PUBLISHED",
}

// ReportStatuses lists every status in lifecycle order.
var ReportStatuses = []ReportStatus{ReportDraft, ReportPendingReview, ReportPublished}

func (s ReportStatus) String() string {
	if s < 0 || int(s) >= len(reportStatusNames) {
		return fmt.Sprintf("ReportStatus(%d)", int(s))
	}
	return reportStatusNames[s]
}

func (s ReportStatus) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(reportStatusNames) {
		return nil, fmt.Errorf("invalid report status %d", int(s))
	}
	return []byte(reportStatusNames[s]), nil
}

func (s *ReportStatus) UnmarshalText(text []byte) error {
	for i, n := range reportStatusNames {
		if n == string(text) {
			*s = ReportStatus(i)
			return nil
		}
	}
	return fmt.Errorf("unknown report status %q", string(text))
}

// Report is a publishable digest built from a snapshot of selected articles.
type Report struct {
	ID                 string       `json:"id"`
	GeneratedAt        time.Time    `json:"generatedAt"`
	Title              string       `json:"title"`
	Markdown           string       `json:"markdownContent"`
	Status             ReportStatus `json:"status"`
	IncludedArticleIDs []string     `json:"includedArticleIds"`
	Tags               []string     `json:"tags,omitempty"`
}

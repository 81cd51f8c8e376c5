package order

import (
	"slices"
	"time"
)

// ErrorTypeFatal marks the report entry of a run that aborted before any item
// was attempted.
const ErrorTypeFatal = "fatal"

// Detail summarises one work item in a RunReport.
type Detail struct {
	ItemID       string `json:"itemId"`
	Email        string `json:"email"`
	ImageCount   int    `json:"imageCount"`
	VariantCount int    `json:"variantCount"`
	Status       Status `json:"status"`
	GalleryURL   string `json:"galleryUrl,omitempty"`
}

// ReportError is one failure at any granularity: fatal, item or image.
type ReportError struct {
	Type    string `json:"type,omitempty"`
	ItemID  string `json:"itemId,omitempty"`
	Email   string `json:"email,omitempty"`
	Image   string `json:"image,omitempty"`
	Message string `json:"message"`
}

// RunReport is the aggregate outcome of one batch run.
type RunReport struct {
	RunID            string        `json:"runId,omitempty"`
	Timestamp        time.Time     `json:"timestamp"`
	Disabled         bool          `json:"disabled,omitempty"`
	RecordsFound     int           `json:"recordsFound"`
	RecordsProcessed int           `json:"recordsProcessed"`
	SuccessCount     int           `json:"successCount"`
	ErrorCount       int           `json:"errorCount"`
	Details          []Detail      `json:"details"`
	Errors           []ReportError `json:"errors"`
	DurationMs       int64         `json:"durationMs"`
}

// NewRunReport returns an empty report stamped with the run start.
func NewRunReport(runID string, start time.Time) RunReport {
	return RunReport{
		RunID:     runID,
		Timestamp: start.UTC(),
		Details:   []Detail{},
		Errors:    []ReportError{},
	}
}

// ItemOutcome is everything the orchestrator learned about one item.
// Err is a record-level failure (a recovered panic or a failed write-back);
// image-level failures live in Result.ImageErrors.
type ItemOutcome struct {
	Item       WorkItem
	Result     ItemResult
	GalleryURL string
	Err        error
}

// Reduce folds one item outcome into the report and returns the new report.
// The input report is not modified.
func Reduce(report RunReport, o ItemOutcome) RunReport {
	next := report
	next.Details = slices.Clone(report.Details)
	next.Errors = slices.Clone(report.Errors)

	next.Details = append(next.Details, Detail{
		ItemID:       o.Item.ID,
		Email:        o.Item.Email,
		ImageCount:   len(o.Item.SourceImages),
		VariantCount: len(o.Result.Variants),
		Status:       o.Result.Status,
		GalleryURL:   o.GalleryURL,
	})

	if o.Result.Status == StatusEmpty && o.Err == nil {
		return next
	}
	next.RecordsProcessed++

	for _, ie := range o.Result.ImageErrors {
		next.Errors = append(next.Errors, ReportError{
			ItemID:  o.Item.ID,
			Email:   o.Item.Email,
			Image:   ie.Image,
			Message: ie.Message,
		})
	}

	if o.Err != nil {
		next.ErrorCount++
		next.Errors = append(next.Errors, ReportError{
			ItemID:  o.Item.ID,
			Email:   o.Item.Email,
			Message: o.Err.Error(),
		})
	} else {
		next.SuccessCount++
	}
	return next
}

// Fatal records a whole-run failure that happened before the item loop.
func Fatal(report RunReport, err error) RunReport {
	next := report
	next.Errors = append(slices.Clone(report.Errors), ReportError{
		Type:    ErrorTypeFatal,
		Message: err.Error(),
	})
	next.ErrorCount++
	return next
}

// Finish stamps the elapsed wall time since the report timestamp.
func Finish(report RunReport, now time.Time) RunReport {
	report.DurationMs = now.Sub(report.Timestamp).Milliseconds()
	return report
}

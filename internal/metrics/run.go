package metrics

import "github.com/fpang/order-image-pipeline/internal/order"

// RecordRun emits one EMF document summarising a finished batch run.
// trigger names the entry point ("http", "schedule", "cli").
func RecordRun(report order.RunReport, trigger string) {
	rec := New(Namespace).
		Dimension("Operation", "BatchRun").
		Dimension("Trigger", trigger).
		Metric("RunDurationMs", float64(report.DurationMs), UnitMilliseconds).
		Metric("RecordsFound", float64(report.RecordsFound), UnitCount).
		Metric("RecordsProcessed", float64(report.RecordsProcessed), UnitCount).
		Metric("SuccessCount", float64(report.SuccessCount), UnitCount).
		Metric("ErrorCount", float64(report.ErrorCount), UnitCount).
		Property("runId", report.RunID)

	variants, imageErrors, fatal := 0, 0, false
	for _, d := range report.Details {
		variants += d.VariantCount
	}
	for _, e := range report.Errors {
		switch {
		case e.Type == order.ErrorTypeFatal:
			fatal = true
		case e.Image != "":
			imageErrors++
		}
	}
	rec.Metric("VariantsGenerated", float64(variants), UnitCount).
		Metric("ImageErrors", float64(imageErrors), UnitCount)
	if fatal {
		rec.Count("FatalRuns")
	}
	if report.Disabled {
		rec.Property("disabled", true)
	}
	rec.Flush()
}

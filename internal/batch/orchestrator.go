// Package batch drives a regeneration run over every eligible order.
//
// A run queries the record store once, then processes each work item in
// store order. Only a failed query aborts the run; every later failure is
// absorbed into the returned RunReport at the smallest granularity that
// applies (image or item). Items are never claimed or locked, so two runs
// over the same eligibility window process the same items twice.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fpang/order-image-pipeline/internal/blob"
	"github.com/fpang/order-image-pipeline/internal/events"
	"github.com/fpang/order-image-pipeline/internal/gallery"
	"github.com/fpang/order-image-pipeline/internal/jobs"
	"github.com/fpang/order-image-pipeline/internal/metrics"
	"github.com/fpang/order-image-pipeline/internal/order"
	"github.com/fpang/order-image-pipeline/internal/processor"
	"github.com/fpang/order-image-pipeline/internal/records"
)

// ErrFatal marks a run that aborted before any item was attempted.
var ErrFatal = errors.New("fatal run failure")

// RecordStore is the order table.
type RecordStore interface {
	FetchEligible(ctx context.Context) ([]order.WorkItem, error)
	WriteResult(ctx context.Context, id string, fields map[string]any) error
}

// ItemProcessor turns one work item into variants.
type ItemProcessor interface {
	Process(ctx context.Context, item order.WorkItem, opts processor.Options) order.ItemResult
}

// HistoryStore keeps finished run reports.
type HistoryStore interface {
	PutRun(ctx context.Context, report order.RunReport) error
}

// EventPublisher announces orders that received images.
type EventPublisher interface {
	PublishGenerated(ctx context.Context, generated []events.OrderImagesGenerated) error
}

// Notifier tells a customer their photos are ready.
type Notifier interface {
	PhotosReady(ctx context.Context, email, user string, links []string) error
}

// Config holds the run switches.
type Config struct {
	// Enabled false turns Run into a no-op that touches nothing upstream.
	Enabled bool
	// Options are passed to the processor for every item.
	Options processor.Options
	// Trigger names the entry point in metrics ("http", "schedule", "cli").
	Trigger string
}

// Orchestrator runs batches and single-item requests.
type Orchestrator struct {
	records   RecordStore
	processor ItemProcessor
	blobs     blob.Store
	cfg       Config

	history  HistoryStore
	events   EventPublisher
	notifier Notifier

	now      func() time.Time
	newRunID func() string

	stampMu   sync.Mutex
	lastStamp int64
}

// Option configures optional collaborators.
type Option func(*Orchestrator)

// WithHistory stores every finished report.
func WithHistory(h HistoryStore) Option {
	return func(o *Orchestrator) { o.history = h }
}

// WithEvents publishes one event per item that received images.
func WithEvents(p EventPublisher) Option {
	return func(o *Orchestrator) { o.events = p }
}

// WithNotifier e-mails the customer after a single-item request.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// New creates an Orchestrator.
func New(rs RecordStore, proc ItemProcessor, blobs blob.Store, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		records:   rs,
		processor: proc,
		blobs:     blobs,
		cfg:       cfg,
		now:       time.Now,
		newRunID:  jobs.NewRunID,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one batch. The report is always returned. The error is
// non-nil only when the eligibility query failed, and then wraps ErrFatal.
func (o *Orchestrator) Run(ctx context.Context) (*order.RunReport, error) {
	report := order.NewRunReport(o.newRunID(), o.now())
	logger := log.With().Str("runId", report.RunID).Logger()

	if !o.cfg.Enabled {
		report.Disabled = true
		report = order.Finish(report, o.now())
		logger.Info().Msg("Automation is disabled, skipping run")
		return &report, nil
	}

	logger.Info().Str("trigger", o.cfg.Trigger).Msg("Batch run started")
	items, err := o.records.FetchEligible(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Eligibility query failed, aborting run")
		report = order.Fatal(report, err)
		report = order.Finish(report, o.now())
		o.afterRun(ctx, logger, report, nil)
		return &report, fmt.Errorf("%w: %w", ErrFatal, err)
	}
	report.RecordsFound = len(items)
	logger.Info().Int("records", len(items)).Msg("Eligible records fetched")

	var generated []events.OrderImagesGenerated
	for _, item := range items {
		outcome := o.runItem(ctx, logger, item)
		report = order.Reduce(report, outcome)
		if len(outcome.Result.Variants) > 0 {
			generated = append(generated, events.OrderImagesGenerated{
				RunID:      report.RunID,
				ItemID:     item.ID,
				Email:      item.Email,
				User:       item.UserName,
				Status:     string(outcome.Result.Status),
				Links:      outcome.Result.URLs(),
				GalleryURL: outcome.GalleryURL,
				Timestamp:  o.now().UTC(),
			})
		}
	}

	report = order.Finish(report, o.now())
	logger.Info().
		Int("recordsFound", report.RecordsFound).
		Int("recordsProcessed", report.RecordsProcessed).
		Int("successCount", report.SuccessCount).
		Int("errorCount", report.ErrorCount).
		Int64("durationMs", report.DurationMs).
		Msg("Batch run complete")
	o.afterRun(ctx, logger, report, generated)
	return &report, nil
}

// runItem processes one item and, when it produced variants, publishes the
// gallery page and writes the result back. Failures after processing set
// Err without changing the processing status.
func (o *Orchestrator) runItem(ctx context.Context, runLogger zerolog.Logger, item order.WorkItem) order.ItemOutcome {
	logger := runLogger.With().Str("itemId", item.ID).Str("email", item.Email).Logger()
	outcome := order.ItemOutcome{Item: item}

	result, err := o.safeProcess(ctx, item)
	outcome.Result = result
	if err != nil {
		logger.Error().Err(err).Msg("Item processing panicked")
		outcome.Err = err
		return outcome
	}
	if len(result.Variants) == 0 {
		return outcome
	}

	urls := result.URLs()
	page, err := gallery.Render(urls)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	key := blob.GalleryKey(item.Email, o.nextStamp())
	if err := o.blobs.Put(ctx, key, page, blob.ContentTypeHTML); err != nil {
		logger.Error().Err(err).Str("key", key).Msg("Gallery upload failed")
		outcome.Err = err
		return outcome
	}
	outcome.GalleryURL = o.blobs.URL(key)

	if err := o.records.WriteResult(ctx, item.ID, records.BatchResultFields(urls, outcome.GalleryURL)); err != nil {
		logger.Error().Err(err).Msg("Write-back failed")
		outcome.Err = err
		return outcome
	}
	logger.Info().
		Str("status", string(result.Status)).
		Int("variants", len(urls)).
		Str("gallery", outcome.GalleryURL).
		Msg("Item written back")
	return outcome
}

// safeProcess converts a panic escaping the processor into a failed result.
func (o *Orchestrator) safeProcess(ctx context.Context, item order.WorkItem) (result order.ItemResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = order.ItemResult{Status: order.StatusFailed, Variants: []order.GeneratedVariant{}}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return o.processor.Process(ctx, item, o.cfg.Options), nil
}

// afterRun emits metrics and stores the report and events. Failures are
// logged and never change the report.
func (o *Orchestrator) afterRun(ctx context.Context, logger zerolog.Logger, report order.RunReport, generated []events.OrderImagesGenerated) {
	metrics.RecordRun(report, o.cfg.Trigger)

	if o.history != nil {
		if err := o.history.PutRun(ctx, report); err != nil {
			logger.Warn().Err(err).Msg("Failed to store run history")
		}
	}
	if o.events != nil && len(generated) > 0 {
		if err := o.events.PublishGenerated(ctx, generated); err != nil {
			logger.Warn().Err(err).Int("events", len(generated)).Msg("Failed to publish order events")
		}
	}
}

// nextStamp returns a strictly increasing millisecond stamp for gallery keys.
func (o *Orchestrator) nextStamp() int64 {
	o.stampMu.Lock()
	defer o.stampMu.Unlock()
	ms := o.now().UnixMilli()
	if ms <= o.lastStamp {
		ms = o.lastStamp + 1
	}
	o.lastStamp = ms
	return ms
}

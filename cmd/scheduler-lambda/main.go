// Package main is the Lambda entry point for scheduled batch runs.
//
// An EventBridge schedule rule invokes the function; each invocation runs one
// batch over the eligible orders and returns the run report. The
// AUTO_PROCESS_ENABLED switch turns invocations into no-ops without removing
// the schedule.
package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/fpang/order-image-pipeline/internal/batch"
	"github.com/fpang/order-image-pipeline/internal/boot"
	"github.com/fpang/order-image-pipeline/internal/config"
	"github.com/fpang/order-image-pipeline/internal/logging"
	"github.com/fpang/order-image-pipeline/internal/order"
)

var (
	orch       *batch.Orchestrator
	runTimeout time.Duration
)

func init() {
	initStart := time.Now()
	logging.Init()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	orch, err = boot.Build(context.Background(), cfg, "schedule")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build pipeline")
	}
	runTimeout = cfg.Batch.RunTimeout

	boot.StartupLog("scheduler-lambda", cfg, initStart).Log()
}

func handler(ctx context.Context, event events.CloudWatchEvent) (*order.RunReport, error) {
	log.Info().
		Str("eventId", event.ID).
		Str("source", event.Source).
		Time("scheduledAt", event.Time).
		Msg("Scheduled run triggered")

	if runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runTimeout)
		defer cancel()
	}
	return orch.Run(ctx)
}

func main() {
	lambda.Start(handler)
}

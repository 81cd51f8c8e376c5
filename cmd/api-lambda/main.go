// Package main is the Lambda entry point for the HTTP triggers behind API
// Gateway (HTTP API, payload format 2.0).
//
// Endpoints:
//
//	POST /process-next         regenerate images for the first eligible order
//	POST /scheduled-processor  run a full batch
//	GET  /scheduled-processor  usage hint
//	GET  /health               health check
package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/fpang/order-image-pipeline/internal/boot"
	"github.com/fpang/order-image-pipeline/internal/config"
	"github.com/fpang/order-image-pipeline/internal/logging"
	"github.com/fpang/order-image-pipeline/internal/trigger"
)

func main() {
	initStart := time.Now()
	logging.Init()

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	orch, err := boot.Build(context.Background(), cfg, "http")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build pipeline")
	}
	boot.StartupLog("api-lambda", cfg, initStart).Log()

	adapter := httpadapter.NewV2(trigger.NewHandler(orch, cfg.Batch.RunTimeout))
	lambda.Start(adapter.ProxyWithContext)
}

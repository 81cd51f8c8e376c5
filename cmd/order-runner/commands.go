package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/order-image-pipeline/internal/batch"
	"github.com/fpang/order-image-pipeline/internal/boot"
	"github.com/fpang/order-image-pipeline/internal/config"
	"github.com/fpang/order-image-pipeline/internal/history"
	"github.com/fpang/order-image-pipeline/internal/trigger"
)

var (
	addrFlag     string
	scheduleFlag time.Duration
	dateFlag     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one batch over every eligible order",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, orch, err := setup(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if cfg.Batch.RunTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Batch.RunTimeout)
			defer cancel()
		}
		report, runErr := orch.Run(ctx)
		if err := printJSON(report); err != nil {
			return err
		}
		return runErr
	},
}

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Process only the first eligible order",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, orch, err := setup(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		res, nextErr := orch.ProcessNext(cmd.Context())
		if err := printJSON(res); err != nil {
			return err
		}
		return nextErr
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP triggers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, orch, err := setup(cmd.Context(), "http")
		if err != nil {
			return err
		}
		addr := cfg.Server.Addr
		if cmd.Flags().Changed("addr") {
			addr = addrFlag
		}
		schedule := cfg.Server.Schedule
		if cmd.Flags().Changed("schedule") {
			schedule = scheduleFlag
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if schedule > 0 {
			go runOnSchedule(ctx, orch, schedule, cfg.Batch.RunTimeout)
		}

		srv := &http.Server{Addr: addr, Handler: trigger.NewHandler(orch, cfg.Batch.RunTimeout)}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		log.Info().Str("addr", addr).Dur("schedule", schedule).Msg("Serving HTTP triggers")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored run reports for a day",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFlag)
		if err != nil {
			return err
		}
		if cfg.History.Table == "" {
			return errors.New("RUN_HISTORY_TABLE is not set")
		}
		day := time.Now().UTC()
		if dateFlag != "" {
			if day, err = time.Parse("2006-01-02", dateFlag); err != nil {
				return fmt.Errorf("invalid --date: %w", err)
			}
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(cmd.Context())
		if err != nil {
			return fmt.Errorf("load AWS config: %w", err)
		}
		store := history.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.History.Table, cfg.History.TTL)
		reports, err := store.ListRuns(cmd.Context(), day)
		if err != nil {
			return err
		}
		return printJSON(reports)
	},
}

func init() {
	serveCmd.Flags().StringVar(&addrFlag, "addr", ":8080", "Listen address (overrides HTTP_ADDR)")
	serveCmd.Flags().DurationVar(&scheduleFlag, "schedule", 0, "Run a batch on this interval, e.g. 15m (0 = HTTP only)")
	historyCmd.Flags().StringVar(&dateFlag, "date", "", "Day to list in YYYY-MM-DD (default: today, UTC)")
}

// setup loads configuration, builds the orchestrator and logs the startup
// summary.
func setup(ctx context.Context, triggerName string) (*config.Config, *batch.Orchestrator, error) {
	initStart := time.Now()
	cfg, err := config.Load(configFlag)
	if err != nil {
		return nil, nil, err
	}
	orch, err := boot.Build(ctx, cfg, triggerName)
	if err != nil {
		return nil, nil, err
	}
	boot.StartupLog("order-runner", cfg, initStart).Log()
	return cfg, orch, nil
}

// runOnSchedule starts a batch every interval until ctx is cancelled. Runs
// never overlap: the next tick waits for the current run to finish.
func runOnSchedule(ctx context.Context, orch *batch.Orchestrator, interval, runTimeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := ctx, context.CancelFunc(func() {})
			if runTimeout > 0 {
				runCtx, cancel = context.WithTimeout(ctx, runTimeout)
			}
			report, err := orch.Run(runCtx)
			cancel()
			if err != nil {
				log.Error().Err(err).Msg("Scheduled run failed")
				continue
			}
			log.Info().Str("runId", report.RunID).Int("successCount", report.SuccessCount).Int("errorCount", report.ErrorCount).Msg("Scheduled run finished")
		}
	}
}

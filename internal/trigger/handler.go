// Package trigger exposes the pipeline over HTTP.
//
// Endpoints:
//
//	POST /process-next         regenerate images for the first eligible order
//	POST /scheduled-processor  run a full batch and return the run report
//	GET  /scheduled-processor  usage hint
//	GET  /health               liveness check
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/order-image-pipeline/internal/batch"
	"github.com/fpang/order-image-pipeline/internal/metrics"
	"github.com/fpang/order-image-pipeline/internal/order"
)

// Runner is the part of the orchestrator the handlers call.
type Runner interface {
	Run(ctx context.Context) (*order.RunReport, error)
	ProcessNext(ctx context.Context) (*batch.NextResult, error)
}

// usageHint is returned for GET on the batch endpoint.
const usageHint = "Scheduled processor endpoint. Use POST to manually trigger."

// NewHandler returns the routed handler wrapped with request metrics.
// runTimeout bounds each batch run; zero means no bound.
func NewHandler(runner Runner, runTimeout time.Duration) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("/process-next", processNextHandler(runner))
	mux.HandleFunc("/scheduled-processor", scheduledHandler(runner, runTimeout))
	return withMetrics(mux)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func processNextHandler(runner Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		res, err := runner.ProcessNext(r.Context())
		if err != nil {
			if res == nil {
				res = &batch.NextResult{Status: batch.NextError, Error: err.Error()}
			}
			respondJSON(w, http.StatusInternalServerError, res)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}

func scheduledHandler(runner Runner, runTimeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(usageHint))
		case http.MethodPost:
			ctx := r.Context()
			if runTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, runTimeout)
				defer cancel()
			}
			report, err := runner.Run(ctx)
			if err != nil {
				if !errors.Is(err, batch.ErrFatal) {
					log.Error().Err(err).Msg("Batch run returned an unexpected error")
				}
				if report == nil {
					httpError(w, http.StatusInternalServerError, "batch run failed", err.Error())
					return
				}
				respondJSON(w, http.StatusInternalServerError, report)
				return
			}
			respondJSON(w, http.StatusOK, report)
		default:
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		}
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// httpError sends a JSON error response. Only clientMsg reaches the caller;
// internalDetails are logged.
func httpError(w http.ResponseWriter, status int, clientMsg string, internalDetails ...string) {
	if len(internalDetails) > 0 {
		log.Error().
			Int("status", status).
			Str("clientMsg", clientMsg).
			Strs("internalDetails", internalDetails).
			Msg("HTTP error with internal details")
	}
	respondJSON(w, status, map[string]string{"error": clientMsg})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// knownEndpoints keeps the Endpoint dimension low-cardinality.
var knownEndpoints = map[string]bool{
	"/health":              true,
	"/process-next":        true,
	"/scheduled-processor": true,
}

// withMetrics emits RequestLatencyMs and RequestCount per request.
func withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(sr, r)

		endpoint := r.URL.Path
		if !knownEndpoints[endpoint] {
			endpoint = "other"
		}
		metrics.New(metrics.Namespace).
			Dimension("Endpoint", endpoint).
			Metric("RequestLatencyMs", float64(time.Since(start).Milliseconds()), metrics.UnitMilliseconds).
			Count("RequestCount").
			Property("method", r.Method).
			Property("statusCode", sr.statusCode).
			Flush()
	})
}

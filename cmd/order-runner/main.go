// Command order-runner regenerates order photos from the command line.
//
//	order-runner run                 run one batch and print the report
//	order-runner next                process only the first eligible order
//	order-runner serve [--schedule]  serve the HTTP triggers, optionally running batches on an interval
//	order-runner history [--date]    list stored run reports for a day
package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/fpang/order-image-pipeline/internal/logging"
)

// Global flags
var configFlag string

var rootCmd = &cobra.Command{
	Use:   "order-runner",
	Short: "Regenerate customer order photos with Gemini",
	Long: `order-runner selects recent orders from the Airtable orders table, regenerates
each uploaded photo with the Gemini image model, stores the results in the
image bucket and writes the links back onto the order.

Configuration comes from environment variables (or a .env file) and an
optional config.yaml.

Examples:
  order-runner run
  order-runner next
  order-runner serve --addr :8080 --schedule 15m
  order-runner history --date 2026-03-14`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to a config file (default: ./configs/config.yaml or ./config.yaml if present)")
	rootCmd.AddCommand(runCmd, nextCmd, serveCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

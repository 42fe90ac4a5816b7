package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"budget-reconciliation-service/cmd/reconciler/cmd"
	"budget-reconciliation-service/pkg/errors"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	// Optional .env file for RECONCILER_* settings.
	_ = godotenv.Load()

	cmd.SetVersionInfo(version, commit, date)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if re, ok := errors.AsReconcilerError(err); ok {
			os.Exit(re.GetExitCode())
		}
		os.Exit(1)
	}
}

package driver

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/appraisal/pkg/logger"
)

const logFilePermission = 0600

// SetupLogging logs to stdout and to logFile. An empty logFile gets a
// timestamped name.
func SetupLogging(logFile string, verbose bool) (io.Closer, error) {
	if logFile == "" {
		logFile = "drive_log_" + time.Now().Format("20060102_150405") + ".log"
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.Init(logger.WithWriter(io.MultiWriter(os.Stdout, file))); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	return file, nil
}

// ShowHelp prints usage information for the drive tool.
func ShowHelp(w io.Writer) {
	_, _ = io.WriteString(w, `Appraisal Drive Tool
====================

Creates (or resumes) a valuation report and re-invokes advance until the
report is complete or failed, honoring the service's retry hint.

Usage:
  go run ./cmd/drive [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -owner string
        Wallet to value
  -assets string
        Comma separated asset ids (default: the whole inventory)
  -report string
        Resume an existing report id
  -max int
        Maximum advance invocations (default 1000)
  -timeout duration
        HTTP request timeout (default 30s)
  -log string
        Log file (default: drive_log_TIMESTAMP.log)
  -verbose
        Log every invocation
  -help
        Show this help message

Examples:
  go run ./cmd/drive -owner 9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin
  go run ./cmd/drive -report 5d8c0a8e-... -verbose
`)
}

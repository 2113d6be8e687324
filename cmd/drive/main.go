package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/okian/appraisal/internal/driver"
	"github.com/okian/appraisal/pkg/logger"
)

const defaultRunTimeout = 30 * time.Minute

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the service")
		owner    = flag.String("owner", "", "Wallet to value")
		assets   = flag.String("assets", "", "Comma separated asset ids (default: the whole inventory)")
		reportID = flag.String("report", "", "Resume an existing report id")
		maxCalls = flag.Int("max", driver.DefaultMaxInvocations, "Maximum advance invocations")
		timeout  = flag.Duration("timeout", driver.DefaultTimeout, "HTTP request timeout")
		logFile  = flag.String("log", "", "Log file (default: drive_log_TIMESTAMP.log)")
		verbose  = flag.Bool("verbose", false, "Log every invocation")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		driver.ShowHelp(os.Stdout)
		return
	}
	if *owner == "" && *reportID == "" {
		driver.ShowHelp(os.Stderr)
		os.Exit(2)
	}

	closer, err := driver.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	cfg := driver.Config{
		BaseURL:        *baseURL,
		Owner:          *owner,
		AssetIDs:       splitIDs(*assets),
		ReportID:       *reportID,
		MaxInvocations: *maxCalls,
		Timeout:        *timeout,
		LogFile:        *logFile,
		Verbose:        *verbose,
	}
	d := driver.New(driver.NewHTTPClient(cfg.BaseURL, cfg.Timeout), cfg)
	if _, stats, err := d.Run(ctx); err != nil {
		logger.Get().Error(ctx, "drive failed",
			logger.Error(err),
			logger.Int("invocations", stats.Invocations),
		)
		closer.Close()
		os.Exit(1)
	}
}

func splitIDs(s string) []string {
	var out []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

package simulate

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/matchd/pkg/logger"
)

const logFilePermission = 0o600

// SetupLogging sends log output to stdout and, when logFile is set, to that
// file as well.
func SetupLogging(logFile string, jsonFormat bool) (func() error, error) {
	if logFile == "" {
		return func() error { return nil }, logger.InitWithWriter(os.Stdout, jsonFormat)
	}
	if logFile == "auto" {
		logFile = "simulate_" + time.Now().Format("20060102_150405") + ".log"
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.InitWithWriter(io.MultiWriter(os.Stdout, file), jsonFormat); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return file.Close, nil
}

// ShowHelp prints usage information.
func ShowHelp() {
	os.Stdout.WriteString(`matchd simulator
================

Plays full matches against a running matchd: every simulated player joins a
queue, confirms the ready check and votes for the result. Outcomes follow a
hidden skill per player, so ratings should drift toward that skill.

Usage:
  go run ./cmd/simulate [options]

Options:
  -url string        Base URL of the service (default "http://localhost:9080")
  -mode string       Mode to queue for (default "rl2v2")
  -players int       Simulated population (default 40)
  -rounds int        Times every player queues (default 10)
  -workers int       Concurrent requests per step (default 16)
  -timeout duration  HTTP request timeout (default 10s)
  -seed uint         Seed for skills and outcomes (default 1)
  -log string        Also write logs to this file; "auto" picks a name
  -json              Log as JSON
  -verbose           Log every match
  -help              Show this help message

Examples:
  go run ./cmd/simulate -mode r6 -players 100 -rounds 20
  go run ./cmd/simulate -url http://localhost:8080 -verbose
`)
}

package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/matchd/internal/simulate"
	"github.com/okian/matchd/pkg/logger"
)

const (
	defaultPlayers = 40
	defaultRounds  = 10
	defaultWorkers = 16
	defaultTimeout = 10 * time.Second
	runTimeout     = 10 * time.Minute
)

func main() {
	var (
		baseURL = flag.String("url", "http://localhost:9080", "Base URL of the service")
		mode    = flag.String("mode", "rl2v2", "Mode to queue for")
		players = flag.Int("players", defaultPlayers, "Simulated population")
		rounds  = flag.Int("rounds", defaultRounds, "Times every player queues")
		workers = flag.Int("workers", defaultWorkers, "Concurrent requests per step")
		timeout = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		seed    = flag.Uint64("seed", 1, "Seed for skills and outcomes")
		logFile = flag.String("log", "", `Also write logs to this file; "auto" picks a name`)
		jsonLog = flag.Bool("json", false, "Log as JSON")
		verbose = flag.Bool("verbose", false, "Log every match")
		help    = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	closeLog, err := simulate.SetupLogging(*logFile, *jsonLog)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closeLog() }()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	cfg := &simulate.Config{
		BaseURL: *baseURL,
		Mode:    *mode,
		Players: *players,
		Rounds:  *rounds,
		Workers: *workers,
		Timeout: *timeout,
		Seed:    *seed,
		Verbose: *verbose,
	}
	if _, err := simulate.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "simulation failed", logger.Error(err))
		cancel()
		_ = closeLog()
		os.Exit(1)
	}
}

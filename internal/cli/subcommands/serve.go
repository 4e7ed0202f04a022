package subcommands

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"TraceLens/internal/config"
	"TraceLens/internal/logging"
	"TraceLens/internal/model"
	"TraceLens/internal/server"
)

// RunServe starts the trace service and blocks until interrupted.
func RunServe(ctx context.Context, cfg config.Config, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)
	modelID := fs.String("model", cfg.Runner.Model, "Model to load on startup (empty connects to whatever the runner has)")
	logDir := fs.String("log-dir", "", "Directory for session log files (default ~/.tracelens/logs)")
	logToStderr := fs.Bool("log-stderr", false, "Log to stderr instead of a session file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse flags: %v\n", err)
		return 1
	}

	if *logToStderr {
		logging.ToStderr()
	} else {
		if err := logging.ToFile(*logDir); err != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
			return 1
		}
		defer logging.Close()
	}

	if !cfg.ServerEnabled() {
		fmt.Fprintln(os.Stderr, "server is disabled in the config; set server.enabled or APP_SERVER_ENABLED")
		return 1
	}

	runner := model.NewRunnerWithTimeout(cfg.Runner.BaseURL, cfg.RunnerTimeout())
	manager := model.NewManager(runner.Loader())
	defer manager.Close()

	if info, err := manager.Load(ctx, *modelID); err != nil {
		log.Printf("model not loaded yet (%v); trace requests return 503 until /load_model succeeds", err)
	} else {
		log.Printf("model ready: %s (vocab %d)", info.Name, info.VocabSize)
	}

	srv := server.New(cfg, manager)
	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		return 1
	}
	fmt.Printf("TraceLens service listening on %s (runner %s)\n", cfg.ServerAddr(), cfg.Runner.BaseURL)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	fmt.Println("\nShutting down...")
	if err := srv.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		return 1
	}
	return 0
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexflint/go-arg"
	"github.com/xhad/evaluator/internal/app"
	"github.com/xhad/evaluator/pkg/config"
	"github.com/xhad/evaluator/server"
)

const (
	ProgramName = "evaluator"
	Version     = "v0.1.0"
)

type args struct {
	Config    string `arg:"--config,-c" help:"path to config file"`
	Host      string `arg:"--host" help:"listen address, overrides server.host"`
	Port      int    `arg:"--port,-p" help:"listen port, overrides server.port"`
	LogLevel  string `arg:"--log-level" help:"debug, info, warn or error"`
	LogFormat string `arg:"--log-format" help:"text or json"`
}

func (args) Version() string {
	return fmt.Sprintf("%s %s", ProgramName, Version)
}

func (args) Description() string {
	return "Serves the R&D proposal evaluation API and upload form."
}

func main() {
	var a args
	arg.MustParse(&a)

	if err := run(a); err != nil {
		log.Fatal(err)
	}
}

func run(a args) error {
	cfg, err := config.LoadConfig(a.Config)
	if err != nil {
		return err
	}
	applyArgs(cfg, a)

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "config error: %s\n", e)
		}
		return fmt.Errorf("invalid configuration: %d error(s)", len(errs))
	}

	logger := app.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.Load(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	defer application.Close()

	srv, err := server.New(application)
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}

	return srv.Run(ctx)
}

func applyArgs(cfg *config.Config, a args) {
	if a.Host != "" {
		cfg.Server.Host = a.Host
	}
	if a.Port != 0 {
		cfg.Server.Port = a.Port
	}
	if a.LogLevel != "" {
		cfg.Log.Level = a.LogLevel
	}
	if a.LogFormat != "" {
		cfg.Log.Format = a.LogFormat
	}
}

// Prioritize asks a running prioritizer service for the priority tier of a
// task description and prints the prediction as JSON.
//
//	prioritize [-url URL] [-fallback] <description...>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/prioritizer/internal/client"
)

const appName = "prioritize"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		baseURL  string
		fallback bool
		timeout  int
		logCfg   log.Config
	)
	logCfg.RegisterFlags(fs)
	fs.StringVar(&baseURL, "url", "http://localhost:8080", "prioritizer service base URL")
	fs.BoolVar(&fallback, "fallback", false, "print the Medium fallback instead of failing when the service errors")
	fs.IntVar(&timeout, "timeout-seconds", 30, "request timeout in seconds")

	if err := fs.Parse(args); err != nil {
		return err
	}

	// PRIORITIZER_URL etc, never overriding explicit flags
	cfg.FillFromEnv(fs, "PRIORITIZER_", func(format string, a ...any) {
		fmt.Fprintf(stderr, format+"\n", a...)
	})

	description := strings.Join(fs.Args(), " ")
	if description == "" {
		return errors.New("usage: prioritize [-url URL] [-fallback] <description...>")
	}
	if timeout <= 0 {
		return fmt.Errorf("invalid timeout-seconds %d (must be > 0)", timeout)
	}
	if err := logCfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	lg, err := log.New(logCfg.ToOptions(appName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = lg.Sync() }()

	c, err := client.New(baseURL, nil, lg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	enc := json.NewEncoder(stdout)
	if fallback {
		return enc.Encode(c.Suggest(ctx, description))
	}

	p, err := c.Predict(ctx, description)
	if err != nil {
		return err
	}
	return enc.Encode(p)
}

// Command slotwatch keeps the appointment kiosk page current.
//
// Usage:
//
//	slotwatch                              # run on schedule with slotwatch.yaml
//	slotwatch -config store.yaml -serve :8080
//	slotwatch -once                        # one run, write the page, exit
//	slotwatch -replay saved.html           # extract from saved markup, print JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/hazyhaar/slotwatch"
)

func main() {
	configPath := flag.String("config", slotwatch.DefaultConfigPath, "path to the YAML config file")
	once := flag.Bool("once", false, "run once, write the page and exit")
	replay := flag.String("replay", "", "extract appointments from a saved HTML page and print them as JSON")
	serve := flag.String("serve", "", "HTTP listen address (overrides server.addr)")
	noUpdate := flag.Bool("no-update", false, "disable self-update")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("slotwatch: .env", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := options{once: *once, replay: *replay, serve: *serve, noUpdate: *noUpdate}
	if err := run(ctx, logger, *configPath, opts); err != nil {
		logger.Error("slotwatch: fatal", "error", err)
		os.Exit(1)
	}
}

type options struct {
	once     bool
	replay   string
	serve    string
	noUpdate bool
}

func run(ctx context.Context, logger *slog.Logger, path string, opts options) error {
	cfg, err := slotwatch.LoadConfigFile(path)
	if errors.Is(err, slotwatch.ErrConfigNotExist) {
		if opts.replay != "" {
			cfg = slotwatch.DefaultConfig()
		} else {
			if err := slotwatch.WriteDefaultConfig(path); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Config file %s has been created.\nEdit store_number and the schedule hours as needed, then run again.\n", path)
			return nil
		}
	} else if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return err
	}
	if opts.serve != "" {
		cfg.Server.Addr = opts.serve
	}
	if opts.noUpdate || opts.once || opts.replay != "" {
		cfg.Update.Disabled = true
	}
	if opts.replay != "" {
		cfg.RunLog.Path = "-"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	w, err := slotwatch.New(cfg, logger)
	if err != nil {
		return err
	}
	defer w.Close()

	switch {
	case opts.replay != "":
		data, err := os.ReadFile(opts.replay)
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}
		res, err := w.Replay(ctx, string(data))
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)

	case opts.once:
		res, err := w.RunOnce(ctx)
		if err != nil {
			return err
		}
		logger.Info("slotwatch: done", "status", string(res.Status), "days", len(res.Days), "page", cfg.Render.Output)
		return nil
	}

	logger.Info("slotwatch: starting", "store", cfg.StoreNumber, "url", cfg.URL(), "window", cfg.Schedule.Window.String())
	return w.Start(ctx)
}

// Barbersync is a terminal companion for the 001 Barbershop admin console:
// it mirrors the booking list locally, preferring a live WebSocket push
// channel and degrading to periodic REST polling when push is unavailable.
//
// Usage:
//
//	barbersync daemon [--config <path>]    # run the live sync engine
//	barbersync snapshot [--pending] [...]  # one-shot fetch, print and exit
//	barbersync status                      # show config & cache state
//	barbersync version                     # print version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/barber001/barbersync/internal/auth"
	"github.com/barber001/barbersync/internal/cache"
	"github.com/barber001/barbersync/internal/config"
	"github.com/barber001/barbersync/internal/model"
	"github.com/barber001/barbersync/internal/notify"
	"github.com/barber001/barbersync/internal/push"
	"github.com/barber001/barbersync/internal/rest"
	"github.com/barber001/barbersync/internal/store"
	syncp "github.com/barber001/barbersync/internal/sync"
	"github.com/barber001/barbersync/internal/telemetry"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// run dispatches to the appropriate subcommand.
func run() error {
	if len(os.Args) < 2 {
		return printUsage()
	}

	switch cmd := os.Args[1]; cmd {
	case "daemon":
		return runDaemon(os.Args[2:])
	case "snapshot":
		return runSnapshot(os.Args[2:])
	case "status":
		return runStatus()
	case "version":
		fmt.Println("barbersync", version)
		return nil
	default:
		return fmt.Errorf("unknown command %q — run 'barbersync' for usage", cmd)
	}
}

// printUsage shows help and hints at the config file if none exists.
func printUsage() error {
	cfgPath, _ := config.DefaultPath()
	_, cfgErr := os.Stat(cfgPath)

	fmt.Fprintln(os.Stderr, "Barbersync — live booking mirror for the barbershop admin console")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  barbersync daemon [--config ...]     Run the live sync engine")
	fmt.Fprintln(os.Stderr, "  barbersync snapshot [--pending ...]  One-shot fetch, print and exit")
	fmt.Fprintln(os.Stderr, "  barbersync status                    Show config & cache state")
	fmt.Fprintln(os.Stderr, "  barbersync version                   Print version")
	fmt.Fprintln(os.Stderr, "")

	if cfgErr != nil {
		fmt.Fprintf(os.Stderr, "No config file found. Create one at %s to get started.\n", cfgPath)
	}

	os.Exit(1)
	return nil // unreachable
}

// --- Subcommands -------------------------------------------------------------

// runDaemon starts the sync controller and blocks until SIGTERM/SIGINT.
func runDaemon(args []string) error {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	defaultCfg, _ := config.DefaultPath()
	cfgPath := fs.String("config", defaultCfg, "path to config.yaml")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	quiet := fs.Bool("quiet", false, "suppress console notifications, log only")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// --- Logger --------------------------------------------------------------

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// --- Config --------------------------------------------------------------

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("loading config from %q: %w", *cfgPath, err)
	}
	logger.Info("config loaded",
		"api_url", cfg.APIURL,
		"push_url", cfg.PushURL,
		"poll_interval", cfg.PollInterval,
	)

	// --- Telemetry (optional) ------------------------------------------------

	if cfg.Telemetry != nil {
		telCfg := telemetry.Config{
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			Insecure:     cfg.Telemetry.Insecure,
			ServiceName:  cfg.Telemetry.ServiceName,
			Headers:      cfg.Telemetry.Headers,
		}
		shutdownTel, err := telemetry.Setup(context.Background(), telCfg)
		if err != nil {
			logger.Error("telemetry setup failed, continuing without telemetry", "error", err)
		} else {
			logger.Info("telemetry enabled", "endpoint", cfg.Telemetry.OTLPEndpoint)
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTel(flushCtx); err != nil {
					logger.Error("telemetry shutdown error", "error", err)
				}
			}()
		}
	}

	// --- Snapshot cache ------------------------------------------------------

	var snapCache syncp.SnapshotCache
	if cfg.CachePath != "off" {
		path := cfg.CachePath
		if path == "" {
			if path, err = cache.DefaultPath(); err != nil {
				return fmt.Errorf("resolving snapshot cache path: %w", err)
			}
		}
		c, err := cache.Open(path)
		if err != nil {
			logger.Error("snapshot cache unavailable, continuing without it", "path", path, "error", err)
		} else {
			defer func() {
				if closeErr := c.Close(); closeErr != nil {
					logger.Error("closing snapshot cache", "error", closeErr)
				}
			}()
			logger.Info("snapshot cache opened", "path", path)
			snapCache = c
		}
	}

	// --- Auth, REST and push clients -----------------------------------------

	tokens := auth.NewTokenSource(cfg.Token)
	api := rest.New(cfg.APIURL, tokens.Token, cfg.ConnectTimeout, logger)

	var sink notify.Sink = notify.NewLogger(logger)
	if !*quiet {
		sink = notify.Multi{notify.NewConsole(os.Stdout), sink}
	}

	// The push client and controller reference each other: events flow from
	// the socket read loop into the controller's event queue.
	var ctrl *syncp.Controller
	channel := push.New(cfg.PushURL, cfg.ConnectTimeout, func(ev push.Event) {
		ctrl.HandleTransportEvent(ev)
	}, logger)

	ctrl = syncp.New(channel, api, snapCache, tokens, sink, syncp.Options{
		PollInterval: cfg.PollInterval,
		FetchTimeout: cfg.ConnectTimeout,
		Policy:       syncp.Policy{Threshold: cfg.FailureThreshold},
	}, logger)

	// --- Run until signalled -------------------------------------------------

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	logger.Info("daemon starting", "poll_interval", cfg.PollInterval)
	if err := ctrl.Run(ctx); err != nil {
		if errors.Is(err, syncp.ErrNotAuthorized) {
			return fmt.Errorf("%w\n\nCheck the token in %s (or set BARBERSYNC_TOKEN)", err, *cfgPath)
		}
		if !errors.Is(err, context.Canceled) {
			return fmt.Errorf("sync controller: %w", err)
		}
	}
	logger.Info("shutdown complete")
	return nil
}

// runSnapshot fetches the booking list once, applies any filter flags, and
// prints the result sorted newest-first.
func runSnapshot(args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ExitOnError)
	defaultCfg, _ := config.DefaultPath()
	cfgPath := fs.String("config", defaultCfg, "path to config.yaml")
	pending := fs.Bool("pending", false, "only fetch bookings awaiting approval")
	client := fs.String("client", "", "filter by client name or phone substring")
	barber := fs.String("barber", "", "filter by barber id")
	status := fs.String("status", "", "filter by status (pending|approved|rejected|completed)")
	from := fs.String("from", "", "filter by date from (YYYY-MM-DD, inclusive)")
	to := fs.String("to", "", "filter by date to (YYYY-MM-DD, inclusive)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("loading config from %q: %w", *cfgPath, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	api := rest.New(cfg.APIURL, auth.NewTokenSource(cfg.Token).Token, cfg.ConnectTimeout, logger)

	var bookings []*model.Booking
	if *pending {
		bookings, err = api.FetchPending(ctx)
	} else {
		bookings, err = api.FetchAll(ctx)
	}
	if err != nil {
		return fmt.Errorf("fetching bookings: %w", err)
	}

	s := store.New(logger)
	s.Replace(bookings)
	visible := s.Apply(store.Filter{
		ClientName: *client,
		BarberID:   *barber,
		Status:     *status,
		DateFrom:   *from,
		DateTo:     *to,
	})

	printBookings(visible)
	fmt.Printf("\n%d of %d booking(s)\n", len(visible), s.Len())
	return nil
}

// runStatus prints the current configuration and cache state.
func runStatus() error {
	cfgPath, _ := config.DefaultPath()
	cachePath, _ := cache.DefaultPath()

	fmt.Println("Barbersync Status")
	fmt.Println("─────────────────")

	// Config state.
	if _, err := os.Stat(cfgPath); err == nil {
		if cfg, loadErr := config.Load(cfgPath); loadErr == nil {
			fmt.Printf("  Config:    %s ✓\n", cfgPath)
			fmt.Printf("  API URL:   %s\n", cfg.APIURL)
			fmt.Printf("  Push URL:  %s\n", cfg.PushURL)
			fmt.Printf("  Poll:      %s\n", cfg.PollInterval)
			if cfg.Token == "" {
				fmt.Println("  Token:     not set (polling only)")
			} else {
				fmt.Println("  Token:     configured")
			}
			if cfg.CachePath != "" {
				cachePath = cfg.CachePath
			}
		} else {
			fmt.Printf("  Config:    %s (invalid: %v)\n", cfgPath, loadErr)
		}
	} else {
		fmt.Printf("  Config:    not found (%s)\n", cfgPath)
	}

	// Snapshot cache.
	if cachePath == "off" {
		fmt.Println("  Cache:     disabled")
		return nil
	}
	info, err := os.Stat(cachePath)
	if err != nil {
		fmt.Println("  Cache:     not found")
		return nil
	}
	fmt.Printf("  Cache:     %s (%s)\n", cachePath, humanSize(info.Size()))
	if c, openErr := cache.Open(cachePath); openErr == nil {
		defer c.Close()
		if savedAt, saveErr := c.SavedAt(context.Background()); saveErr == nil && !savedAt.IsZero() {
			fmt.Printf("  Saved:     %s (%s ago)\n",
				savedAt.Local().Format("2006-01-02 15:04:05"),
				time.Since(savedAt).Round(time.Second))
		}
	}
	return nil
}

// --- Output helpers ----------------------------------------------------------

// printBookings writes a fixed-width booking table to stdout.
func printBookings(bookings []*model.Booking) {
	fmt.Printf("%-10s  %-20s  %-14s  %-10s  %-5s  %s\n",
		"ID", "CLIENT", "PHONE", "DATE", "TIME", "STATUS")
	for _, b := range bookings {
		fmt.Printf("%-10s  %-20s  %-14s  %-10s  %-5s  %s\n",
			b.ID, truncate(b.ClientName, 20), b.Phone, b.Date, b.Time, b.DisplayStatus())
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

// humanSize returns a human-readable file size string.
func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

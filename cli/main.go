package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gofeint/gofeint/core"
	"github.com/gofeint/gofeint/core/config"
	"github.com/gofeint/gofeint/core/schedule"
	"github.com/gofeint/gofeint/core/vector"
	"github.com/gofeint/gofeint/pkg/logging"
)

func main() {
	// Manually parse global flags for logging, as they are needed before subcommands.
	var logLevel, logFormat string
	fs := flag.NewFlagSet("global", flag.ContinueOnError)
	fs.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&logFormat, "log-format", "console", "Log format (console, json)")
	// Ignore errors, we'll just use defaults if flags are not there.
	_ = fs.Parse(os.Args)

	logging.InitLogger(logLevel, logFormat, nil)

	if len(os.Args) < 2 {
		logging.GetLogger().Error("expected 'run', 'plan' or 'vectors' subcommands")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runCmd := flag.NewFlagSet("run", flag.ExitOnError)
		configFile := runCmd.String("config", "gofeint.yaml", "Path to the engine YAML configuration.")
		metricsAddr := runCmd.String("metrics-addr", "", "Expose Prometheus metrics on this address (e.g. 127.0.0.1:9400). Disabled when empty.")
		statusEvery := runCmd.Duration("status-every", 10*time.Second, "How often to log a status line.")
		// Add logging flags to help text, but they are handled globally.
		runCmd.String("log-level", "info", "Log level (debug, info, warn, error)")
		runCmd.String("log-format", "console", "Log format (console, json)")
		if err := runCmd.Parse(os.Args[2:]); err != nil {
			logging.GetLogger().Error("Failed to parse run flags", "error", err)
			os.Exit(1)
		}
		runEngine(*configFile, *metricsAddr, *statusEvery)

	case "plan":
		planCmd := flag.NewFlagSet("plan", flag.ExitOnError)
		configFile := planCmd.String("config", "gofeint.yaml", "Path to the engine YAML configuration.")
		planCmd.String("log-level", "info", "Log level (debug, info, warn, error)")
		planCmd.String("log-format", "console", "Log format (console, json)")
		if err := planCmd.Parse(os.Args[2:]); err != nil {
			logging.GetLogger().Error("Failed to parse plan flags", "error", err)
			os.Exit(1)
		}
		printPlan(*configFile)

	case "vectors":
		printVectors()

	default:
		logging.GetLogger().Error("expected 'run', 'plan' or 'vectors' subcommands", "command", os.Args[1])
		os.Exit(1)
	}
}

func runEngine(configFile, metricsAddr string, statusEvery time.Duration) {
	logger := logging.GetLogger()

	cfg, err := config.Load(configFile)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	engine, err := core.NewEngine(cfg, logger)
	if err != nil {
		logger.Error("Failed to create engine", "error", err)
		os.Exit(1)
	}

	if metricsAddr != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(engine.Metrics())
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			logger.Info("Metrics listener starting", "addr", metricsAddr)
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logger.Error("Metrics listener failed", "error", err)
			}
		}()
	}

	if err := engine.Start(context.Background()); err != nil {
		logger.Error("Engine failed to start", "error", err)
		os.Exit(1)
	}
	logger.Info("Engine started. Press Ctrl+C to stop early.",
		"target", cfg.Target,
		"total_duration", cfg.TotalDuration.String())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	statusTicker := time.NewTicker(statusEvery)
	defer statusTicker.Stop()

	for {
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal, draining...")
			if err := engine.Stop(); err != nil {
				logger.Error("Run ended with failure", "error", err)
				os.Exit(1)
			}
			logger.Info("Run stopped.")
			return
		case <-engine.Wait():
			if err := engine.Stop(); err != nil {
				logger.Error("Run ended with failure", "error", err)
				os.Exit(1)
			}
			logger.Info("Run completed.")
			return
		case <-statusTicker.C:
			logStatus(logger, engine.Status())
		}
	}
}

func logStatus(logger logging.Logger, status core.Status) {
	var emitted, filler, dropped uint64
	for _, c := range status.CountersByVector {
		emitted += c.Emitted
		filler += c.Filler
		dropped += c.Dropped
	}
	logger.Info("status",
		"state", string(status.State),
		"phase", status.CurrentPhase.Index,
		"progress", fmt.Sprintf("%.0f%%", status.CurrentPhase.Progress*100),
		"adaptation", status.LastAdaptation.ReasonCode,
		"emitted", emitted,
		"filler", filler,
		"dropped", dropped)
}

func printPlan(configFile string) {
	logger := logging.GetLogger()

	cfg, err := config.Load(configFile)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration is invalid", "error", err)
		os.Exit(1)
	}

	plan, err := schedule.NewPlan(cfg.Phases, cfg.TotalDuration)
	if err != nil {
		logger.Error("Phase plan is invalid", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	fmt.Fprintln(w, "PHASE\tENDS AT\tATTACK RATIO\tINTENSITY")
	fmt.Fprintln(w, "-----\t-------\t------------\t---------")
	boundaries := plan.Boundaries()
	for i := 0; i < plan.Len(); i++ {
		phase := plan.Phase(i)
		fmt.Fprintf(w, "%d\t%s\t%.2f\t%.2f\n", i, boundaries[i].String(), phase.AttackRatio, phase.Intensity)
	}
	w.Flush()
}

func printVectors() {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	fmt.Fprintln(w, "NAME\tDESCRIPTION")
	fmt.Fprintln(w, "----\t-----------")
	fmt.Fprintf(w, "%s\tcrafted half-open handshake segments against the target's connection table\n", vector.NameStateExhaustion)
	fmt.Fprintf(w, "%s\tsession-stable application requests with browser-matched TLS fingerprints\n", vector.NameAppMimicry)
	fmt.Fprintf(w, "%s\tdeclared request bodies trickled in tiny chunks with long gaps\n", vector.NameSlowRead)
	w.Flush()
}

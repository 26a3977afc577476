package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/rhino/internal/config"
	"github.com/wesleyorama2/rhino/internal/events"
	"github.com/wesleyorama2/rhino/internal/logger"
	"github.com/wesleyorama2/rhino/internal/metrics"
	"github.com/wesleyorama2/rhino/internal/output"
	"github.com/wesleyorama2/rhino/internal/runner"
)

type runOptions struct {
	configPath   string
	duration     time.Duration
	executions   int64
	logLevel     string
	logJSON      bool
	quiet        bool
	jsonOut      bool
	htmlPath     string
	progress     time.Duration
	metricsAddr  string
	otlpEndpoint string
	otlpInsecure bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation file",
		Long: `Run the workflows of a simulation file against the target system.

  rhino run --config checkout.yaml
  rhino run -c checkout.yaml --duration 5m --metrics-addr :9100
  rhino run -c checkout.yaml --executions 100 --json > report.json
  rhino run -c checkout.yaml --html report.html

Ctrl-C stops the run; in-flight executions drain according to the
simulation's drain mode before the report is printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "Simulation file (YAML or JSON)")
	f.DurationVar(&opts.duration, "duration", 0, "Override the simulation duration (e.g. 30s, 5m)")
	f.Int64Var(&opts.executions, "executions", 0, "Override the maximum number of executions")
	f.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error, disabled (default from settings)")
	f.BoolVar(&opts.logJSON, "log-json", false, "Write logs as JSON lines")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "Disable progress output, print only the verdict")
	f.BoolVar(&opts.jsonOut, "json", false, "Print the run report as JSON")
	f.StringVar(&opts.htmlPath, "html", "", "Also write an HTML report to this file")
	f.DurationVar(&opts.progress, "progress", 5*time.Second, "Interval between progress lines (0 disables)")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9100)")
	f.StringVar(&opts.otlpEndpoint, "otlp-endpoint", "", "Export timing spans over OTLP/HTTP to host:port")
	f.BoolVar(&opts.otlpInsecure, "otlp-insecure", false, "Use plain HTTP for the OTLP exporter")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runSimulation(cmd *cobra.Command, opts runOptions) error {
	f, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.duration > 0 {
		f.Simulation.Duration = config.Duration(opts.duration)
	}
	if opts.executions > 0 {
		f.Simulation.MaxExecutions = opts.executions
	}

	level := f.Settings.LogLevel
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	log, err := logger.New(logger.Options{Level: level, Writer: cmd.ErrOrStderr(), Console: !opts.logJSON})
	if err != nil {
		return err
	}

	compiled, err := config.Compile(f, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	collector := metrics.NewCollector(metrics.DefaultCollectorConfig())
	defer collector.Stop()

	runOpts := []runner.Option{
		runner.WithTransport(compiled.NewTransport()),
		runner.WithCollector(collector),
		runner.WithLogger(log),
	}

	if opts.metricsAddr != "" {
		shutdown, sinkOpts, err := serveMetrics(opts.metricsAddr, log)
		if err != nil {
			return err
		}
		defer shutdown()
		runOpts = append(runOpts, sinkOpts...)
	}

	if opts.otlpEndpoint != "" {
		tp, err := metrics.NewTracerProvider(ctx, "rhino", opts.otlpEndpoint, opts.otlpInsecure)
		if err != nil {
			return fmt.Errorf("otlp exporter: %w", err)
		}
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			if err := tp.Shutdown(sctx); err != nil {
				log.Warn().Err(err).Msg("trace exporter shutdown failed")
			}
		}()
		runOpts = append(runOpts, runner.WithSinks(metrics.NewTraceSink(tp.Tracer("rhino"))))
	}

	r, err := runner.New(compiled.Runner, compiled.Workflows, compiled.Pool, runOpts...)
	if err != nil {
		return err
	}
	defer compiled.Pool.Close()

	console := output.NewConsole(output.ConsoleConfig{Writer: cmd.OutOrStdout(), Quiet: opts.quiet || opts.jsonOut})
	header := compiled.Runner
	header.ApplyDefaults()
	console.Header(header)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	go func() {
		var tick <-chan time.Time
		if opts.progress > 0 {
			t := time.NewTicker(opts.progress)
			defer t.Stop()
			tick = t.C
		}
		for {
			select {
			case <-sigCh:
				log.Warn().Msg("interrupt received, stopping")
				r.Stop()
			case <-tick:
				console.Progress(collector.Snapshot())
			case <-done:
				return
			}
		}
	}()

	res, runErr := r.Run(ctx)
	close(done)

	report := &output.Report{Result: res, Metrics: collector.Snapshot(), TimeSeries: collector.TimeSeries()}
	if res != nil {
		if opts.jsonOut {
			if err := output.WriteJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
		} else {
			output.NewConsole(output.ConsoleConfig{Writer: cmd.OutOrStdout(), Quiet: opts.quiet}).Summary(report)
		}
		if opts.htmlPath != "" {
			if err := output.WriteHTMLFile(opts.htmlPath, report); err != nil {
				return err
			}
			log.Info().Str("path", opts.htmlPath).Msg("html report written")
		}
	}

	if runErr != nil {
		return runErr
	}
	if !report.Passed() {
		return ErrRunFailed
	}
	return nil
}

// serveMetrics exposes a Prometheus registry fed by the run's events and
// returns the runner options wiring the sink in.
func serveMetrics(addr string, log zerolog.Logger) (func(), []runner.Option, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	sink := metrics.NewPrometheusSink(reg)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	opts := []runner.Option{
		runner.WithSinks(sink),
		runner.WithBusOptions(events.OnDrop(sink.Dropped)),
	}
	return shutdown, opts, nil
}

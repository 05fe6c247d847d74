package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/shoptrace-synth/internal/api"
	"github.com/miradorstack/shoptrace-synth/internal/cache"
	"github.com/miradorstack/shoptrace-synth/internal/config"
	"github.com/miradorstack/shoptrace-synth/internal/engine"
	"github.com/miradorstack/shoptrace-synth/internal/ingest"
	"github.com/miradorstack/shoptrace-synth/internal/metrics"
	"github.com/miradorstack/shoptrace-synth/internal/models"
	"github.com/miradorstack/shoptrace-synth/internal/output"
	"github.com/miradorstack/shoptrace-synth/internal/patterns"
	"github.com/miradorstack/shoptrace-synth/internal/repo"
	"github.com/miradorstack/shoptrace-synth/internal/runner"
	"github.com/miradorstack/shoptrace-synth/internal/services"
	"github.com/miradorstack/shoptrace-synth/internal/utils"
)

func main() {
	var (
		configPath string
		serve      bool
		inputPath  string
		outputPath string
		flowsPath  string
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.BoolVar(&serve, "serve", false, "Serve the gRPC API instead of running a batch")
	flag.StringVar(&inputPath, "input", "-", "Line-delimited session JSON to read (- for stdin)")
	flag.StringVar(&outputPath, "output", "-", "Where to write training examples as JSONL (- for stdout)")
	flag.StringVar(&flowsPath, "flows", "", "Optional path for the mined flow pattern report")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.JSON)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	pack, err := patterns.Load(cfg.Patterns.Path)
	if err != nil {
		logger.Error("failed to load pattern pack", slog.String("path", cfg.Patterns.Path), slog.Any("error", err))
		os.Exit(1)
	}
	tables, err := pack.Compile()
	if err != nil {
		logger.Error("failed to compile pattern pack", slog.Any("error", err))
		os.Exit(1)
	}

	synth, err := engine.New(logger, tables, cfg.Synthesis)
	if err != nil {
		logger.Error("failed to configure synthesizer", slog.Any("error", err))
		os.Exit(1)
	}

	results, fingerprint := openResultCache(logger, cfg, pack)
	defer results.Close()

	run, err := runner.New(logger, synth, results, runner.OptionsFrom(cfg.Runner, fingerprint))
	if err != nil {
		logger.Error("failed to create runner", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if serve {
		err = serveAPI(ctx, stop, logger, cfg, run)
	} else {
		err = runBatch(ctx, logger, cfg, run, inputPath, outputPath, flowsPath)
	}
	if err != nil {
		logger.Error("shoptrace-synth failed", slog.Any("error", err))
		stop()
		os.Exit(1)
	}
}

// openResultCache falls back to an uncached run when the server is unreachable.
func openResultCache(logger *slog.Logger, cfg *config.Config, pack *patterns.Pack) (*cache.Results, string) {
	if !cfg.Cache.Enabled {
		return cache.NewResults(nil, "", 0), ""
	}
	fingerprint, err := cache.Fingerprint(cfg.Synthesis, pack, models.ExampleSchemaVersion)
	if err != nil {
		logger.Warn("result cache disabled", slog.Any("error", err))
		return cache.NewResults(nil, "", 0), ""
	}
	provider, err := cache.NewRedisProvider(cfg.Cache)
	if err != nil {
		logger.Warn("result cache unavailable", slog.Any("error", err))
		return cache.NewResults(nil, "", 0), ""
	}
	logger.Info("result cache enabled", slog.String("addr", cfg.Cache.Addr), slog.String("fingerprint", fingerprint))
	return cache.NewResults(provider, cfg.Cache.KeyPrefix, cfg.Cache.ResultTTL), fingerprint
}

func runBatch(ctx context.Context, logger *slog.Logger, cfg *config.Config, run *runner.Runner, inputPath, outputPath, flowsPath string) error {
	in, closeIn, err := openInput(inputPath)
	if err != nil {
		return err
	}
	defer closeIn()
	out, closeOut, err := openOutput(outputPath)
	if err != nil {
		return err
	}
	defer closeOut()

	batchID := uuid.NewString()
	logger.Info("batch started", slog.String("batch_id", batchID), slog.String("input", inputPath), slog.String("output", outputPath))

	writer := output.NewWriter(out)
	report, runErr := run.Run(ctx, ingest.NewReader(logger, in), writer)
	if err := writer.Flush(); err != nil && runErr == nil {
		runErr = fmt.Errorf("flush examples: %w", err)
	}
	if runErr != nil {
		return runErr
	}

	if store := flowStore(cfg, flowsPath); store != nil {
		miner := patterns.NewMiner(logger, store)
		if _, err := miner.Mine(ctx, batchID, report.Flows()); err != nil {
			return fmt.Errorf("mine flow patterns: %w", err)
		}
	}

	logger.Info("batch complete",
		slog.String("batch_id", batchID),
		slog.Int("sessions", report.Sessions),
		slog.Int("failed", report.Failed),
		slog.Int("examples", writer.Written()))
	return nil
}

func flowStore(cfg *config.Config, flowsPath string) patterns.Store {
	var stores repo.Multi
	if flowsPath != "" {
		stores = append(stores, repo.NewFileStore(flowsPath))
	}
	if cfg.Patterns.Store.Endpoint != "" {
		stores = append(stores, repo.NewWeaviateStore(cfg.Patterns.Store))
	}
	if len(stores) == 0 {
		return nil
	}
	return stores
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func serveAPI(ctx context.Context, stop context.CancelFunc, logger *slog.Logger, cfg *config.Config, run *runner.Runner) error {
	logger.Info("starting shoptrace-synth", slog.String("address", cfg.Server.Address))

	service := services.NewSynthesisService(logger, run)
	server, err := api.NewServer(cfg.Server, service)
	if err != nil {
		return fmt.Errorf("create gRPC server: %w", err)
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("shoptrace-synth stopped", slog.Duration("p95", service.LatencyP95()))
	return nil
}

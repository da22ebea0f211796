package cli

import (
	"io"
	"log"

	"modsync/internal/config"
	"modsync/internal/logx"
	"modsync/internal/metrics"
	"modsync/internal/paths"
	"modsync/internal/pipeline"
)

// env bundles what most commands load before doing any work.
type env struct {
	paths  paths.DataPaths
	cfg    config.Config
	logger *log.Logger
	closer io.Closer
}

// loadEnv resolves the data directory, loads its configuration and opens a
// per-command log file.
func loadEnv(command string) (*env, error) {
	dp, err := paths.Resolve(dataDir)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(dp.ConfigFile)
	if err != nil {
		return nil, err
	}
	dp = paths.ApplyConfig(dp, cfg)
	if err := dp.EnsureDirs(); err != nil {
		return nil, err
	}

	logger, closer, err := logx.New(dp, command)
	if err != nil {
		return nil, err
	}
	logger.Printf("modsync %s: data=%s", command, dp.Root)
	return &env{paths: dp, cfg: cfg, logger: logger, closer: closer}, nil
}

func (e *env) Close() {
	if e.closer != nil {
		e.closer.Close()
	}
}

func (e *env) printf(format string, v ...any) {
	if e.logger != nil {
		e.logger.Printf(format, v...)
	}
}

// defaultFetcher is looked up on PATH when fetcher.path is not configured.
const defaultFetcher = "steamcmd"

func (e *env) fetcher() pipeline.Fetcher {
	executable := e.paths.ResolveFetcher(e.cfg.Fetcher.Path)
	if executable == "" {
		executable = defaultFetcher
	}
	return pipeline.Fetcher{
		Executable:        executable,
		Login:             e.cfg.Fetcher.Login,
		ExtraArgs:         e.cfg.Fetcher.ExtraArgs,
		StageInCollection: e.cfg.Fetcher.StageInCollection,
	}
}

// writeMetrics exports rec to the configured textfile, if any.
func (e *env) writeMetrics(rec *metrics.Recorder) {
	if e.paths.MetricsFile == "" {
		return
	}
	if err := rec.WriteTextfile(e.paths.MetricsFile); err != nil {
		e.printf("metrics: %v", err)
	}
}

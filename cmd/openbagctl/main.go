// Copyright 2025 The openbag Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Command openbagctl drives a recording or playback session against the
// in-process membus transport from a YAML configuration file.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/zwhy2025/openbag/config"
	"github.com/zwhy2025/openbag/replay"
	"github.com/zwhy2025/openbag/transport/membus"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	logger, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "openbagctl: initializing logger: %s\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	var runErr error
	switch os.Args[1] {
	case "record":
		runErr = runRecord(os.Args[2:], sugar)
	case "play":
		runErr = runPlay(os.Args[2:], sugar)
	default:
		usage()
		os.Exit(2)
	}

	if runErr != nil {
		sugar.Errorf("openbagctl: %s", runErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: openbagctl <record|play> --config <file> [flags]")
}

func newLogger() (*zap.Logger, error) {
	return zap.NewProduction()
}

func newFlagSet(name string) (*pflag.FlagSet, *string, *string) {
	fs := pflag.NewFlagSet(name, pflag.ExitOnError)
	configPath := fs.StringP("config", "c", "", "path to the YAML configuration file")
	metricsAddr := fs.String("metrics-addr", "", "if set, serve Prometheus metrics on this address")
	return fs, configPath, metricsAddr
}

func serveMetrics(addr string, logger *zap.SugaredLogger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Warnf("metrics server stopped: %s", err)
		}
	}()
}

func waitForInterrupt() {
	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, os.Interrupt)
	<-sigC
	signal.Stop(sigC)
}

func runRecord(args []string, logger *zap.SugaredLogger) error {
	fs, configPath, metricsAddr := newFlagSet("record")
	var bufferSize int
	var writeBatchSize int
	fs.IntVar(&bufferSize, "buffer-size", 0, "override the configured buffer capacity")
	fs.IntVar(&writeBatchSize, "write-batch-size", 0, "override the configured write batch size")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return fmt.Errorf("record: --config is required")
	}

	var cfg struct {
		Recorder config.RecorderConfig `yaml:"recorder"`
		Storage  config.StorageConfig  `yaml:"storage"`
		Buffer   config.BufferConfig   `yaml:"buffer"`
	}
	if err := config.Load(*configPath, &cfg); err != nil {
		return err
	}
	if bufferSize > 0 {
		cfg.Buffer.BufferSize = bufferSize
	}
	if writeBatchSize > 0 {
		cfg.Storage.WriteBatchSize = writeBatchSize
	}

	replay.RegisterMonitoring(prometheus.DefaultRegisterer)
	serveMetrics(*metricsAddr, logger)

	bus := membus.New()
	writer := replay.NewWriterFromConfig(cfg.Recorder, cfg.Storage, logger)
	buffer := replay.NewBufferFromConfig(cfg.Buffer)
	rec := replay.NewRecorder(bus, writer, buffer, cfg.Storage.WriteBatchSize, logger)

	if err := rec.Start(cfg.Recorder.Topics); err != nil {
		return fmt.Errorf("starting recorder: %w", err)
	}
	logger.Infof("recording %d topic(s) to %s", len(cfg.Recorder.Topics), cfg.Recorder.OutputPath)

	waitForInterrupt()

	logger.Info("stopping recorder")
	if err := rec.Stop(); err != nil {
		return fmt.Errorf("stopping recorder: %w", err)
	}

	status := rec.Status()
	logger.Infof("recorded %d message(s), %d byte(s)", status.TotalMessages, status.FileSize)
	return nil
}

func runPlay(args []string, logger *zap.SugaredLogger) error {
	fs, configPath, metricsAddr := newFlagSet("play")
	var rateOverride float64
	fs.Float64Var(&rateOverride, "rate", 0, "override the configured playback rate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return fmt.Errorf("play: --config is required")
	}

	var cfg struct {
		Player config.PlayerConfig `yaml:"player"`
	}
	if err := config.Load(*configPath, &cfg); err != nil {
		return err
	}
	if rateOverride > 0 {
		cfg.Player.PlaybackRate = rateOverride
	}

	replay.RegisterMonitoring(prometheus.DefaultRegisterer)
	serveMetrics(*metricsAddr, logger)

	bus := membus.New()
	player := replay.NewPlayerFromConfig(bus, cfg.Player, logger)

	if err := player.Start(); err != nil {
		return fmt.Errorf("starting player: %w", err)
	}
	logger.Infof("playing %s", cfg.Player.InputPath)

	waitForInterrupt()

	logger.Info("stopping player")
	return player.Stop()
}

package main

import (
	"flag"
	"os"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/exoprep/pkg/config"
	"github.com/yurifrl/exoprep/pkg/fields"
	"github.com/yurifrl/exoprep/pkg/predictor"
	"github.com/yurifrl/exoprep/pkg/server"
	"github.com/yurifrl/exoprep/pkg/store"
)

func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		Prefix:          "exoprep",
	})

	cfgFile := flag.String("c", "", "Config file")
	flag.Parse()

	if err := fields.ValidateContract(); err != nil {
		logger.Fatal("invalid form contract", "err", err)
	}

	cfg, err := config.Build(*cfgFile, nil)
	if err != nil {
		logger.Fatal("failed to load config", "err", err)
	}
	logger.SetLevel(cfg.LogLevel())

	results, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		logger.Fatal("failed to open result store", "err", err)
	}
	defer results.Close()

	client := predictor.New(cfg.Predictor.URL, cfg.Predictor.Timeout, logger)
	srv := server.New(cfg, logger, client, results)
	logger.Info("starting server", "addr", cfg.Server.Addr)
	if err := srv.Start(cfg.Server.Addr); err != nil {
		logger.Fatal("server error", "err", err)
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yurifrl/exoprep/pkg/config"
	"github.com/yurifrl/exoprep/pkg/fields"
	"github.com/yurifrl/exoprep/pkg/predictor"
	"github.com/yurifrl/exoprep/pkg/server"
	"github.com/yurifrl/exoprep/pkg/session"
	"github.com/yurifrl/exoprep/pkg/store"
)

var (
	cliOpts options
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "exoprep",
	Short: "Prepare exoplanet observation tables for classification",
	PersistentPreRunE: func(*cobra.Command, []string) error {
		return fields.ValidateContract()
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion web page",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		results, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
		if err != nil {
			return err
		}
		defer results.Close()

		client := predictor.New(cfg.Predictor.URL, cfg.Predictor.Timeout, logger)
		srv := server.New(cfg, logger, client, results)
		logger.Info("starting server", "addr", cfg.Server.Addr, "predictor", cfg.Predictor.URL, "store", cfg.Store.Driver)
		return srv.Start(cfg.Server.Addr)
	},
}

var prepareCmd = &cobra.Command{
	Use:   "prepare [flags] <input_path>",
	Short: "Parse a file, reconcile its headers and show the payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		return NewFileProcessor(logger, &cliOpts).Process(args[0])
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit [flags] <file>",
	Short: "Prepare a file and send it to the prediction service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		results, err := store.Open(cfg.Store.Driver, cfg.Store.Path)
		if err != nil {
			return err
		}
		defer results.Close()

		processor := NewFileProcessor(logger, &cliOpts)
		table, report, err := processor.Reconcile(args[0])
		if err != nil {
			return err
		}

		client := predictor.New(cfg.Predictor.URL, cfg.Predictor.Timeout, logger)
		sess := session.New(uuid.NewString(), client, results, cfg.Predictor.Timeout, logger)
		sess.Load(table)
		for _, e := range report.Entries {
			if err := sess.Override(e.Field, e.Selected); err != nil {
				return err
			}
		}

		out, err := sess.Submit(context.Background(), nil)
		if err != nil {
			return err
		}
		logger.Info("result stored", "key", store.SessionKey(sess.ID), "records", out.Records)

		b, err := json.MarshalIndent(out.Result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show the prediction model's evaluation metrics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Predictor.Timeout)
		defer cancel()

		m, err := predictor.New(cfg.Predictor.URL, cfg.Predictor.Timeout, logger).Metrics(ctx)
		if err != nil {
			return err
		}

		title := lipgloss.NewStyle().Bold(true)
		fmt.Println(title.Render("Model metrics"))
		fmt.Printf("  accuracy   %.4f\n", m.Accuracy)
		avg := m.WeightedAvg()
		fmt.Printf("  precision  %.4f\n", avg.Precision)
		fmt.Printf("  recall     %.4f\n", avg.Recall)
		fmt.Printf("  f1-score   %.4f\n", avg.F1Score)
		for i, name := range m.ClassNames {
			if i < len(m.ConfusionMatrix) {
				fmt.Printf("  %-16s %v\n", name, m.ConfusionMatrix[i])
			}
		}
		return nil
	},
}

// setup loads configuration and builds the logger for a command.
func setup(cmd *cobra.Command) (*config.Config, *log.Logger, error) {
	cfg, err := config.Build(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "exoprep",
		Level:           cfg.LogLevel(),
	})
	return cfg, logger, nil
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default is config.yaml)")
	rootCmd.PersistentFlags().String("predictor-url", "", "Base URL of the prediction service")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Timeout for prediction requests")
	rootCmd.PersistentFlags().String("store", "", "Result store driver (memory or sqlite)")
	rootCmd.PersistentFlags().String("store-path", "", "Path of the sqlite result store")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	serveCmd.Flags().String("addr", "", "Listen address")

	for _, c := range []*cobra.Command{prepareCmd, submitCmd} {
		c.Flags().StringVarP(&cliOpts.mappingFile, "mapping", "m", "", "Apply a saved header mapping")
	}
	prepareCmd.Flags().StringVar(&cliOpts.saveMapping, "save-mapping", "", "Write the confirmed mapping to this file")
	prepareCmd.Flags().BoolVar(&cliOpts.debug, "debug", false, "Dump the assembled payload")
	prepareCmd.Flags().BoolVar(&cliOpts.csv, "csv", false, "Print the normalized records as CSV")
	prepareCmd.Flags().BoolVar(&cliOpts.completeOnly, "complete-only", false, "With --csv, skip rows with empty values")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(prepareCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(metricsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/qoldau/qoldau/internal/autoreply"
	"github.com/qoldau/qoldau/internal/classify"
	"github.com/qoldau/qoldau/internal/httpapi"
	"github.com/qoldau/qoldau/internal/ingest"
	"github.com/qoldau/qoldau/internal/metrics"
	"github.com/qoldau/qoldau/internal/respbank"
	"github.com/qoldau/qoldau/internal/routing"
	"github.com/qoldau/qoldau/internal/sla"
	"github.com/qoldau/qoldau/internal/storage/sqlite"
	"github.com/qoldau/qoldau/internal/telemetry"
)

// shutdownGrace bounds HTTP connection draining after a signal.
const shutdownGrace = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, SLA engine and response-bank watcher",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := sqlite.Open(ctx, cfg.DB.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		wrapped := telemetry.WrapStore(store)

		bank := respbank.New(cfg.Bank.Path, cfg.Bank.CacheDir, buildEncoder(), logger)
		bankOK := true
		if err := bank.Build(ctx); err != nil {
			// Auto-reply stays disabled for the process lifetime; ticket
			// ingestion itself is unaffected.
			logger.Warn("response bank unavailable", "path", cfg.Bank.Path, "error", err)
			bankOK = false
		}

		classifier := classify.New(cfg.Classifier.URL, cfg.Classifier.Timeout, logger)
		var drafter ingest.Drafter
		if bankOK {
			drafter = autoreply.New(bank, autoreply.Thresholds{
				RU:       cfg.AutoReply.ThresholdRU,
				KK:       cfg.AutoReply.ThresholdKK,
				Verbatim: cfg.AutoReply.Verbatim,
			})
		}
		orchestrator := ingest.New(wrapped, classifier, drafter, routing.Thresholds{
			ClarifyConfidence: cfg.Routing.ClarifyConfidence,
			AutoConfidence:    cfg.Routing.AutoConfidence,
		}, logger)
		aggregator := metrics.New(wrapped, cfg.Metrics.ResponseTimeSeconds)

		var apiBank *respbank.Bank
		if bankOK {
			apiBank = bank
		}
		api := httpapi.New(wrapped, orchestrator, apiBank, aggregator, version, logger)
		srv := api.HTTPServer(cfg.ListenAddr)

		engine := sla.NewEngine(wrapped, cfg.SLA.Interval, cfg.SLA.EscalationWindow, logger)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("http server listening", "addr", cfg.ListenAddr, "version", version)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			return srv.Shutdown(drainCtx)
		})
		g.Go(func() error {
			if err := engine.Run(gctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		if bankOK {
			g.Go(func() error {
				if err := bank.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		}

		err = g.Wait()
		logger.Info("shutdown complete")
		return err
	},
}

func buildEncoder() respbank.Encoder {
	if cfg.Bank.Encoder == "http" {
		return respbank.NewHTTPEncoder(cfg.Bank.EncoderURL, cfg.Bank.Dims)
	}
	return respbank.NewHashEncoder(cfg.Bank.Dims)
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// Package command holds the CLI of the parking backend. The root command
// serves the HTTP API together with its background workers; the other
// sub-commands are operator tooling.
//
//	./smart-parking                      # serve
//	./smart-parking simulate             # synthetic detection agent
//	./smart-parking reconcile [lot-id]   # recount available slots
//	./smart-parking user create --email a@b.c --password ... --role admin
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mynul56/smart-parking-ai/internal/api"
	"github.com/mynul56/smart-parking-ai/internal/config"
	"github.com/mynul56/smart-parking-ai/internal/iot"
	"github.com/mynul56/smart-parking-ai/internal/logging"
	"github.com/mynul56/smart-parking-ai/internal/realtime"
)

const shutdownTimeout = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:           "smart-parking",
	Short:         "Real-time parking availability backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          serve,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and installs the default logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serve(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireServing(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	store, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.close()

	a, err := newApp(ctx, cfg, store)
	if err != nil {
		return err
	}

	router := api.SetupRouter(api.Services{
		Auth:         a.auth,
		Parking:      a.parking,
		Slots:        a.slots,
		Reservations: a.reservations,
		Detections:   a.detections,
		LPR:          a.lpr,
		Reconciler:   a.reconciler,
		Realtime: realtime.NewHandler(a.hub, a.auth, realtime.HandlerOptions{
			SendBuffer:   cfg.WSSendBuffer,
			PingInterval: cfg.WSPingInterval,
			Lots:         store.lots,
		}),
	})
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.Info(gctx, "http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logging.Info(context.Background(), "shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.SQSDetectionQueueURL != "" {
		consumer := iot.NewSQSConsumer(sqs.NewFromConfig(*a.awsCfg), cfg.SQSDetectionQueueURL, a.detections)
		g.Go(func() error { return consumer.Start(gctx) })
	} else {
		logging.Warn(ctx, "SQS_DETECTION_QUEUE_URL is not set; AI detections are only accepted over HTTP")
	}
	if a.signage != nil {
		g.Go(func() error { return a.signage.Run(gctx) })
	}
	if cfg.ReconcileInterval > 0 {
		g.Go(func() error { return a.reconciler.Run(gctx, cfg.ReconcileInterval) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logging.Info(context.Background(), "server stopped")
	return nil
}

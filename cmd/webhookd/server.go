// Copyright (c) 2024-present Docuflow, Inc. All Rights Reserved.
// See LICENSE.txt for license information.
//

package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/juju/clock"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logrus "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/docuflow/webhook-delivery/internal/api"
	"github.com/docuflow/webhook-delivery/internal/circuitbreaker"
	"github.com/docuflow/webhook-delivery/internal/dispatcher"
	"github.com/docuflow/webhook-delivery/internal/metrics"
	"github.com/docuflow/webhook-delivery/internal/scheduler"
	"github.com/docuflow/webhook-delivery/internal/store"
)

func init() {
	serverCmd.PersistentFlags().String("database", "sqlite://webhookd.db", "The database backing the webhook delivery server.")
	serverCmd.PersistentFlags().String("listen", ":8076", "The interface and port on which to listen.")
	serverCmd.PersistentFlags().Int("workers", 5, "The number of concurrent delivery workers.")
	serverCmd.PersistentFlags().Int("drain-timeout", 30, "The seconds to wait for in-flight deliveries on shutdown.")
	serverCmd.PersistentFlags().Bool("health-probe", false, "Whether to probe open-circuit endpoints with HEAD requests.")
	serverCmd.PersistentFlags().Bool("debug", false, "Whether to output debug logs.")
	serverCmd.PersistentFlags().Bool("machine-readable-logs", false, "Output the logs in machine readable format.")
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the webhook delivery server.",
	RunE: func(command *cobra.Command, args []string) error {
		command.SilenceUsage = true

		debug, _ := command.Flags().GetBool("debug")
		if debug {
			logger.SetLevel(logrus.DebugLevel)
		}

		machineLogs, _ := command.Flags().GetBool("machine-readable-logs")
		if machineLogs {
			logger.SetFormatter(&logrus.JSONFormatter{})
		}

		logger := logger.WithField("instance", instanceID)

		sqlStore, err := sqlStore(command)
		if err != nil {
			return err
		}

		currentVersion, err := sqlStore.GetCurrentVersion()
		if err != nil {
			return err
		}
		serverVersion := store.LatestVersion()

		// Require the schema to be at least the server version, and also the same major
		// version.
		if currentVersion.LT(serverVersion) || currentVersion.Major != serverVersion.Major {
			return errors.Errorf("server requires at least schema %s, current is %s", serverVersion, currentVersion)
		}

		workers, _ := command.Flags().GetInt("workers")
		drainTimeout, _ := command.Flags().GetInt("drain-timeout")
		healthProbe, _ := command.Flags().GetBool("health-probe")

		logger.WithFields(logrus.Fields{
			"store-version": currentVersion,
			"workers":       workers,
			"drain-timeout": drainTimeout,
			"health-probe":  healthProbe,
			"debug":         debug,
		}).Info("Starting webhook delivery server")

		deliveryMetrics := metrics.New()

		var probe circuitbreaker.ProbeFunc
		if healthProbe {
			probe = headProbe
		}
		breakers := circuitbreaker.NewManager(circuitbreaker.Config{}, clock.WallClock, probe, logger)
		defer breakers.Close()

		eventDispatcher := dispatcher.New(sqlStore, breakers, deliveryMetrics, clock.WallClock, logger)

		deliveryScheduler := scheduler.New(sqlStore, eventDispatcher, deliveryMetrics, clock.WallClock, scheduler.Config{
			Workers:      workers,
			DrainTimeout: time.Duration(drainTimeout) * time.Second,
		}, logger)
		deliveryScheduler.Start()

		router := mux.NewRouter()

		api.Register(router, &api.Context{
			Store:    sqlStore,
			Breakers: breakers,
			Logger:   logger,
		})
		router.Handle("/metrics", promhttp.Handler())

		listen, _ := command.Flags().GetString("listen")
		srv := &http.Server{
			Addr:           listen,
			Handler:        router,
			ReadTimeout:    180 * time.Second,
			WriteTimeout:   180 * time.Second,
			IdleTimeout:    time.Second * 180,
			MaxHeaderBytes: 1 << 20,
			ErrorLog:       stdlog.New(&logrusWriter{logger}, "", 0),
		}

		go func() {
			logger.WithField("addr", srv.Addr).Info("Listening")
			err := srv.ListenAndServe()
			if err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("Failed to listen and serve")
			}
		}()

		c := make(chan os.Signal, 1)
		// We'll accept graceful shutdowns when quit via SIGINT (Ctrl+C)
		// or SIGTERM; SIGKILL and SIGQUIT will not be caught.
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)

		// Block until we receive our signal.
		<-c
		logger.Info("Shutting down")

		deliveryScheduler.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		srv.Shutdown(ctx)

		return nil
	},
}

// headProbe checks whether an open-circuit endpoint is reachable again
// without delivering a payload.
func headProbe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return errors.Wrap(err, "unable to create probe request")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "probe request failed")
	}
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return errors.Errorf("endpoint still failing with status %d", resp.StatusCode)
	}

	return nil
}

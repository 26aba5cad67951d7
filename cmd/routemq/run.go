package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/routemq/routemq/broker"
	"github.com/routemq/routemq/config"
	"github.com/routemq/routemq/core"
	"github.com/routemq/routemq/core/middleware"
	"github.com/routemq/routemq/core/middleware/metricscollector"
	"github.com/routemq/routemq/dispatcher"
	_ "github.com/routemq/routemq/plugins/mqtt"
	"github.com/routemq/routemq/router"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the dispatcher (spec §6 \"run\")",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDispatcher()
	},
}

func runDispatcher() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	b, err := broker.Create("mqtt", broker.Config{
		Brokers:        cfg.Broker.Brokers,
		ClientID:       cfg.Broker.ClientID,
		Username:       cfg.Broker.Username,
		Password:       cfg.Broker.Password,
		Group:          cfg.Broker.Group,
		ConnectTimeout: config.Seconds(cfg.Broker.ConnectTimeoutSeconds),
		KeepAlive:      config.Seconds(cfg.Broker.KeepAliveSeconds),
		CleanSession:   cfg.Broker.CleanSession,
	})
	if err != nil {
		return err
	}

	r := router.New()
	if err := registerRoutes(r); err != nil {
		return err
	}

	d := dispatcher.New(r, b, core.JSONBinder{}, dispatcher.WithLogger(slog.Default()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("routemq dispatcher starting")
	return d.Start(ctx)
}

// registerRoutes wires up the framework's reference routes. A real
// deployment embeds RouteMQ as a library and registers its own routes
// before calling dispatcher.New; this is the reference set shipped with
// the CLI.
func registerRoutes(r *router.Router) error {
	r.Use(middleware.Logging())
	r.Use(middleware.Recovery())
	r.Use(middleware.Metrics(metricscollector.NewPrometheus(prometheus.DefaultRegisterer)))

	if _, err := r.Register("health/check", func(c core.Context) error {
		return c.Publish("health/status", []byte(`{"status":"ok"}`), 0)
	}, router.Options{QoS: 0}); err != nil {
		return err
	}

	_, err := r.Register("devices/{id}/telemetry", func(c core.Context) error {
		slog.Info("telemetry received", "device_id", c.Param("id"), "request_id", c.RequestID())
		return nil
	}, router.Options{QoS: 1, Shared: true, Group: "telemetry-workers", WorkerCount: 4})
	return err
}

// Command swimd runs one SWIM-with-Lifeguard membership node: it loads a
// TOML config (with flag overrides), constructs a swim.Instance, and hands
// it to an internal/daemon.Daemon that serves the SWIM and admin gRPC
// services and exposes Prometheus metrics over HTTP.
package main

import (
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"swimguard/internal/clock"
	"swimguard/internal/config"
	"swimguard/internal/daemon"
	"swimguard/internal/metrics"
	"swimguard/internal/swim"
	"swimguard/internal/transport"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.WithError(err).Fatal("swimd exited with error")
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var metricsAddr string

	cfg := config.DefaultFileConfig()

	cmd := &cobra.Command{
		Use:   "swimd",
		Short: "Run a SWIM-with-Lifeguard membership node",
		RunE: func(cmd *cobra.Command, args []string) error {
			effective := cfg
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				effective = *loaded
				// Flags explicitly set on the command line still win over
				// the file.
				applyFlagOverrides(cmd, &effective, cfg)
			}
			return run(effective, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a TOML config file")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9946", "address to serve Prometheus metrics on")
	config.BindFlags(cmd, &cfg)

	return cmd
}

// applyFlagOverrides copies only the fields whose flag was explicitly set
// on the command line from parsed (the flag-bound config, already parsed
// by cobra before RunE runs) onto dst (the file-loaded config), so a flag
// always wins over the file but the file wins over un-set flag defaults.
func applyFlagOverrides(cmd *cobra.Command, dst *config.FileConfig, parsed config.FileConfig) {
	flags := cmd.Flags()
	if flags.Changed("node-uid") {
		dst.NodeUID = parsed.NodeUID
	}
	if flags.Changed("listen") {
		dst.ListenAddr = parsed.ListenAddr
	}
	if flags.Changed("peers") {
		dst.Peers = parsed.Peers
	}
	if flags.Changed("probe-interval") {
		dst.ProbeInterval = parsed.ProbeInterval
	}
	if flags.Changed("ping-timeout") {
		dst.PingTimeout = parsed.PingTimeout
	}
	if flags.Changed("indirect-probe-count") {
		dst.IndirectProbeCount = parsed.IndirectProbeCount
	}
	if flags.Changed("extension-unreachability") {
		dst.ExtensionUnreachability = parsed.ExtensionUnreachability
	}
}

func run(cfg config.FileConfig, metricsAddr string) error {
	if cfg.NodeUID == "" {
		cfg.NodeUID = uuid.NewString()
	}

	peers, err := config.ParsePeers(cfg.Peers)
	if err != nil {
		return fmt.Errorf("swimd: %w", err)
	}

	log := logrus.NewEntry(logrus.StandardLogger())
	log.Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	self := swim.Node{Endpoint: cfg.ListenAddr, UID: cfg.NodeUID}
	seed := rand.New(rand.NewSource(time.Now().UnixNano()))
	inst := swim.NewInstance(self, cfg.Settings(), clock.System(), seed)

	for _, p := range config.BuildSwimNodes(peers) {
		inst.Join(p)
	}

	registry := prometheus.NewRegistry()
	rec := metrics.NewRecorder(registry)

	dialer := transport.NewDialer()
	defer dialer.Close()

	d := daemon.New(inst, dialer, rec, log.WithField("node_uid", cfg.NodeUID), cfg.ListenAddr)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		log.WithField("metrics_addr", metricsAddr).Info("serving metrics")
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.WithError(err).Error("metrics server stopped")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
		d.Stop()
		return nil
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/backkem/dlms/pkg/apdulog"
	"github.com/backkem/dlms/pkg/config"
	"github.com/backkem/dlms/pkg/keys"
	"github.com/backkem/dlms/pkg/meter"
	"github.com/spf13/cobra"
)

var serveConfig string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the association server",
	Long: `Run the association server until interrupted.

Without --config the server listens on :4059 with the default logical
devices and no secrets, so only lowest-level associations succeed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := config.Default()
		if serveConfig != "" {
			var err error
			if cfg, err = config.Load(serveConfig); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfig, "config", "c", "", "configuration file (YAML)")
}

// serve builds a server from cfg and runs it until ctx is done.
func serve(ctx context.Context, cfg *config.Config) error {
	loggerFactory := cfg.LoggerFactory(os.Stderr)
	log := loggerFactory.NewLogger("cli")

	reg, err := cfg.Registry()
	if err != nil {
		return err
	}

	store, err := cfg.OpenKeyStore(ctx)
	if err != nil {
		return fmt.Errorf("open key store: %w", err)
	}
	defer store.Close()

	var trace apdulog.Logger
	if cfg.TraceFile != "" {
		fl, err := apdulog.NewFileLogger(cfg.TraceFile)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		defer fl.Close()
		trace = fl
	}

	sc := meter.ServerConfig{
		Registry:       reg,
		Keys:           keys.NewLoader(store, loggerFactory),
		Capacity:       cfg.Capacity,
		MaxPDU:         cfg.MaxPDU,
		MaxConnections: cfg.MaxConnections,
		ListenAddr:     cfg.Listen,
		TCPEnabled:     cfg.TCP,
		UDPEnabled:     cfg.UDP,
		Trace:          trace,
		LoggerFactory:  loggerFactory,
		OnStateChanged: func(state meter.ServerState) {
			log.Infof("state changed: %s", state)
		},
	}
	if cfg.Discovery.Enabled {
		sc.Discovery = &meter.DiscoveryConfig{
			SystemTitle:  cfg.SystemTitle(),
			Manufacturer: cfg.Discovery.Manufacturer,
		}
	}

	server, err := meter.NewServer(sc)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	for _, addr := range server.LocalAddresses() {
		log.Infof("listening on %s/%s", addr.Network(), addr)
	}

	<-ctx.Done()
	return server.Stop()
}

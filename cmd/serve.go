package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/telegate/telegate/internal/config"
	"github.com/telegate/telegate/internal/fanout"
	"github.com/telegate/telegate/internal/httpapi"
	"github.com/telegate/telegate/internal/ingest"
	"github.com/telegate/telegate/internal/lifecycle"
	"github.com/telegate/telegate/internal/provider"
	"github.com/telegate/telegate/internal/redis"
	"github.com/telegate/telegate/internal/registry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ingestion gateway",
	RunE:  runServe,
}

var servePort int

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Override the configured port")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if servePort > 0 {
		cfg.Server.Port = servePort
	}

	v, err := openVault(&cfg, "")
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	cache := redis.New(redis.Config{
		URL:      cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer cache.Close()

	bus := fanout.NewBus()
	publishers := fanout.Multi{bus}
	if cfg.Fanout.AMQPURL != "" {
		amqp, err := fanout.NewAMQP(cfg.Fanout.AMQPURL, cfg.Fanout.Exchange)
		if err != nil {
			return fmt.Errorf("connecting notification broker: %w", err)
		}
		publishers = append(publishers, amqp)
		log.Printf("[Serve] notification fanout to exchange %q", cfg.Fanout.Exchange)
	}
	defer publishers.Close()

	pipe := ingest.New(st, publishers)
	reg := registry.New()
	botAPI := provider.NewBotAPI(cfg.Provider.APIBase, sendTimeout(cfg))

	ctl := lifecycle.New(lifecycle.Options{
		PublicURL:    cfg.Server.PublicURL,
		BridgeURL:    cfg.Bridge.URL,
		ProbeTimeout: probeTimeout(cfg),
		SendTimeout:  sendTimeout(cfg),
		QueueSize:    cfg.Ingest.QueueSize,
	}, v, st, reg, botAPI, pipe, cache, publishers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Dispatch(ctx)

	// Bring back the sessions that were live before the last shutdown.
	ctl.ResumeActive(ctx)

	server := httpapi.New(ctl, cfg.Server.APIKey)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("Starting telegate on %s\n", addr)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(addr) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case err := <-errCh:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	ctl.StopAll(shutdownCtx)
	return server.Shutdown(shutdownCtx)
}

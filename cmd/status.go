package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telegate/telegate/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show telegate status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	configPath := config.GetConfigPath()
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fmt.Println("telegate Status")
	fmt.Println()
	fmt.Printf("Config: %s\n", configPath)
	fmt.Printf("Storage: %s\n", cfg.Storage.Path)
	fmt.Printf("Listen: %s:%d\n", cfg.Server.Host, cfg.Server.Port)

	fmt.Println("\nIntegrations:")
	if cfg.Server.PublicURL != "" {
		fmt.Printf("  Webhooks: %s\n", cfg.Server.PublicURL)
	}
	if cfg.Bridge.URL != "" {
		fmt.Printf("  Bridge: %s\n", cfg.Bridge.URL)
	}
	if cfg.Redis.URL != "" {
		fmt.Println("  Redis: configured")
	}
	if cfg.Fanout.AMQPURL != "" {
		fmt.Printf("  AMQP: exchange %s\n", cfg.Fanout.Exchange)
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	entities, err := st.ListEntities(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("\nEntities: %d registered\n", len(entities))
	for _, e := range entities {
		fmt.Printf("  %s (%s)\n", e.Ref, e.Status)
	}
	return nil
}

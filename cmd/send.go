package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/telegate/telegate/internal/config"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a message through a running gateway",
	RunE:  runSend,
}

var (
	sendKind   string
	sendEntity int64
	sendChat   int64
	sendText   string
)

func init() {
	sendCmd.Flags().StringVar(&sendKind, "kind", "bot", "Entity kind")
	sendCmd.Flags().Int64Var(&sendEntity, "entity", 0, "Entity id")
	sendCmd.Flags().Int64Var(&sendChat, "chat", 0, "Target chat id")
	sendCmd.Flags().StringVar(&sendText, "text", "", "Message text")
	sendCmd.MarkFlagRequired("entity")
	sendCmd.MarkFlagRequired("chat")
	sendCmd.MarkFlagRequired("text")
	rootCmd.AddCommand(sendCmd)
}

// runSend talks to the serve process over its own API; sessions live
// there, not in this process.
func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	body, _ := json.Marshal(map[string]any{"chat_id": sendChat, "text": sendText})
	url := fmt.Sprintf("http://%s:%d/api/entities/%s/%d/send",
		cfg.Server.Host, cfg.Server.Port, sendKind, sendEntity)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.Server.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Server.APIKey)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("calling gateway: %w", err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, payload)
	}
	fmt.Printf("Sent: %s\n", payload)
	return nil
}

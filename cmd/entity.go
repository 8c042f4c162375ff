package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telegate/telegate/internal/config"
	"github.com/telegate/telegate/internal/store"
	"github.com/telegate/telegate/internal/telegram"
	"github.com/telegate/telegate/internal/transport"
)

var entityCmd = &cobra.Command{
	Use:   "entity",
	Short: "Manage registered Telegram entities",
}

var addBotCmd = &cobra.Command{
	Use:   "add-bot",
	Short: "Register a bot entity",
	RunE:  runAddBot,
}

var addAccountCmd = &cobra.Command{
	Use:   "add-account",
	Short: "Register a user account entity",
	RunE:  runAddAccount,
}

var listEntitiesCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered entities",
	RunE:  runListEntities,
}

var (
	botID       int64
	botToken    string
	botUsername string

	accountID      int64
	accountPhone   string
	accountSession string
	accountAPIID   string
	accountAPIHash string
)

func init() {
	addBotCmd.Flags().Int64Var(&botID, "id", 0, "Bot id (the numeric part of the token)")
	addBotCmd.Flags().StringVar(&botToken, "token", "", "Bot API token")
	addBotCmd.Flags().StringVar(&botUsername, "username", "", "Bot username, for display")
	addBotCmd.MarkFlagRequired("id")
	addBotCmd.MarkFlagRequired("token")

	addAccountCmd.Flags().Int64Var(&accountID, "id", 0, "Telegram user id of the account")
	addAccountCmd.Flags().StringVar(&accountPhone, "phone", "", "Phone number, for display")
	addAccountCmd.Flags().StringVar(&accountSession, "session", "", "MTProto session string")
	addAccountCmd.Flags().StringVar(&accountAPIID, "api-id", "", "Telegram API id")
	addAccountCmd.Flags().StringVar(&accountAPIHash, "api-hash", "", "Telegram API hash")
	addAccountCmd.MarkFlagRequired("id")
	addAccountCmd.MarkFlagRequired("session")

	entityCmd.AddCommand(addBotCmd)
	entityCmd.AddCommand(addAccountCmd)
	entityCmd.AddCommand(listEntitiesCmd)
	rootCmd.AddCommand(entityCmd)
}

func runAddBot(cmd *cobra.Command, args []string) error {
	if !strings.HasPrefix(botToken, fmt.Sprintf("%d:", botID)) {
		return fmt.Errorf("token must have the form <id>:<secret> and match --id %d", botID)
	}

	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
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

	tokenEnc, err := v.Encrypt(botToken)
	if err != nil {
		return fmt.Errorf("encrypting token: %w", err)
	}

	ref := telegram.EntityRef{Kind: telegram.EntityBot, ID: botID}
	if err := st.CreateEntity(context.Background(), &store.Entity{
		Ref:           ref,
		Username:      botUsername,
		CredentialEnc: tokenEnc,
		Status:        "inactive",
	}); err != nil {
		return fmt.Errorf("storing entity: %w", err)
	}

	fmt.Printf("Registered %s\n", ref)
	fmt.Printf("Webhook path: /webhook/bot/%d/%s\n", botID, transport.WebhookSecret(botID))
	return nil
}

func runAddAccount(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
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

	credEnc, err := v.Encrypt(accountAPIID + ":" + accountAPIHash)
	if err != nil {
		return fmt.Errorf("encrypting credential: %w", err)
	}
	sessionEnc, err := v.Encrypt(accountSession)
	if err != nil {
		return fmt.Errorf("encrypting session: %w", err)
	}

	ref := telegram.EntityRef{Kind: telegram.EntityAccount, ID: accountID}
	if err := st.CreateEntity(context.Background(), &store.Entity{
		Ref:           ref,
		Phone:         accountPhone,
		CredentialEnc: credEnc,
		SessionEnc:    sessionEnc,
		Status:        "inactive",
	}); err != nil {
		return fmt.Errorf("storing entity: %w", err)
	}

	fmt.Printf("Registered %s\n", ref)
	return nil
}

func runListEntities(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
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
	if len(entities) == 0 {
		fmt.Println("No entities registered")
		return nil
	}

	for _, e := range entities {
		name := e.Username
		if name == "" {
			name = e.Phone
		}
		fmt.Printf("%-14s  %-16s  %-8s  %s\n", e.Ref, name, e.Status, telegram.TransportFor(e.Ref.Kind))
	}
	return nil
}

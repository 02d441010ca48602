package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmehdipour/sms-relay/internal/config"
	"github.com/jmehdipour/sms-relay/internal/db"
	"github.com/jmehdipour/sms-relay/internal/model"
	"github.com/jmehdipour/sms-relay/internal/repository"
)

// adminCmd is the only path that sets is_admin; inbound SMS never does.
var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage broadcast administrators",
}

var adminGrantCmd = &cobra.Command{
	Use:   "grant <contact>",
	Short: "Allow a contact to broadcast",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setAdmin(cmd.Context(), args[0], true)
	},
}

var adminRevokeCmd = &cobra.Command{
	Use:   "revoke <contact>",
	Short: "Remove broadcast rights from a contact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setAdmin(cmd.Context(), args[0], false)
	},
}

var adminListCmd = &cobra.Command{
	Use:   "list",
	Short: "List administrators",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, closeFn, err := openSubscribers()
		if err != nil {
			return err
		}
		defer closeFn()

		admins, err := repo.ListAdmins(cmd.Context())
		if err != nil {
			return err
		}
		for _, a := range admins {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\tactive=%v\n", a.Contact, a.IsActive)
		}
		return nil
	},
}

func init() {
	adminCmd.AddCommand(adminGrantCmd, adminRevokeCmd, adminListCmd)
}

func setAdmin(ctx context.Context, contact string, admin bool) error {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return fmt.Errorf("contact is required")
	}

	repo, closeFn, err := openSubscribers()
	if err != nil {
		return err
	}
	defer closeFn()

	// is_active is left as it is; a new row starts inactive until the contact texts START
	if err := repo.Upsert(ctx, contact, model.SubscriberFields{IsAdmin: model.Bool(admin)}); err != nil {
		return err
	}
	fmt.Printf(">> %s admin=%v\n", contact, admin)
	return nil
}

func openSubscribers() (*repository.SubscribersRepositoryImpl, func(), error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	storeDB, err := db.OpenSubscriberStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("store connect: %w", err)
	}
	repo, err := repository.NewSubscribersRepository(storeDB)
	if err != nil {
		_ = storeDB.Close()
		return nil, nil, err
	}
	return repo, func() { _ = storeDB.Close() }, nil
}

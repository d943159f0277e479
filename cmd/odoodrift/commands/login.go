package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newLoginCommand authenticates against an Odoo server and persists the
// resulting session state in the history store. plan/apply/drift/dev do not
// read that saved session back: each of them authenticates afresh from the
// credential flags or their environment-variable fallbacks.
func newLoginCommand() *cobra.Command {
	var creds credentialFlags

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate against an Odoo server and save the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := creds.resolve()

			store, err := openHistoryStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			sess, err := newAuthenticatedSession(ctx, store, cfg)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			state, err := sess.State()
			if err != nil {
				return err
			}
			if err := store.SaveSession(ctx, state); err != nil {
				return fmt.Errorf("failed to persist session: %w", err)
			}

			fmt.Printf("Logged in to %s as uid %d (server %s)\n", state.Database, state.UID, state.ServerVersion)
			return nil
		},
	}

	bindCredentialFlags(cmd, &creds)
	return cmd
}

// newLogoutCommand clears the persisted session. It is idempotent: logging
// out when no session is saved is not an error.
func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the saved Odoo session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openHistoryStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			existing, err := store.LoadSession(ctx)
			if err != nil {
				return err
			}
			if existing == nil || !existing.IsAuthenticated() {
				fmt.Println("Already logged out.")
				return nil
			}

			if err := store.SaveSession(ctx, nil); err != nil {
				return fmt.Errorf("failed to clear session: %w", err)
			}

			fmt.Println("Logged out.")
			return nil
		},
	}
}

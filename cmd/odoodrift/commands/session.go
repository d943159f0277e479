package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/odoodrift/odoodrift/pkg/history"
	"github.com/odoodrift/odoodrift/pkg/session"
)

// credentialFlags holds the --url/--database/--username/--password flags
// shared by every command that needs a live session. Empty values fall back
// to ODOO_URL/ODOO_DB/ODOO_USERNAME/ODOO_PASSWORD.
type credentialFlags struct {
	url      string
	database string
	username string
	password string
}

// bindCredentialFlags attaches the four session flags to cmd.
func bindCredentialFlags(cmd *cobra.Command, f *credentialFlags) {
	cmd.Flags().StringVar(&f.url, "url", "", "Odoo server URL (default: $ODOO_URL)")
	cmd.Flags().StringVar(&f.database, "database", "", "Odoo database name (default: $ODOO_DB)")
	cmd.Flags().StringVar(&f.username, "username", "", "Odoo username (default: $ODOO_USERNAME)")
	cmd.Flags().StringVar(&f.password, "password", "", "Odoo password (default: $ODOO_PASSWORD)")
}

// resolve fills in any flag left empty from the environment.
func (f credentialFlags) resolve() session.Config {
	cfg := session.Config{
		URL:      f.url,
		Database: f.database,
		Username: f.username,
		Password: f.password,
	}
	if cfg.URL == "" {
		cfg.URL = os.Getenv("ODOO_URL")
	}
	if cfg.Database == "" {
		cfg.Database = os.Getenv("ODOO_DB")
	}
	if cfg.Username == "" {
		cfg.Username = os.Getenv("ODOO_USERNAME")
	}
	if cfg.Password == "" {
		cfg.Password = os.Getenv("ODOO_PASSWORD")
	}
	return cfg
}

// openHistoryStore opens (creating the parent directory, then running
// migrations) the local SQLite store backing session/plan/apply history.
func openHistoryStore(ctx context.Context) (*history.Store, error) {
	if dir := filepath.Dir(stateDBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store, err := history.New(history.Config{Path: stateDBPath})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// newAuthenticatedSession authenticates a fresh session using cfg, logging
// progress the way the teacher's CLI commands log each lifecycle step.
func newAuthenticatedSession(ctx context.Context, store *history.Store, cfg session.Config) (*session.Session, error) {
	sess := session.New(store)
	state, err := sess.Authenticate(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info().Str("database", state.Database).Int64("uid", state.UID).Msg("authenticated")
	return sess, nil
}

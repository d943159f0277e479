package commands

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/odoodrift/odoodrift/pkg/comparator"
	"github.com/odoodrift/odoodrift/pkg/history"
	"github.com/odoodrift/odoodrift/pkg/planner"
	"github.com/odoodrift/odoodrift/pkg/session"
)

// newDevCommand watches the desired-state document and recomputes the plan
// on every change, for the tight local-iteration loop a CLI contributor
// wants while shaping a desired-state document against a scratch database.
func newDevCommand() *cobra.Command {
	var creds credentialFlags

	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Watch a desired-state document and replan on every change",
		Long: `dev watches the file given by --config and re-runs the plan computation
every time it changes, printing the resulting plan to the terminal. It never
applies anything; it exists to shorten the edit-replan loop while authoring
a desired-state document.`,
		Example: `  odoodrift dev --config desired.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if configPath == "" {
				return fmt.Errorf("a desired-state document is required (--config)")
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("failed to create watcher: %w", err)
			}
			defer watcher.Close()

			if err := watcher.Add(configPath); err != nil {
				return fmt.Errorf("failed to watch %s: %w", configPath, err)
			}

			store, err := openHistoryStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			sess, err := newAuthenticatedSession(ctx, store, creds.resolve())
			if err != nil {
				return fmt.Errorf("dev failed: %w", err)
			}
			defer sess.Logout(ctx)

			replan := func() {
				if err := runDevPlan(ctx, store, sess, configPath); err != nil {
					log.Error().Err(err).Msg("replan failed")
				}
			}

			log.Info().Str("config", configPath).Msg("watching desired-state document")
			replan()

			for {
				select {
				case <-ctx.Done():
					return nil
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
						log.Info().Str("event", event.Op.String()).Msg("desired-state document changed, replanning")
						replan()
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					log.Warn().Err(err).Msg("watcher error")
				}
			}
		},
	}

	bindCredentialFlags(cmd, &creds)
	return cmd
}

func runDevPlan(ctx context.Context, store *history.Store, sess *session.Session, configPath string) error {
	desired, err := loadDesiredState(configPath)
	if err != nil {
		return err
	}

	client, err := sess.Client()
	if err != nil {
		return err
	}
	intro, err := sess.Introspector()
	if err != nil {
		return err
	}

	resolved, err := resolvedRefs(ctx, store, desired)
	if err != nil {
		return err
	}

	actual, err := fetchActualState(ctx, client, desired, resolved)
	if err != nil {
		return err
	}

	cmp := comparator.New(intro, comparator.DefaultOptions())
	diffs, err := cmp.DiffAll(ctx, desired, actual, resolved)
	if err != nil {
		return fmt.Errorf("failed to diff desired state: %w", err)
	}

	p := planner.New(planner.Options{})
	plan, err := p.BuildPlan(ctx, diffs)
	if err != nil {
		return fmt.Errorf("failed to build plan: %w", err)
	}

	fmt.Println(planner.RenderText(plan, planner.RenderOptions{Color: true}))
	return nil
}

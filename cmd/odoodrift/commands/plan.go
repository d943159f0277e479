package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/odoodrift/odoodrift/pkg/comparator"
	"github.com/odoodrift/odoodrift/pkg/planner"
)

func newPlanCommand() *cobra.Command {
	var creds credentialFlags

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Compare desired state against the live server and build an execution plan",
		Long: `plan reads a desired-state document (a JSON array of records), diffs it
against the server's current state, and renders the resulting
create/update/delete execution plan. The plan is also persisted so 'apply'
can execute it by id.`,
		Example: `  odoodrift plan --config desired.json
  odoodrift plan -c desired.json --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			desired, err := loadDesiredState(configPath)
			if err != nil {
				return err
			}

			store, err := openHistoryStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			sess, err := newAuthenticatedSession(ctx, store, creds.resolve())
			if err != nil {
				return fmt.Errorf("plan failed: %w", err)
			}
			defer sess.Logout(ctx)

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

			if err := store.SavePlan(ctx, plan); err != nil {
				log.Warn().Err(err).Msg("failed to persist plan")
			}

			if jsonOutput {
				if err := printJSON(plan); err != nil {
					return err
				}
			} else {
				fmt.Println(planner.RenderText(plan, planner.RenderOptions{Color: !jsonOutput}))
				fmt.Printf("\nPlan %s saved. Run 'odoodrift apply --plan %s' to execute it.\n", plan.ID, plan.ID)
			}

			if hasErrors, _ := plan.Metadata["has_errors"].(bool); hasErrors {
				return fmt.Errorf("plan %s failed validation: %v", plan.ID, plan.Metadata["errors"])
			}
			return nil
		},
	}

	bindCredentialFlags(cmd, &creds)
	return cmd
}

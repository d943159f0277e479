package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odoodrift/odoodrift/pkg/comparator"
	"github.com/odoodrift/odoodrift/pkg/engine"
)

// newDriftCommand re-runs the comparator against current live state and
// reports any divergence from the desired-state document, without building
// or persisting a plan. Reconciling drift is just 'plan' followed by
// 'apply' — there is no separate reconcile path.
func newDriftCommand() *cobra.Command {
	var creds credentialFlags

	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Report drift between desired state and the live server",
		Long: `drift diffs a desired-state document against the server's current state
and reports any records that have drifted, gone missing, or have no
recorded mapping yet, without producing or persisting an execution plan.`,
		Example: `  odoodrift drift --config desired.json`,
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
				return fmt.Errorf("drift failed: %w", err)
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

			drifted := make([]engine.ModelDiff, 0, len(diffs))
			for _, d := range diffs {
				if d.Operation != engine.OperationNoop {
					drifted = append(drifted, d)
				}
			}

			if jsonOutput {
				if err := printJSON(drifted); err != nil {
					return err
				}
			} else {
				renderDrift(drifted)
			}

			if len(drifted) > 0 {
				return fmt.Errorf("drift detected in %d of %d records", len(drifted), len(diffs))
			}
			fmt.Println("No drift detected.")
			return nil
		},
	}

	bindCredentialFlags(cmd, &creds)
	return cmd
}

func renderDrift(drifted []engine.ModelDiff) {
	if len(drifted) == 0 {
		return
	}
	for _, d := range drifted {
		fmt.Printf("%s %s(%s): %d field(s) changed\n", d.Operation, d.Model, d.Ref, len(d.Changes))
		for _, c := range d.Changes {
			fmt.Printf("  %s: %v -> %v\n", c.Field, c.Before, c.After)
		}
	}
}

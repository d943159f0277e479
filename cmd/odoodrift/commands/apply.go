package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/odoodrift/odoodrift/pkg/applier"
	"github.com/odoodrift/odoodrift/pkg/engine"
	"github.com/odoodrift/odoodrift/pkg/history"
	"github.com/odoodrift/odoodrift/pkg/policy"
	"github.com/odoodrift/odoodrift/pkg/telemetry"
)

func newApplyCommand() *cobra.Command {
	var (
		creds           credentialFlags
		planID          string
		dryRun          bool
		autoApprove     bool
		continueOnError bool
		skipPolicy      bool
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Execute a saved plan against the live server",
		Long: `apply loads a plan by id (as produced by 'plan'), evaluates it against the
policy engine's guardrails, and executes its operations in dependency order.
Operations run sequentially; a failure halts remaining operations unless
--continue-on-error is set.`,
		Example: `  odoodrift apply --plan a1b2c3d4
  odoodrift apply --plan a1b2c3d4 --auto-approve
  odoodrift apply --plan a1b2c3d4 --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openHistoryStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			plan, err := store.GetPlan(ctx, planID)
			if err != nil {
				return fmt.Errorf("failed to load plan %s: %w", planID, err)
			}

			if !skipPolicy {
				polEngine, err := policy.NewEngine(log.Logger)
				if err != nil {
					return fmt.Errorf("failed to initialize policy engine: %w", err)
				}
				result, err := polEngine.EvaluatePlan(ctx, plan)
				if err != nil {
					return fmt.Errorf("policy evaluation failed: %w", err)
				}
				for _, w := range result.Warnings {
					log.Warn().Str("plan", planID).Msg(w)
				}
				if !result.Allowed {
					for _, v := range result.Violations {
						fmt.Printf("[%s] %s: %s\n", v.Severity, v.Policy, v.Message)
					}
					return fmt.Errorf("plan %s blocked by policy", planID)
				}
			}

			if !autoApprove && !dryRun {
				approved, err := confirmApply(plan)
				if err != nil {
					return err
				}
				if !approved {
					fmt.Println("Apply cancelled.")
					return nil
				}
			}

			resolvedCreds := creds.resolve()
			sess, err := newAuthenticatedSession(ctx, store, resolvedCreds)
			if err != nil {
				return fmt.Errorf("apply failed: %w", err)
			}
			defer sess.Logout(ctx)

			client, err := sess.Client()
			if err != nil {
				return err
			}

			ctx = telemetry.WithRunContext(ctx, plan.ID, resolvedCreds.Username)

			a := applier.New(client)
			result, err := a.Apply(ctx, plan, engine.ApplyOptions{
				DryRun:          dryRun,
				ContinueOnError: continueOnError,
			})
			if err != nil {
				telemetry.EndRunContext(ctx, plan.ID, string(engine.ApplyStatusFailed), err)
				return fmt.Errorf("apply failed: %w", err)
			}
			telemetry.EndRunContext(ctx, plan.ID, string(result.Status), nil)

			if err := store.SaveApplyResult(ctx, result); err != nil {
				log.Warn().Err(err).Msg("failed to persist apply result")
			}

			if !dryRun {
				bindResolvedRefs(ctx, store, plan, result)
			}

			if jsonOutput {
				if err := printJSON(result); err != nil {
					return err
				}
			} else {
				renderApplyResult(result)
			}

			if result.Status == engine.ApplyStatusFailed || result.Status == engine.ApplyStatusPartial {
				return fmt.Errorf("apply %s: %d/%d operations failed", result.ID, result.Summary.Failed, result.Summary.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&planID, "plan", "p", "", "id of the plan to apply")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute and report outcomes without writing to the server")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "skip the confirmation prompt")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "keep executing remaining operations after a failure")
	cmd.Flags().BoolVar(&skipPolicy, "skip-policy", false, "skip policy engine evaluation")
	cmd.MarkFlagRequired("plan")
	bindCredentialFlags(cmd, &creds)

	return cmd
}

func renderApplyResult(result *engine.ApplyResult) {
	fmt.Printf("Apply %s: %s (%d/%d succeeded, %d failed, %d skipped)\n",
		result.ID, result.Status, result.Summary.Succeeded, result.Summary.Total,
		result.Summary.Failed, result.Summary.Skipped)
	for _, r := range result.Results {
		status := "ok"
		if r.Error != nil {
			status = fmt.Sprintf("error: %s", r.Error)
		}
		fmt.Printf("  %s (%s): %s\n", r.OperationID, r.Status, status)
	}
}

// bindResolvedRefs persists the record id each succeeded operation resolved
// to, keyed by its Ref, so the next plan/drift run can recognize the record
// as already existing instead of proposing to create it again.
func bindResolvedRefs(ctx context.Context, store *history.Store, plan *engine.ExecutionPlan, result *engine.ApplyResult) {
	opByID := make(map[string]engine.Operation, len(plan.Operations))
	for _, op := range plan.Operations {
		opByID[op.ID] = op
	}
	for _, r := range result.Results {
		if r.Status != engine.PlanStatusSucceeded || r.RecordID == nil {
			continue
		}
		op, ok := opByID[r.OperationID]
		if !ok || op.Ref == "" {
			continue
		}
		if err := store.BindRef(ctx, op.Model, op.Ref, *r.RecordID); err != nil {
			log.Warn().Err(err).Str("ref", op.Ref).Msg("failed to persist ref binding")
		}
	}
}

func confirmApply(plan *engine.ExecutionPlan) (bool, error) {
	fmt.Printf("Plan %s: %d to create, %d to update, %d to delete. Apply? [y/N]: ",
		plan.ID, plan.Summary.ToCreate, plan.Summary.ToUpdate, plan.Summary.ToDelete)
	var answer string
	if _, err := fmt.Scanln(&answer); err != nil && err.Error() != "unexpected newline" {
		return false, nil
	}
	return answer == "y" || answer == "Y" || answer == "yes", nil
}

package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/worldloom/worldloom/internal/effect"
	"github.com/worldloom/worldloom/internal/genclient"
	"github.com/worldloom/worldloom/internal/planner"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	ActionID string
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Draft a proposed effect bundle for a player action",
		Long: `Load the player action, ask the provider for a typed effect bundle,
validate it at the boundary, and persist it as the proposed bundle.
The ledger is untouched until apply.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ActionID, "id", "", "action id to plan (required)")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func runPlan(opts *PlanOptions, cmd *cobra.Command) error {
	e, err := openEnv(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer e.close()

	usage := genclient.NewRecorder(e.st, e.cfg.Prices)
	client := genclient.New(e.cfg.ClientConfig(), usage, e.log)
	p := planner.New(e.st, client, e.log)

	bundle, err := p.Plan(cmd.Context(), opts.ActionID)
	if err != nil {
		var verr *effect.ValidationError
		if errors.As(err, &verr) {
			_ = e.out.Error(verr.Error(), nil)
			return NewExitError(ExitFailure, "proposed bundle failed validation")
		}
		return WrapExitError(ExitFailure, "planning effects", err)
	}

	if opts.Format == "json" {
		return e.out.Success(bundle)
	}
	return e.out.Successf("planned %d effect(s) for %s", len(bundle.Effects), bundle.ActionID)
}

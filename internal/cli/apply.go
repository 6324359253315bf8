package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/worldloom/worldloom/internal/effect"
	"github.com/worldloom/worldloom/internal/hook"
	"github.com/worldloom/worldloom/internal/store"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	ActionID string
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a proposed effect bundle to the world-state ledger",
		Long: `Validate and apply the proposed bundle for an action: mutate the
ledger, persist the applied event with its inverse, and mark the affected
entities dirty. Everything lands in one transaction.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ActionID, "id", "", "action id to apply (required)")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func runApply(opts *ApplyOptions, cmd *cobra.Command) error {
	e, err := openEnv(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer e.close()
	ctx := cmd.Context()

	raw, err := e.st.Get(ctx, store.KeyProposedEffects(opts.ActionID))
	if errors.Is(err, store.ErrNotFound) {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("no proposed bundle for %s (run plan first)", opts.ActionID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "reading proposed bundle", err)
	}
	if err := effect.ValidateBundle(raw); err != nil {
		_ = e.out.Error(err.Error(), nil)
		return NewExitError(ExitFailure, "proposed bundle failed validation")
	}

	var bundle effect.Bundle
	if _, err := e.st.GetJSON(ctx, store.KeyProposedEffects(opts.ActionID), &bundle); err != nil {
		return WrapExitError(ExitCommandError, "decoding proposed bundle", err)
	}
	bundle.ActionID = opts.ActionID

	hooks := hook.NewManager(e.st, e.dirty, e.log)
	session := hooks.NewOpSession()
	applier := effect.NewApplier(e.st, e.dirty, session, e.log)

	result, err := applier.Apply(ctx, &bundle)
	if err != nil {
		if errors.Is(err, effect.ErrAlreadyApplied) {
			return WrapExitError(ExitFailure, "apply refused", err)
		}
		return WrapExitError(ExitFailure, "applying effects", err)
	}

	if opts.Format == "json" {
		return e.out.Success(result)
	}
	return e.out.Successf("applied %s: %d effect(s), %d burg(s) and %d state(s) dirty",
		result.ActionID, result.Applied,
		len(result.Affected.Burgs), len(result.Affected.States))
}

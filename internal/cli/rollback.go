package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/worldloom/worldloom/internal/effect"
	"github.com/worldloom/worldloom/internal/hook"
)

// RollbackOptions holds flags for the rollback command.
type RollbackOptions struct {
	*RootOptions
	ActionID string
}

// NewRollbackCommand creates the rollback command.
func NewRollbackCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RollbackOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Roll back an applied event",
		Long: `Replay the stored inverse of an applied event against the ledger and
archive the applied record. Partially reversible and irreversible effect
kinds are reported; their traces stay in the ledger.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRollback(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ActionID, "id", "", "action id to roll back (required)")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func runRollback(opts *RollbackOptions, cmd *cobra.Command) error {
	e, err := openEnv(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer e.close()

	hooks := hook.NewManager(e.st, e.dirty, e.log)
	applier := effect.NewApplier(e.st, e.dirty, hooks.NewOpSession(), e.log)

	result, err := applier.Rollback(cmd.Context(), opts.ActionID)
	if err != nil {
		if errors.Is(err, effect.ErrNotApplied) {
			return WrapExitError(ExitCommandError, "rollback refused", err)
		}
		return WrapExitError(ExitFailure, "rolling back", err)
	}

	if opts.Format == "json" {
		return e.out.Success(result)
	}

	msg := "rolled back " + result.ActionID
	if len(result.Irreversible)+len(result.PartiallyReversible) > 0 {
		var kinds []string
		for _, k := range result.PartiallyReversible {
			kinds = append(kinds, string(k))
		}
		for _, k := range result.Irreversible {
			kinds = append(kinds, string(k))
		}
		msg += " (not fully restored: " + strings.Join(kinds, ", ") + ")"
	}
	return e.out.Success(msg)
}

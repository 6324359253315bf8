package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/worldloom/worldloom/internal/hook"
)

// ActivateOptions holds flags for the activate command.
type ActivateOptions struct {
	*RootOptions
	ChainID        string
	HookInstanceID string
}

// NewActivateCommand creates the activate command.
func NewActivateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ActivateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Activate a quest chain through one of its hooks",
		Long: `Set the chosen hook active as the chain's entry and withdraw its
available siblings in the same chain. The status flips, the chain record,
the audit record and the dirty marks commit atomically.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runActivate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ChainID, "chain", "", "chain id (required)")
	cmd.Flags().StringVar(&opts.HookInstanceID, "hook", "", "hook instance id (required)")
	_ = cmd.MarkFlagRequired("chain")
	_ = cmd.MarkFlagRequired("hook")

	return cmd
}

func runActivate(opts *ActivateOptions, cmd *cobra.Command) error {
	e, err := openEnv(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer e.close()

	hooks := hook.NewManager(e.st, e.dirty, e.log)
	result, err := hooks.ActivateChain(cmd.Context(), opts.ChainID, opts.HookInstanceID)
	if err != nil {
		var mismatch *hook.ChainMismatchError
		if errors.As(err, &mismatch) || errors.Is(err, hook.ErrHookNotFound) {
			return WrapExitError(ExitCommandError, "activation refused", err)
		}
		return WrapExitError(ExitFailure, "activating chain", err)
	}

	if opts.Format == "json" {
		return e.out.Success(result)
	}
	return e.out.Successf("activated %s via %s: %d sibling(s) withdrawn, %d burg(s) dirty",
		opts.ChainID, result.Activated.HookInstanceID,
		len(result.Withdrawn), len(result.AffectedBurgs))
}

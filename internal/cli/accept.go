package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/worldloom/worldloom/internal/hook"
)

// AcceptOptions holds flags for the accept command.
type AcceptOptions struct {
	*RootOptions
	SuggestionIDs []string
	All           bool
	MinScore      float64
	Limit         int
}

// NewAcceptCommand creates the accept command.
func NewAcceptCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AcceptOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "accept",
		Short: "Accept hook placement suggestions into materialized instances",
		Long: `Materialize hook instances for selected placement suggestions, either
by explicit id or all placements above a score floor. Instance ids are
deterministic, so repeated accepts never duplicate.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.All && len(opts.SuggestionIDs) == 0 {
				return NewExitError(ExitCommandError, "pass --sugg ids or --all")
			}
			return runAccept(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.SuggestionIDs, "sugg", nil, "suggestion ids to accept")
	cmd.Flags().BoolVar(&opts.All, "all", false, "accept all placements above --min-score")
	cmd.Flags().Float64Var(&opts.MinScore, "min-score", 0.7, "score floor for --all")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum placements accepted with --all")

	return cmd
}

func runAccept(opts *AcceptOptions, cmd *cobra.Command) error {
	e, err := openEnv(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer e.close()

	hooks := hook.NewManager(e.st, e.dirty, e.log)
	result, err := hooks.AcceptSuggestions(cmd.Context(), hook.Selection{
		SuggestionIDs: opts.SuggestionIDs,
		All:           opts.All,
		MinScore:      opts.MinScore,
		Limit:         opts.Limit,
	})
	if err != nil {
		if errors.Is(err, hook.ErrNoSuggestions) || errors.Is(err, hook.ErrNoTemplates) {
			return WrapExitError(ExitCommandError, "nothing to accept", err)
		}
		return WrapExitError(ExitFailure, "accepting suggestions", err)
	}

	if opts.Format == "json" {
		return e.out.Success(result)
	}
	return e.out.Successf("accepted %d hook(s), %d already existed, %d suggestion(s) missing",
		len(result.Created), result.SkippedExisting, len(result.MissingIDs))
}

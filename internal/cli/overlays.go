package cli

import (
	"github.com/spf13/cobra"

	"github.com/worldloom/worldloom/internal/overlay"
)

// NewOverlaysCommand creates the overlays command.
func NewOverlaysCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overlays",
		Short: "Derive overlay documents for every dirty entity",
		Long: `Derive each dirty entity's overlay from the current ledger: population
and trade multipliers, destroyed assets, law enforcement, reputations and
surfaced hooks. Dirty marks are left in place for regeneration.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOverlays(rootOpts, cmd)
		},
	}
	return cmd
}

func runOverlays(opts *RootOptions, cmd *cobra.Command) error {
	e, err := openEnv(opts, cmd)
	if err != nil {
		return err
	}
	defer e.close()

	builder := overlay.NewBuilder(e.st, e.dirty, e.log)
	refs, err := builder.BuildDirty(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "building overlays", err)
	}

	if opts.Format == "json" {
		nodes := make([]string, 0, len(refs))
		for _, r := range refs {
			nodes = append(nodes, r.Node())
		}
		return e.out.Success(map[string]any{"built": nodes})
	}
	return e.out.Successf("built %d overlay(s)", len(refs))
}

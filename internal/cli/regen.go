package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/worldloom/worldloom/internal/genclient"
	"github.com/worldloom/worldloom/internal/ref"
	"github.com/worldloom/worldloom/internal/regen"
)

// RegenOptions holds flags for the regen command.
type RegenOptions struct {
	*RootOptions
	Nodes []string
}

// NewRegenCommand creates the regen command.
func NewRegenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "regen",
		Short: "Regenerate stale artifacts through the provider",
		Long: `Fan regeneration out over the dirty set (or the named nodes), expanded
through the dependency graph so dependents of a changed entity regenerate
too, through a bounded worker pool sharing one pacing gate. Entities whose inputs hash is
unchanged are skipped without a provider call; failed units stay dirty.
Interrupting the run cancels cooperatively: in-flight units observe the
cancellation, unstarted units are never scheduled.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegen(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Nodes, "node", nil, `limit to specific nodes (e.g. "burg:12,state:5")`)

	return cmd
}

func runRegen(opts *RegenOptions, cmd *cobra.Command) error {
	e, err := openEnv(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer e.close()

	var refs []ref.Ref
	for _, node := range opts.Nodes {
		r, err := ref.Parse(node)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("bad --node %q", node), err)
		}
		refs = append(refs, r)
	}

	usage := genclient.NewRecorder(e.st, e.cfg.Prices)
	client := genclient.New(e.cfg.ClientConfig(), usage, e.log)
	scheduler := regen.NewScheduler(e.st, e.dirty, client, e.cfg.Scheduler.Workers, e.log)

	result, err := scheduler.Run(cmd.Context(), refs)
	if err != nil {
		return WrapExitError(ExitFailure, "regeneration run", err)
	}

	if opts.Format == "json" {
		if err := e.out.Success(result); err != nil {
			return err
		}
	} else {
		if err := e.out.Successf("regenerated %d, skipped %d (hash match), failed %d, unscheduled %d",
			len(result.Regenerated), len(result.Skipped),
			len(result.Failed), len(result.Unscheduled)); err != nil {
			return err
		}
	}

	if len(result.Failed) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d unit(s) failed and stay dirty", len(result.Failed)))
	}
	return nil
}

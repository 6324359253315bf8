package cli

import (
	"github.com/spf13/cobra"

	"github.com/worldloom/worldloom/internal/graph"
)

// NewGraphCommand creates the graph command group.
func NewGraphCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Manage the entity dependency graph",
	}
	cmd.AddCommand(newGraphBuildCommand(rootOpts))
	return cmd
}

func newGraphBuildCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build the dependency graph from the fact documents",
		Long: `Construct the graph from the stored facts: one node per entity, a
state→world edge per state and a burg→state edge per burg, each edge
declaring the upstream fields whose change invalidates the dependent.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraphBuild(rootOpts, cmd)
		},
	}
}

func runGraphBuild(opts *RootOptions, cmd *cobra.Command) error {
	e, err := openEnv(opts, cmd)
	if err != nil {
		return err
	}
	defer e.close()
	ctx := cmd.Context()

	g, err := graph.Build(ctx, e.st)
	if err != nil {
		return WrapExitError(ExitFailure, "building graph", err)
	}
	if err := graph.Save(ctx, e.st, g); err != nil {
		return WrapExitError(ExitFailure, "saving graph", err)
	}

	if opts.Format == "json" {
		return e.out.Success(g)
	}
	return e.out.Successf("graph built: %d node(s), %d edge(s)", len(g.Nodes), len(g.Edges))
}

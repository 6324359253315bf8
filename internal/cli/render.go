package cli

import (
	"github.com/spf13/cobra"

	"github.com/worldloom/worldloom/internal/regen"
)

// RenderOptions holds flags for the render command.
type RenderOptions struct {
	*RootOptions
	All bool
}

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RenderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Compose rendered documents for dirty (or all) entities",
		Long: `Compose each entity's rendered document from its canonical outline,
current overlay and generated lore. Rendering is local and free; it never
calls the provider. A successful render clears the entity's dirty mark.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "render every entity, not just dirty ones")

	return cmd
}

func runRender(opts *RenderOptions, cmd *cobra.Command) error {
	e, err := openEnv(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer e.close()

	renderer := regen.NewRenderer(e.st, e.dirty, e.log)
	rendered, err := renderer.RenderDirty(cmd.Context(), opts.All)
	if err != nil {
		return WrapExitError(ExitFailure, "rendering", err)
	}

	if opts.Format == "json" {
		return e.out.Success(map[string]any{"rendered": rendered})
	}
	return e.out.Successf("rendered %d document(s)", len(rendered))
}

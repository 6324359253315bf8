package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/worldloom/worldloom/internal/config"
	"github.com/worldloom/worldloom/internal/graph"
	"github.com/worldloom/worldloom/internal/store"
)

// env bundles the shared dependencies a command needs: the open store, the
// dirty tracker over it, and the loaded configuration.
type env struct {
	st    *store.Store
	dirty *graph.Tracker
	cfg   *config.Config
	log   *slog.Logger
	out   *OutputFormatter
}

// openEnv opens the document store and loads the config per the global flags.
// The caller must call close.
func openEnv(opts *RootOptions, cmd *cobra.Command) (*env, error) {
	cfg := config.Default()
	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "loading config", err)
		}
		cfg = loaded
	}

	st, err := store.Open(opts.DB)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "opening document store", err)
	}

	return &env{
		st:    st,
		dirty: graph.NewTracker(st),
		cfg:   cfg,
		log:   slog.Default(),
		out:   &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()},
	}, nil
}

func (e *env) close() {
	if err := e.st.Close(); err != nil {
		e.log.Error("closing document store", "error", err)
	}
}

package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"gallery-sync/internal/app"
	"gallery-sync/internal/protocol"
	"gallery-sync/internal/sync"
)

// newTestCommand creates the test command
func newTestCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Check that the remote server is reachable and the gallery root exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, target, err := rt.target(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Engine().TestConnection(commandContext(cmd), target.Config); err != nil {
				return fmt.Errorf("connection test failed: %w", err)
			}
			fmt.Fprintf(rt.stdout(cmd), "Connection to %s OK\n", target.Config.WithDefaults())
			return nil
		},
	}
}

// newUploadCommand creates the upload command
func newUploadCommand(rt *runtime) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Mirror local collections to the remote server",
		Long: `Make the remote gallery an exact mirror of the local collections.

New and changed files are uploaded. Remote collection directories and files
with no local counterpart are deleted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.runSync(cmd, output, (*app.App).Upload)
		},
	}
	addOutputFlag(cmd, &output)
	return cmd
}

// newDownloadCommand creates the download command
func newDownloadCommand(rt *runtime) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Mirror the remote gallery into local collections",
		Long: `Make the local collections an exact mirror of the remote gallery.

Missing files are downloaded into the media directory. Local collections
and files with no remote counterpart are deleted, files included.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.runSync(cmd, output, (*app.App).Download)
		},
	}
	addOutputFlag(cmd, &output)
	return cmd
}

type syncFunc func(*app.App, context.Context, app.Target) (*sync.Result, error)

func (rt *runtime) runSync(cmd *cobra.Command, output string, run syncFunc) error {
	if err := checkFormat(output); err != nil {
		return err
	}

	var progress func(protocol.TransferProgress)
	var bar *progressBar
	if output == formatHuman && !rt.quiet() {
		bar = newProgressBar(cmd.ErrOrStderr())
		progress = bar.Update
	}

	a, target, err := rt.target(cmd, progress)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := run(a, commandContext(cmd), target)
	if bar != nil {
		bar.Finish()
	}
	if res != nil {
		if rerr := render(rt.resultWriter(cmd, output), output, res, func(w io.Writer) { printResult(w, res) }); rerr != nil && err == nil {
			err = rerr
		}
	}
	if err != nil {
		return err
	}
	if !res.OK() {
		return fmt.Errorf("%s finished with %d failed files and %d skipped collections", res.Direction, res.FilesFailed, res.CollectionsSkipped)
	}
	return nil
}

// resultWriter keeps machine-readable output even with --quiet.
func (rt *runtime) resultWriter(cmd *cobra.Command, output string) io.Writer {
	if output != formatHuman {
		return cmd.OutOrStdout()
	}
	return rt.stdout(cmd)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

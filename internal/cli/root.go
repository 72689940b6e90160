// Package cli implements the gallery-sync command line.
package cli

import (
	"errors"
	"io"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gallery-sync/internal/app"
	"gallery-sync/internal/protocol"
	"gallery-sync/internal/sync"
	"gallery-sync/pkg/logger"
)

// runtime carries what every command needs to assemble the application.
type runtime struct {
	v *viper.Viper

	// Test hooks; nil means the real implementation.
	dialer sync.Dialer
	fs     afero.Fs
	logger *logger.Logger
}

// NewRootCommand builds the gallery-sync command tree.
func NewRootCommand(version string) (*cobra.Command, error) {
	return newRootCommand(&runtime{v: viper.New()}, version)
}

func newRootCommand(rt *runtime, version string) (*cobra.Command, error) {
	rootCmd := &cobra.Command{
		Use:   "gallery-sync",
		Short: "Mirror photo and video collections to an SFTP or FTP server",
		Long: `gallery-sync mirrors local media collections to a remote directory tree
over SFTP, FTP or FTPS, and back.

Each collection maps to one directory under the remote gallery root. Upload
makes the remote an exact mirror of the local collections, download does the
reverse, and compare reports the differences without changing anything.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := AddGlobalFlags(rootCmd, rt.v); err != nil {
		return nil, err
	}

	rootCmd.AddCommand(
		newTestCommand(rt),
		newUploadCommand(rt),
		newDownloadCommand(rt),
		newCompareCommand(rt),
		newStatusCommand(rt),
		newLogCommand(rt),
		newCollectionCommand(rt),
		newProfileCommand(rt),
	)
	return rootCmd, nil
}

// open assembles the application. progress may be nil.
func (rt *runtime) open(cmd *cobra.Command, progress func(protocol.TransferProgress)) (*app.App, error) {
	opts, err := appOptions(rt.v)
	if err != nil {
		return nil, err
	}
	opts.Stderr = cmd.ErrOrStderr()
	opts.Dialer = rt.dialer
	opts.Fs = rt.fs
	opts.Logger = rt.logger
	opts.Progress = progress
	return app.New(opts)
}

// target opens the application and resolves the connection.
func (rt *runtime) target(cmd *cobra.Command, progress func(protocol.TransferProgress)) (*app.App, app.Target, error) {
	a, err := rt.open(cmd, progress)
	if err != nil {
		return nil, app.Target{}, err
	}
	t, err := a.ResolveTarget(rt.v.GetString(flagProfile), overrides(rt.v))
	if err != nil {
		a.Close()
		if errors.Is(err, app.ErrMasterPasswordRequired) {
			return nil, t, errors.New("no password available: pass --password, set " + EnvPrefix + "_PASSWORD, or set " + EnvPrefix + "_MASTER_PASSWORD to read the stored one")
		}
		return nil, t, err
	}
	return a, t, nil
}

// quiet reports whether informational output is suppressed.
func (rt *runtime) quiet() bool {
	return rt.v.GetBool(flagQuiet)
}

// stdout returns the writer for informational output.
func (rt *runtime) stdout(cmd *cobra.Command) io.Writer {
	if rt.quiet() {
		return io.Discard
	}
	return cmd.OutOrStdout()
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"gallery-sync/internal/app"
	"gallery-sync/internal/store"
	"gallery-sync/internal/sync"
)

// errOutOfSync is returned by compare --exit-code when the sides differ.
var errOutOfSync = errors.New("local and remote collections differ")

// newCompareCommand creates the compare command
func newCompareCommand(rt *runtime) *cobra.Command {
	var (
		output   string
		exitCode bool
	)
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare local collections with the remote gallery without changing either",
		Long: `Compare local collections with the remote gallery and report collections
present on only one side and, for collections on both sides, the files each
side is missing. Nothing is transferred or deleted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(output); err != nil {
				return err
			}
			a, target, err := rt.target(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			cmp, err := a.Engine().Compare(commandContext(cmd), target.Config)
			if err != nil {
				return fmt.Errorf("comparison failed: %w", err)
			}
			if err := render(rt.resultWriter(cmd, output), output, cmp, func(w io.Writer) { printComparison(w, cmp) }); err != nil {
				return err
			}
			if exitCode && !cmp.InSync() {
				return errOutOfSync
			}
			return nil
		},
	}
	addOutputFlag(cmd, &output)
	cmd.Flags().BoolVar(&exitCode, "exit-code", false, "exit with an error when the sides differ")
	return cmd
}

// statusReport combines the remote summary with local state.
type statusReport struct {
	Profile          string             `json:"profile,omitempty" yaml:"profile,omitempty"`
	Remote           *sync.RemoteStatus `json:"remote" yaml:"remote"`
	LocalCollections int                `json:"local_collections" yaml:"local_collections"`
	LastChange       *store.ChangeLog   `json:"last_change,omitempty" yaml:"last_change,omitempty"`
}

// newStatusCommand creates the status command
func newStatusCommand(rt *runtime) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show remote gallery status and the last local change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(output); err != nil {
				return err
			}
			a, target, err := rt.target(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := commandContext(cmd)

			remote, err := a.Engine().RemoteStatus(ctx, target.Config)
			if err != nil {
				return fmt.Errorf("remote status: %w", err)
			}
			report, err := localStatus(ctx, a)
			if err != nil {
				return err
			}
			report.Profile = target.ProfileName
			report.Remote = remote

			return render(rt.resultWriter(cmd, output), output, report, func(w io.Writer) { printStatus(w, report) })
		},
	}
	addOutputFlag(cmd, &output)
	return cmd
}

func localStatus(ctx context.Context, a *app.App) (*statusReport, error) {
	cols, err := a.Store().ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	last, err := a.Store().LatestChange(ctx)
	if err != nil {
		return nil, err
	}
	return &statusReport{LocalCollections: len(cols), LastChange: last}, nil
}

func printStatus(w io.Writer, r *statusReport) {
	if r.Profile != "" {
		fmt.Fprintf(w, "Profile:      %s\n", r.Profile)
	}
	fmt.Fprintf(w, "Remote:       %s\n", r.Remote.Description)
	if !r.Remote.LastModified.IsZero() {
		fmt.Fprintf(w, "Last changed: %s\n", r.Remote.LastModified.Local().Format(time.DateTime))
	}
	fmt.Fprintf(w, "Local:        %d collections\n", r.LocalCollections)
	if r.LastChange != nil {
		fmt.Fprintf(w, "Last change:  %s %s\n", r.LastChange.Timestamp.Local().Format(time.DateTime), r.LastChange.Description)
	}
}
